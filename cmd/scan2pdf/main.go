package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/scan2pdf/internal/config"
	"github.com/ivlev/scan2pdf/internal/engine"
	"github.com/ivlev/scan2pdf/internal/live"
	"github.com/ivlev/scan2pdf/internal/pdfdoc"
	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/scanner"
	"github.com/ivlev/scan2pdf/internal/session"
	"github.com/ivlev/scan2pdf/internal/source"
	"github.com/ivlev/scan2pdf/internal/system"
	"github.com/ivlev/scan2pdf/internal/vision"
)

var version = "dev"

const (
	inputDir  = "input"
	outputDir = "output"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if errors.Is(err, config.ErrVersionRequested) {
		fmt.Printf("scan2pdf %s (backends: %v)\n", version, vision.Available())
		return
	}
	if err != nil {
		logrus.Fatalf("[-] Ошибка конфигурации: %v", err)
	}
	cfg.BuildVersion = version

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.Warnf("unknown log level %q, using info", cfg.LogLevel)
	}

	// Создаем нужные директории, если их нет
	for _, d := range []string{inputDir, outputDir} {
		os.MkdirAll(d, 0755)
	}

	if len(cfg.InputPaths) == 0 {
		if cfg.Live {
			cfg.InputPaths = []string{inputDir}
		} else {
			latest, err := system.FindLatestImage(inputDir)
			if err != nil {
				log.Fatalf("[-] Ошибка: %v. Положите фото документа в %s/", err, inputDir)
			}
			cfg.InputPaths = []string{latest}
			fmt.Printf("[*] Выбран файл: %s\n", latest)
		}
	}
	if cfg.OutputPDF == "" {
		cfg.OutputPDF = session.GenerateOutputPath(outputDir, time.Now())
	}

	pipeline, err := newPipeline(cfg, log)
	if err != nil {
		log.Fatalf("[-] Ошибка инициализации: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Live {
		if err := runLive(ctx, cfg, pipeline, log); err != nil {
			log.Fatalf("[-] Ошибка: %v", err)
		}
		return
	}

	src, err := openSource(cfg.InputPaths)
	if err != nil {
		log.Fatalf("[-] Ошибка инициализации источника: %v", err)
	}
	defer src.Close()

	project := engine.NewScanProject(cfg, src, pipeline, log)
	if _, err := project.Run(ctx); err != nil {
		src.Close()
		log.Fatalf("[-] Ошибка проекта: %s", describe(err))
	}
}

func newPipeline(cfg *config.Config, log logrus.FieldLogger) (*scanner.Pipeline, error) {
	backend, err := vision.Open(cfg.Backend)
	if err != nil {
		return nil, err
	}

	// Без --crop прямоугольник пустой, и его проверяет только ручной детектор
	crop, _ := cfg.CropRect()
	detector, err := scanner.NewDetector(cfg.Detector, crop)
	if err != nil {
		return nil, err
	}

	page, err := cfg.PageOptions()
	if err != nil {
		return nil, err
	}
	return scanner.New(vision.NewService(backend), scanner.Options{
		Detector:     detector,
		ApproxFactor: cfg.ApproxFactor,
		Page:         page,
	}, log), nil
}

// openSource reads a single path as a PDF, image or directory; several paths
// are treated as image files or directories.
func openSource(paths []string) (source.Source, error) {
	if len(paths) == 1 {
		return source.Open(paths[0])
	}
	return source.NewImageSource(paths...)
}

// runLive scans the newest image in the watched directory until interrupted,
// then writes every recognized page into one PDF. Commands on stdin manage the
// pages collected so far.
func runLive(ctx context.Context, cfg *config.Config, pipeline *scanner.Pipeline, log logrus.FieldLogger) error {
	sess := session.New(session.Options{
		Writer:    pdfdoc.WriterOptions{JPEGQuality: cfg.JPEGQuality, Title: cfg.Title},
		LabelSize: cfg.LabelSize,
		Log:       log,
	})

	previewPath := cfg.LivePreview
	if previewPath == "" {
		previewPath = filepath.Join(filepath.Dir(cfg.OutputPDF), "live_preview.png")
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go readCommands(os.Stdin, sess, stop)

	loop := &live.Loop{
		Frames:   &live.DirFrames{Dir: cfg.InputPaths[0]},
		Process:  pipeline.Run,
		Interval: cfg.LiveInterval,
		Log:      log,
		Render: func(f live.Frame, res *scanner.Result, err error) {
			if perr := live.SavePreview(previewPath, live.Highlight(f.Image, res)); perr != nil {
				log.WithError(perr).Warn("live preview not written")
			}
			name := filepath.Base(f.ID)
			if err != nil {
				fmt.Printf("[!] %s: %s\n", name, scanerr.UserMessage(err))
				return
			}
			page, err := sess.Add(name, res)
			if err != nil {
				fmt.Printf("[!] %s: %s\n", name, describe(err))
				return
			}
			fmt.Printf("[>] Страница %d: %s (%dx%d)\n", page.Number, name, res.Width, res.Height)
		},
	}

	fmt.Printf("[*] Слежение за %s | превью: %s\n", cfg.InputPaths[0], previewPath)
	fmt.Println("[*] Команды: r - переснять последнюю, c - сбросить все, d - готово (или Ctrl+C)")
	if err := loop.Run(ctx); err != nil {
		return err
	}

	stats := loop.Stats()
	if cfg.ShowStats {
		fmt.Printf("[*] Кадров: %d обработано, %d пропущено, %d без документа\n", stats.Processed, stats.Dropped, stats.Failed)
	}
	if sess.Len() == 0 {
		fmt.Println("[!] Ни одной страницы не отсканировано")
		return nil
	}

	// Контекст уже отменен, поэтому сборка идет с новым
	exported, err := engine.Export(context.Background(), cfg, sess)
	if err != nil {
		return err
	}
	fmt.Printf("[+++] Успех! PDF сохранен: %s (%d стр.)\n", exported.Output, exported.Pages)
	return nil
}

// readCommands applies gallery commands typed by the user until stdin closes.
func readCommands(r io.Reader, sess *session.Session, done func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "r", "retake":
			if page, ok := sess.Retake(); ok {
				fmt.Printf("[*] Страница %d удалена, снимите ее заново\n", page.Number)
			} else {
				fmt.Println("[!] Нет страниц")
			}
		case "c", "cancel":
			sess.Cancel()
			fmt.Println("[*] Все страницы сброшены")
		case "d", "done", "q":
			done()
			return
		case "":
		default:
			fmt.Println("[!] Неизвестная команда")
		}
	}
}

// describe prefers the user-facing message for scan errors.
func describe(err error) string {
	if scanerr.CodeOf(err) != "" {
		return fmt.Sprintf("%s (%v)", scanerr.UserMessage(err), err)
	}
	return err.Error()
}
