package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scan2pdf/internal/config"
	"github.com/ivlev/scan2pdf/internal/pdfdoc"
	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/scanner"
	"github.com/ivlev/scan2pdf/internal/session"
	"github.com/ivlev/scan2pdf/internal/source"
	"github.com/ivlev/scan2pdf/internal/system"
)

// ErrNothingScanned is returned when no page of the source produced a document.
var ErrNothingScanned = errors.New("no page could be scanned")

type ScanProject struct {
	Config   *config.Config
	Source   source.Source
	Pipeline *scanner.Pipeline
	Log      logrus.FieldLogger
	// Out receives the progress lines; nil means stdout.
	Out io.Writer
}

// PageFailure records a page that was skipped.
type PageFailure struct {
	Index int
	Name  string
	Err   error
}

// Report summarizes a finished run.
type Report struct {
	Output   string
	Manifest string
	Pages    int
	Failed   []PageFailure
	Workers  int
	Scan     time.Duration
	Export   time.Duration
	Total    time.Duration
}

func NewScanProject(cfg *config.Config, src source.Source, pipeline *scanner.Pipeline, log logrus.FieldLogger) *ScanProject {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ScanProject{
		Config:   cfg,
		Source:   src,
		Pipeline: pipeline,
		Log:      log,
	}
}

func (p *ScanProject) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

// Run scans every page of the source and writes one PDF. A page that fails
// is skipped unless Config.Strict is set, in which case the first failure
// aborts the run.
func (p *ScanProject) Run(ctx context.Context) (*Report, error) {
	startTime := time.Now()
	out := p.out()

	pageCount := p.Source.PageCount()
	if pageCount == 0 {
		return nil, scanerr.InvalidInput("source", "источник не содержит страниц")
	}

	workers := system.RecommendedWorkers(p.Config.Workers, p.pageMegapixels())
	if workers > pageCount {
		workers = pageCount
	}

	fmt.Fprintln(out, "--- [PROJECT: SCAN2PDF] ---")
	fmt.Fprintf(out, "[*] Источник: %s | Страниц: %d\n", strings.Join(p.Config.InputPaths, ", "), pageCount)
	fmt.Fprintf(out, "[*] Бэкенд: %s | Потоков: %d | DPI: %d\n", p.Pipeline.Backend().Name(), workers, p.Config.DPI)
	fmt.Fprintln(out, "-----------------------------")

	// Результаты храним по индексу, чтобы порядок страниц совпадал с источником
	results := make([]*scanner.Result, pageCount)
	failures := make([]error, pageCount)

	scanStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < pageCount; i++ {
		g.Go(func() error {
			res, err := p.scanPage(gctx, i)
			if err != nil {
				// Отмена или истекший срок прерывают весь прогон, а не одну страницу
				if p.Config.Strict || gctx.Err() != nil {
					return fmt.Errorf("%s: %w", p.Source.PageName(i), err)
				}
				failures[i] = err
				p.Log.WithFields(logrus.Fields{
					"page": p.Source.PageName(i),
					"code": scanerr.CodeOf(err),
				}).WithError(err).Warn("page skipped")
				fmt.Fprintf(out, "[!] Пропуск %s: %s\n", p.Source.PageName(i), scanerr.UserMessage(err))
				return nil
			}
			results[i] = res
			fmt.Fprintf(out, "[>] Готово: %d/%d\n", i+1, pageCount)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	scanTime := time.Since(scanStart)

	report := &Report{Workers: workers, Scan: scanTime}
	var firstErr error
	for i, err := range failures {
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		report.Failed = append(report.Failed, PageFailure{Index: i, Name: p.Source.PageName(i), Err: err})
	}

	fmt.Fprintln(out, "[*] Сборка PDF...")
	exportStart := time.Now()
	sess := session.New(session.Options{
		Writer: pdfdoc.WriterOptions{
			JPEGQuality: p.Config.JPEGQuality,
			Title:       p.Config.Title,
		},
		LabelSize: p.Config.LabelSize,
		Log:       p.Log,
	})
	for i, res := range results {
		if res == nil {
			continue
		}
		if _, err := sess.Add(p.Source.PageName(i), res); err != nil {
			return nil, fmt.Errorf("%s: %w", p.Source.PageName(i), err)
		}
	}
	if sess.Len() == 0 {
		if firstErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNothingScanned, firstErr)
		}
		return nil, ErrNothingScanned
	}

	exported, err := Export(ctx, p.Config, sess)
	if err != nil {
		return nil, err
	}
	report.Output = exported.Output
	report.Manifest = exported.Manifest
	report.Pages = exported.Pages
	report.Export = time.Since(exportStart)
	report.Total = time.Since(startTime)

	fmt.Fprintf(out, "[+++] Успех! PDF сохранен: %s (%d стр.)\n", report.Output, report.Pages)
	if len(report.Failed) > 0 {
		fmt.Fprintf(out, "[!] Пропущено страниц: %d\n", len(report.Failed))
	}

	if p.Config.ShowStats {
		p.printStats(report, pageCount)
	}
	return report, nil
}

func (p *ScanProject) scanPage(ctx context.Context, i int) (*scanner.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := p.Source.RenderPage(i, p.Config.DPI)
	if err != nil {
		return nil, scanerr.ExternalLibrary("source", err)
	}
	return p.Pipeline.Run(ctx, img)
}

// pageMegapixels estimates the size of the first page after rendering.
func (p *ScanProject) pageMegapixels() float64 {
	w, h, err := p.Source.GetPageDimensions(0)
	if err != nil {
		return 0
	}
	if _, ok := p.Source.(*source.FitzPDFSource); ok {
		// Размеры PDF в пунктах, рендер идет в DPI
		scale := float64(p.Config.DPI) / 72
		w, h = w*scale, h*scale
	}
	return w * h / 1e6
}

func (p *ScanProject) printStats(r *Report, pageCount int) {
	pps := float64(pageCount) / r.Total.Seconds()
	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Scanning (%d workers): %.2fs\n"+
			"PDF Export: %.2fs\n"+
			"Pages: %d ok, %d skipped\n"+
			"Pages/sec: %.2f\n"+
			"----------------------------\n",
		p.Config.BuildVersion, r.Total.Seconds(), r.Workers, r.Scan.Seconds(), r.Export.Seconds(),
		r.Pages, len(r.Failed), pps,
	)
	fmt.Fprint(p.out(), report)

	// Логирование в файл
	logEntry := fmt.Sprintf("[%s] Build: %s | Input: %s | Pages: %d | Total: %.2fs | Scan: %.2fs | Export: %.2fs | PPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		p.Config.BuildVersion,
		strings.Join(p.Config.InputPaths, ","),
		pageCount,
		r.Total.Seconds(),
		r.Scan.Seconds(),
		r.Export.Seconds(),
		pps,
	)

	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(logEntry)
		f.Close()
	} else {
		fmt.Fprintf(p.out(), "[!] Не удалось записать benchmark.log: %v\n", err)
	}
}
