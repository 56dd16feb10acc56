package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ivlev/scan2pdf/internal/config"
	"github.com/ivlev/scan2pdf/internal/formfield"
	"github.com/ivlev/scan2pdf/internal/pdfdoc"
	"github.com/ivlev/scan2pdf/internal/session"
)

// PreviewDPI is the resolution of the first-page preview.
const PreviewDPI = 72

// DocumentField is the form field the exported document is validated against.
var DocumentField = formfield.Field{Key: "document", Label: "Document", Required: true}

// Exported lists what Export wrote.
type Exported struct {
	Output     string
	Manifest   string
	FieldValue string
	Preview    string
	Thumbnails []string
	Pages      int
}

// Export merges the session into the output PDF and writes the files that
// accompany it. The session is empty afterwards.
func Export(ctx context.Context, cfg *config.Config, sess *session.Session) (*Exported, error) {
	pages := sess.Pages()
	doc, manifest, err := sess.Done(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки PDF: %w", err)
	}
	if err := pdfdoc.Validate(doc); err != nil {
		return nil, fmt.Errorf("собранный PDF не прошел проверку: %w", err)
	}

	outputPath := cfg.OutputPDF
	if outputPath == "" {
		outputPath = session.GenerateOutputPath(".", manifest.Created)
	}
	if err := ensureDir(filepath.Dir(outputPath)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, doc, 0644); err != nil {
		return nil, err
	}
	out := &Exported{Output: outputPath, Pages: len(manifest.Pages)}
	base := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))

	if cfg.Manifest {
		manifest.Output = filepath.Base(outputPath)
		out.Manifest = session.ManifestPath(outputPath)
		if err := session.WriteManifest(manifest, out.Manifest); err != nil {
			return nil, fmt.Errorf("ошибка записи манифеста: %w", err)
		}
	}

	if cfg.FieldValue != "" {
		value, err := formfield.Encode([]formfield.Document{
			formfield.NewDocument(filepath.Base(base), doc),
		})
		if err != nil {
			return nil, err
		}
		if msgs := DocumentField.Validate(value); len(msgs) > 0 {
			return nil, fmt.Errorf("значение поля %s: %s", DocumentField.Key, strings.Join(msgs, " "))
		}
		if err := ensureDir(filepath.Dir(cfg.FieldValue)); err != nil {
			return nil, err
		}
		if err := os.WriteFile(cfg.FieldValue, []byte(value), 0644); err != nil {
			return nil, err
		}
		out.FieldValue = cfg.FieldValue
	}

	if cfg.Thumbnails != "" {
		if err := ensureDir(cfg.Thumbnails); err != nil {
			return nil, err
		}
		for _, p := range pages {
			path := filepath.Join(cfg.Thumbnails, fmt.Sprintf("page_%03d.png", p.Number))
			if err := imaging.Save(p.Thumbnail, path); err != nil {
				return nil, fmt.Errorf("ошибка записи миниатюры: %w", err)
			}
			out.Thumbnails = append(out.Thumbnails, path)
		}
	}

	if cfg.Preview {
		img, err := pdfdoc.Rasterize(doc, 0, PreviewDPI)
		if err != nil {
			return nil, err
		}
		out.Preview = base + "_preview.png"
		if err := imaging.Save(img, out.Preview); err != nil {
			return nil, fmt.Errorf("ошибка записи превью: %w", err)
		}
	}
	return out, nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
