package pdfdoc

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/scan2pdf/internal/scanerr"
)

// Rasterize renders one page (zero-based) of doc at the given resolution,
// for previews of what was exported.
func Rasterize(doc []byte, page int, dpi float64) (image.Image, error) {
	d, err := fitz.NewFromMemory(doc)
	if err != nil {
		return nil, scanerr.ExternalLibrary("preview", fmt.Errorf("failed to open PDF: %w", err))
	}
	defer d.Close()

	if page < 0 || page >= d.NumPage() {
		return nil, scanerr.InvalidInput("preview", "page %d out of range (document has %d)", page, d.NumPage())
	}
	img, err := d.ImageDPI(page, dpi)
	if err != nil {
		return nil, scanerr.ExternalLibrary("preview", fmt.Errorf("failed to render page %d: %w", page, err))
	}
	return img, nil
}
