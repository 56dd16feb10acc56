// Package pdfdoc writes scanned pages into PDF documents and works with the
// resulting files: merging, validation and rendering pages back to images.
package pdfdoc

import (
	"bytes"
	"fmt"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/disintegration/imaging"

	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/scanner"
)

// MIMEType is the content type of every document produced here.
const MIMEType = "application/pdf"

// DefaultJPEGQuality matches the quality pages were historically exported with.
const DefaultJPEGQuality = 90

// WriterOptions configures a Writer.
type WriterOptions struct {
	JPEGQuality int
	Title       string
	// CreationDate is stamped into the document; zero means now.
	CreationDate time.Time
}

// Writer collects pages into one PDF document. Each page gets its own size.
type Writer struct {
	pdf     *fpdf.Fpdf
	quality int
	pages   int
}

// NewWriter starts an empty document.
func NewWriter(opts WriterOptions) *Writer {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("scan2pdf", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	if !opts.CreationDate.IsZero() {
		pdf.SetCreationDate(opts.CreationDate)
		pdf.SetModificationDate(opts.CreationDate)
	}
	return &Writer{pdf: pdf, quality: opts.JPEGQuality}
}

// AddPage appends a page of page.Width x page.Height points and draws the page
// image, JPEG-encoded, at its placement.
func (w *Writer) AddPage(page scanner.OutputPage) error {
	if page.Image == nil || page.Image.Bounds().Empty() {
		return scanerr.InvalidInput("pdf", "page %d has no image", w.pages+1)
	}
	if page.Width <= 0 || page.Height <= 0 {
		return scanerr.InvalidInput("pdf", "page %d has size %.2fx%.2f", w.pages+1, page.Width, page.Height)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, page.Image, imaging.JPEG, imaging.JPEGQuality(w.quality)); err != nil {
		return scanerr.ExternalLibrary("pdf", fmt.Errorf("encode page %d: %w", w.pages+1, err))
	}

	w.pages++
	name := fmt.Sprintf("page%d", w.pages)
	opts := fpdf.ImageOptions{ReadDpi: false, ImageType: "JPG"}

	w.pdf.AddPageFormat("P", fpdf.SizeType{Wd: page.Width, Ht: page.Height})
	w.pdf.RegisterImageOptionsReader(name, opts, &buf)
	pl := page.Placement
	w.pdf.ImageOptions(name, pl.X, pl.Y, pl.Width, pl.Height, false, opts, 0, "")

	if err := w.pdf.Error(); err != nil {
		return scanerr.ExternalLibrary("pdf", fmt.Errorf("add page %d: %w", w.pages, err))
	}
	return nil
}

// PageCount reports how many pages were added.
func (w *Writer) PageCount() int {
	return w.pages
}

// Bytes serializes the document. The Writer cannot be used afterwards.
func (w *Writer) Bytes() ([]byte, error) {
	if w.pages == 0 {
		return nil, scanerr.InvalidInput("pdf", "document has no pages")
	}
	var buf bytes.Buffer
	if err := w.pdf.Output(&buf); err != nil {
		return nil, scanerr.ExternalLibrary("pdf", fmt.Errorf("failed to generate PDF: %w", err))
	}
	return buf.Bytes(), nil
}

// Export renders a single page into a complete document.
func Export(page scanner.OutputPage, opts WriterOptions) ([]byte, error) {
	w := NewWriter(opts)
	if err := w.AddPage(page); err != nil {
		return nil, err
	}
	return w.Bytes()
}
