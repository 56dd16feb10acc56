// Package source acquires the images to scan: photo files, directories of
// photos, or the pages of a PDF produced by a phone camera app.
package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/scan2pdf/internal/scanerr"
)

type Source interface {
	PageCount() int
	PageName(index int) string
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// Open picks the source for path: a PDF file is read page by page, anything
// else is treated as an image file or a directory of images.
func Open(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewFitzPDFSource(path)
	}
	return NewImageSource(path)
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, scanerr.ExternalLibrary("source", fmt.Errorf("open %s: %w", path, err))
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) PageName(index int) string {
	return fmt.Sprintf("%s#%d", filepath.Base(f.path), index+1)
}

func (f *FitzPDFSource) GetPageDimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage opens its own document handle so pages can be rendered from
// several goroutines at once.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	if index < 0 || index >= f.PageCount() {
		return nil, scanerr.InvalidInput("source", "page %d out of range", index)
	}
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, scanerr.ExternalLibrary("source", err)
	}
	defer workerDoc.Close()
	img, err := workerDoc.ImageDPI(index, float64(dpi))
	if err != nil {
		return nil, scanerr.ExternalLibrary("source", fmt.Errorf("render page %d: %w", index+1, err))
	}
	return img, nil
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
