package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ivlev/scan2pdf/internal/scanerr"
)

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Merge copies the pages of every document, in order, into a new document.
func Merge(ctx context.Context, docs [][]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, scanerr.InvalidInput("merge", "nothing to merge")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 1 {
		return append([]byte(nil), docs[0]...), nil
	}

	readers := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		readers[i] = bytes.NewReader(d)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, relaxedConfig()); err != nil {
		return nil, scanerr.ExternalLibrary("merge", fmt.Errorf("failed to merge %d documents: %w", len(docs), err))
	}
	return out.Bytes(), nil
}

// PageCount returns the number of pages in a PDF.
func PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), relaxedConfig())
	if err != nil {
		return 0, scanerr.ExternalLibrary("pdf", fmt.Errorf("failed to count pages: %w", err))
	}
	return n, nil
}

// Validate checks a PDF with pdfcpu in relaxed mode.
func Validate(doc []byte) error {
	if err := api.Validate(bytes.NewReader(doc), relaxedConfig()); err != nil {
		return scanerr.ExternalLibrary("pdf", fmt.Errorf("invalid PDF: %w", err))
	}
	return nil
}
