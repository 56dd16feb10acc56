// Package label stamps archive labels (QR codes) onto scanned pages.
package label

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"

	"github.com/ivlev/scan2pdf/internal/scanerr"
)

// MinSize is the smallest QR code, in pixels, that still scans reliably.
const MinSize = 48

// Content is the default label text for a page of a session.
func Content(sessionID string, page int) string {
	return fmt.Sprintf("%s/%d", sessionID, page)
}

// Stamp returns a copy of img with a QR code encoding content in the
// bottom-right corner. The code keeps its white quiet zone and is shrunk to a
// quarter of the shorter image side when size is larger.
func Stamp(img image.Image, content string, size int) (image.Image, error) {
	b := img.Bounds()
	if limit := min(b.Dx(), b.Dy()) / 4; size > limit {
		size = limit
	}
	if size < MinSize {
		return nil, scanerr.InvalidInput("label", "page %dx%d too small for a label", b.Dx(), b.Dy())
	}

	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, scanerr.ExternalLibrary("label", err)
	}
	qr := code.Image(size)

	out := imaging.Clone(img)
	margin := size / 8
	at := image.Pt(out.Rect.Max.X-margin-size, out.Rect.Max.Y-margin-size)
	draw.Draw(out, image.Rectangle{Min: at, Max: at.Add(image.Pt(size, size))}, qr, qr.Bounds().Min, draw.Src)
	return out, nil
}
