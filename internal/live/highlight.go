package live

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/ivlev/scan2pdf/internal/geom"
	"github.com/ivlev/scan2pdf/internal/scanner"
)

// HighlightColor outlines the detected page.
var HighlightColor = color.NRGBA{R: 255, G: 165, A: 255}

// Highlight returns a copy of frame with the detected page outlined. Without
// a result the copy is returned unmarked.
func Highlight(frame image.Image, res *scanner.Result) *image.NRGBA {
	out := imaging.Clone(frame)
	if res == nil {
		return out
	}
	b := out.Bounds()
	thickness := max(2, min(b.Dx(), b.Dy())/150)
	pen := image.NewUniform(HighlightColor)
	for i := 0; i < 4; i++ {
		drawLine(out, res.Corners[i], res.Corners[(i+1)%4], thickness, pen)
	}
	return out
}

// drawLine stamps a square of the given thickness at every step from a to b.
func drawLine(dst draw.Image, a, b geom.Point, thickness int, pen image.Image) {
	steps := int(math.Ceil(math.Max(math.Abs(b.X-a.X), math.Abs(b.Y-a.Y))))
	half := thickness / 2
	for i := 0; i <= steps; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		p := geom.Pt(a.X+(b.X-a.X)*t, a.Y+(b.Y-a.Y)*t).Image()
		r := image.Rect(p.X-half, p.Y-half, p.X-half+thickness, p.Y-half+thickness)
		draw.Draw(dst, r.Intersect(dst.Bounds()), pen, image.Point{}, draw.Src)
	}
}

// SavePreview writes img to path through a temporary file, so a viewer never
// sees a half-written preview.
func SavePreview(path string, img image.Image) error {
	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err := imaging.Save(img, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
