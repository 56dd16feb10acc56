package vision

import (
	"image"
	"math"

	"github.com/ivlev/scan2pdf/internal/geom"
)

// warpBilinear fills every pixel of dst by sampling src at inv(x, y).
// Neighbours outside src contribute zero in every channel.
func warpBilinear(src, dst *image.RGBA, inv geom.Transform) {
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := dst.Rect.Dx(), dst.Rect.Dy()

	sample := func(x, y, c int) float64 {
		if x < 0 || y < 0 || x >= sw || y >= sh {
			return 0
		}
		return float64(src.Pix[y*src.Stride+4*x+c])
	}

	for y := 0; y < dh; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+4*dw]
		for x := 0; x < dw; x++ {
			p := inv.Apply(geom.Pt(float64(x), float64(y)))
			px := row[4*x : 4*x+4]
			if !(p.X > -1 && p.Y > -1 && p.X < float64(sw) && p.Y < float64(sh)) {
				px[0], px[1], px[2], px[3] = 0, 0, 0, 0
				continue
			}

			fx, fy := math.Floor(p.X), math.Floor(p.Y)
			ax, ay := p.X-fx, p.Y-fy
			// Snap near-integral coordinates so exact mappings copy pixels exactly.
			if ax < 1e-9 {
				ax = 0
			} else if ax > 1-1e-9 {
				ax, fx = 0, fx+1
			}
			if ay < 1e-9 {
				ay = 0
			} else if ay > 1-1e-9 {
				ay, fy = 0, fy+1
			}
			x0, y0 := int(fx), int(fy)
			if x0 < -1 || y0 < -1 || x0 >= sw || y0 >= sh {
				px[0], px[1], px[2], px[3] = 0, 0, 0, 0
				continue
			}

			for c := 0; c < 4; c++ {
				v := (1-ax)*(1-ay)*sample(x0, y0, c) +
					ax*(1-ay)*sample(x0+1, y0, c) +
					(1-ax)*ay*sample(x0, y0+1, c) +
					ax*ay*sample(x0+1, y0+1, c)
				px[c] = uint8(math.Min(255, math.Max(0, math.Round(v))))
			}
		}
	}
}
