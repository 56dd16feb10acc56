package vision

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/ivlev/scan2pdf/internal/geom"
	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/system"
)

func init() {
	Register("native", func() Backend { return NewNative() })
}

// Native is the pure Go backend. Its buffers come from the shared image pool
// and go back to it on Release.
type Native struct{}

func NewNative() *Native {
	return &Native{}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Ready(ctx context.Context) error {
	return ctx.Err()
}

// nativeMat holds exactly one of rgba or gray.
type nativeMat struct {
	rgba *image.RGBA
	gray *image.Gray

	once     sync.Once
	released atomic.Bool
}

func (m *nativeMat) Size() (int, int) {
	if m.rgba != nil {
		return m.rgba.Rect.Dx(), m.rgba.Rect.Dy()
	}
	if m.gray != nil {
		return m.gray.Rect.Dx(), m.gray.Rect.Dy()
	}
	return 0, 0
}

func (m *nativeMat) Release() {
	m.once.Do(func() {
		m.released.Store(true)
		if m.rgba != nil {
			system.PutImage(m.rgba)
		}
		if m.gray != nil {
			system.PutGray(m.gray)
		}
	})
}

func (n *Native) mat(m Mat, stage string) (*nativeMat, error) {
	nm, ok := m.(*nativeMat)
	if !ok || nm == nil {
		return nil, scanerr.ExternalLibrary(stage, fmt.Errorf("mat %T does not belong to the native backend", m))
	}
	if nm.released.Load() {
		return nil, scanerr.ExternalLibrary(stage, fmt.Errorf("mat used after release"))
	}
	return nm, nil
}

func (n *Native) grayMat(m Mat, stage string) (*image.Gray, error) {
	nm, err := n.mat(m, stage)
	if err != nil {
		return nil, err
	}
	if nm.gray == nil {
		return nil, scanerr.ExternalLibrary(stage, fmt.Errorf("expected a single-channel mat"))
	}
	return nm.gray, nil
}

func (n *Native) FromImage(img image.Image) (Mat, error) {
	if img == nil {
		return nil, scanerr.InvalidInput("read", "no image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, scanerr.InvalidInput("read", "image has zero area (%dx%d)", b.Dx(), b.Dy())
	}
	dst := system.GetImage(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return &nativeMat{rgba: dst}, nil
}

func (n *Native) ToImage(m Mat) (image.Image, error) {
	nm, err := n.mat(m, "export")
	if err != nil {
		return nil, err
	}
	if nm.gray != nil {
		out := image.NewGray(nm.gray.Rect)
		copy(out.Pix, nm.gray.Pix)
		return out, nil
	}
	out := image.NewRGBA(nm.rgba.Rect)
	copy(out.Pix, nm.rgba.Pix)
	return out, nil
}

// Gray uses the ITU-R BT.601 luma weights, the same as color.GrayModel.
func (n *Native) Gray(src Mat) (Mat, error) {
	nm, err := n.mat(src, "grayscale")
	if err != nil {
		return nil, err
	}
	if nm.gray != nil {
		dst := system.GetGray(nm.gray.Rect)
		copy(dst.Pix, nm.gray.Pix)
		return &nativeMat{gray: dst}, nil
	}

	rgba := nm.rgba
	dst := system.GetGray(rgba.Rect)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	for y := 0; y < h; y++ {
		s := rgba.Pix[y*rgba.Stride : y*rgba.Stride+4*w]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := range d {
			r, g, b := uint32(s[4*x]), uint32(s[4*x+1]), uint32(s[4*x+2])
			d[x] = uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
		}
	}
	return &nativeMat{gray: dst}, nil
}

func (n *Native) OtsuThreshold(gray Mat) (Mat, float64, error) {
	g, err := n.grayMat(gray, "threshold")
	if err != nil {
		return nil, 0, err
	}
	mask, t, err := otsuBinarize(g)
	if err != nil {
		return nil, 0, scanerr.ExternalLibrary("threshold", err)
	}
	return &nativeMat{gray: mask}, float64(t), nil
}

func (n *Native) ExternalContours(mask Mat) ([]geom.Contour, error) {
	g, err := n.grayMat(mask, "contours")
	if err != nil {
		return nil, err
	}
	return externalContours(g), nil
}

func (n *Native) ContourArea(c geom.Contour) float64 {
	return geom.Area(c)
}

func (n *Native) ArcLength(c geom.Contour, closed bool) float64 {
	return geom.Perimeter(c, closed)
}

func (n *Native) ApproxPoly(c geom.Contour, epsilon float64, closed bool) geom.Contour {
	return geom.Approximate(c, epsilon, closed)
}

func (n *Native) PerspectiveTransform(src, dst [4]geom.Point) (geom.Transform, error) {
	return geom.PerspectiveTransform(src, dst)
}

func (n *Native) WarpPerspective(src Mat, t geom.Transform, width, height int) (Mat, error) {
	nm, err := n.mat(src, "warp")
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, scanerr.DegenerateGeometry("warp", "target size %dx%d", width, height)
	}
	inv, err := t.Invert()
	if err != nil {
		return nil, err
	}
	rgba := nm.rgba
	if rgba == nil {
		rgba = grayToRGBA(nm.gray)
		defer system.PutImage(rgba)
	}
	dst := system.GetImage(image.Rect(0, 0, width, height))
	warpBilinear(rgba, dst, inv)
	return &nativeMat{rgba: dst}, nil
}

func grayToRGBA(g *image.Gray) *image.RGBA {
	out := system.GetImage(g.Rect)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := g.Pix[y*g.Stride+x]
			i := y*out.Stride + 4*x
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 0xff
		}
	}
	return out
}
