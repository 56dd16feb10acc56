//go:build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ivlev/scan2pdf/internal/geom"
	"github.com/ivlev/scan2pdf/internal/scanerr"
)

func init() {
	Register("opencv", func() Backend { return NewOpenCV() })
}

// OpenCV runs the pipeline primitives on gocv. Build with -tags gocv.
type OpenCV struct{}

func NewOpenCV() *OpenCV {
	return &OpenCV{}
}

func (o *OpenCV) Name() string { return "opencv" }

func (o *OpenCV) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gocv.NewMat()
	defer m.Close()
	if !m.Empty() {
		return scanerr.ExternalLibrary("init", fmt.Errorf("opencv returned a non-empty new mat"))
	}
	return nil
}

type cvMat struct {
	m    gocv.Mat
	once sync.Once
}

func (c *cvMat) Size() (int, int) {
	return c.m.Cols(), c.m.Rows()
}

func (c *cvMat) Release() {
	c.once.Do(func() { c.m.Close() })
}

func unwrap(m Mat, stage string) (gocv.Mat, error) {
	c, ok := m.(*cvMat)
	if !ok || c == nil {
		return gocv.Mat{}, scanerr.ExternalLibrary(stage, fmt.Errorf("mat %T does not belong to the opencv backend", m))
	}
	return c.m, nil
}

func (o *OpenCV) FromImage(img image.Image) (Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, scanerr.InvalidInput("read", "image has zero area")
	}
	m, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, scanerr.ExternalLibrary("read", err)
	}
	return &cvMat{m: m}, nil
}

func (o *OpenCV) ToImage(m Mat) (image.Image, error) {
	src, err := unwrap(m, "export")
	if err != nil {
		return nil, err
	}
	img, err := src.ToImage()
	if err != nil {
		return nil, scanerr.ExternalLibrary("export", err)
	}
	return img, nil
}

func (o *OpenCV) Gray(src Mat) (Mat, error) {
	s, err := unwrap(src, "grayscale")
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	switch s.Channels() {
	case 1:
		s.CopyTo(&dst)
	case 3:
		gocv.CvtColor(s, &dst, gocv.ColorBGRToGray)
	default:
		gocv.CvtColor(s, &dst, gocv.ColorBGRAToGray)
	}
	return &cvMat{m: dst}, nil
}

func (o *OpenCV) OtsuThreshold(gray Mat) (Mat, float64, error) {
	g, err := unwrap(gray, "threshold")
	if err != nil {
		return nil, 0, err
	}
	dst := gocv.NewMat()
	t := gocv.Threshold(g, &dst, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return &cvMat{m: dst}, float64(t), nil
}

func (o *OpenCV) ExternalContours(mask Mat) ([]geom.Contour, error) {
	m, err := unwrap(mask, "contours")
	if err != nil {
		return nil, err
	}
	found := gocv.FindContours(m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer found.Close()

	contours := make([]geom.Contour, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		contours = append(contours, fromPoints(found.At(i).ToPoints()))
	}
	return contours, nil
}

func (o *OpenCV) ContourArea(c geom.Contour) float64 {
	pv := toPointVector(c)
	defer pv.Close()
	return gocv.ContourArea(pv)
}

func (o *OpenCV) ArcLength(c geom.Contour, closed bool) float64 {
	pv := toPointVector(c)
	defer pv.Close()
	return gocv.ArcLength(pv, closed)
}

func (o *OpenCV) ApproxPoly(c geom.Contour, epsilon float64, closed bool) geom.Contour {
	pv := toPointVector(c)
	defer pv.Close()
	approx := gocv.ApproxPolyDP(pv, epsilon, closed)
	defer approx.Close()
	return fromPoints(approx.ToPoints())
}

func (o *OpenCV) PerspectiveTransform(src, dst [4]geom.Point) (geom.Transform, error) {
	sv := toPoint2fVector(src)
	defer sv.Close()
	dv := toPoint2fVector(dst)
	defer dv.Close()

	m := gocv.GetPerspectiveTransform2f(sv, dv)
	defer m.Close()
	if m.Empty() {
		return geom.Transform{}, scanerr.DegenerateGeometry("transform", "opencv found no mapping")
	}
	var t geom.Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			t[r*3+c] = m.GetDoubleAt(r, c)
		}
	}
	return t, nil
}

func (o *OpenCV) WarpPerspective(src Mat, t geom.Transform, width, height int) (Mat, error) {
	s, err := unwrap(src, "warp")
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, scanerr.DegenerateGeometry("warp", "target size %dx%d", width, height)
	}
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, t[r*3+c])
		}
	}
	dst := gocv.NewMat()
	gocv.WarpPerspective(s, &dst, m, image.Pt(width, height))
	return &cvMat{m: dst}, nil
}

func fromPoints(pts []image.Point) geom.Contour {
	c := make(geom.Contour, len(pts))
	for i, p := range pts {
		c[i] = geom.FromImagePoint(p)
	}
	return c
}

func toPointVector(c geom.Contour) gocv.PointVector {
	pts := make([]image.Point, len(c))
	for i, p := range c {
		pts[i] = p.Image()
	}
	return gocv.NewPointVectorFromPoints(pts)
}

func toPoint2fVector(q [4]geom.Point) gocv.Point2fVector {
	pts := make([]gocv.Point2f, 4)
	for i, p := range q {
		pts[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return gocv.NewPoint2fVectorFromPoints(pts)
}
