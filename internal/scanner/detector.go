package scanner

import (
	"fmt"
	"image"

	"github.com/ivlev/scan2pdf/internal/geom"
	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/vision"
)

// Detection is what a Detector found in the source image.
type Detection struct {
	// Corners in detection order; the pipeline orders them.
	Corners [4]geom.Point
	// Contour and Threshold are set by the contour detector only.
	Contour   geom.Contour
	Threshold float64
}

// Detector locates the document in a source image.
type Detector interface {
	Name() string
	Detect(p *Pipeline, scope *vision.Scope, src vision.Mat) (Detection, error)
}

// NewDetector creates a detector based on the specified variant. crop is only
// used by the manual detector.
func NewDetector(variant string, crop image.Rectangle) (Detector, error) {
	switch variant {
	case "contour", "":
		return ContourDetector{}, nil
	case "manual":
		if crop.Empty() {
			return nil, fmt.Errorf("manual detector needs a non-empty crop rectangle")
		}
		return ManualDetector{Crop: crop}, nil
	case "full":
		return FullFrameDetector{}, nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}

// ContourDetector finds the document as the largest quadrilateral outline in
// the Otsu-binarized image.
type ContourDetector struct{}

func (ContourDetector) Name() string { return "contour" }

func (ContourDetector) Detect(p *Pipeline, scope *vision.Scope, src vision.Mat) (Detection, error) {
	mask, threshold, err := p.Binarize(scope, src)
	if err != nil {
		return Detection{}, err
	}
	contour, err := p.SelectContour(mask)
	if err != nil {
		return Detection{}, err
	}
	corners, err := p.ApproximateQuad(contour)
	if err != nil {
		return Detection{}, err
	}
	return Detection{Corners: corners, Contour: contour, Threshold: threshold}, nil
}

// ManualDetector uses a user-drawn crop rectangle, in pixels relative to the
// top-left corner of the image.
type ManualDetector struct {
	Crop image.Rectangle
}

func (ManualDetector) Name() string { return "manual" }

func (d ManualDetector) Detect(p *Pipeline, scope *vision.Scope, src vision.Mat) (Detection, error) {
	w, h := src.Size()
	r := d.Crop.Canon().Intersect(image.Rect(0, 0, w, h))
	if r.Empty() {
		return Detection{}, scanerr.InvalidInput("crop", "crop %v lies outside the %dx%d image", d.Crop, w, h)
	}
	q := geom.RectQuad(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
	return Detection{Corners: q}, nil
}

// FullFrameDetector treats the whole image as the document.
type FullFrameDetector struct{}

func (FullFrameDetector) Name() string { return "full" }

func (FullFrameDetector) Detect(p *Pipeline, scope *vision.Scope, src vision.Mat) (Detection, error) {
	w, h := src.Size()
	return Detection{Corners: geom.RectQuad(0, 0, float64(w), float64(h))}, nil
}
