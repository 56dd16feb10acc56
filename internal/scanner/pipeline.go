// Package scanner turns a photo of a document into an upright page image:
// binarize, pick the largest outline, reduce it to four corners, order them,
// warp the quadrilateral to a rectangle and place the result on a page.
package scanner

import (
	"context"
	"image"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/scan2pdf/internal/geom"
	"github.com/ivlev/scan2pdf/internal/scanerr"
	"github.com/ivlev/scan2pdf/internal/vision"
)

// DefaultApproxFactor is the polygon tolerance as a fraction of the contour perimeter.
const DefaultApproxFactor = 0.02

// Options configures a Pipeline.
type Options struct {
	Detector     Detector
	ApproxFactor float64
	Page         PageOptions
}

// Pipeline runs the scan stages on a vision backend. A Pipeline holds no
// per-run state, so one instance can serve concurrent Run calls.
type Pipeline struct {
	backend      vision.Backend
	detector     Detector
	approxFactor float64
	page         PageOptions
	log          logrus.FieldLogger
}

// Result is the outcome of a successful run.
type Result struct {
	Detector  string
	Corners   geom.Quad
	Contour   geom.Contour
	Threshold float64
	Width     int
	Height    int
	Image     image.Image
	Page      OutputPage
}

// New creates a pipeline. A nil detector means contour detection and a nil
// logger means the logrus standard logger.
func New(backend vision.Backend, opts Options, log logrus.FieldLogger) *Pipeline {
	if opts.Detector == nil {
		opts.Detector = ContourDetector{}
	}
	if opts.ApproxFactor <= 0 {
		opts.ApproxFactor = DefaultApproxFactor
	}
	if opts.Page.Policy == "" {
		opts.Page.Policy = PolicyStretch
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		backend:      backend,
		detector:     opts.Detector,
		approxFactor: opts.ApproxFactor,
		page:         opts.Page,
		log:          log.WithField("detector", opts.Detector.Name()),
	}
}

// Backend returns the vision backend the pipeline runs on.
func (p *Pipeline) Backend() vision.Backend {
	return p.backend
}

// Run executes every stage on img. All intermediate buffers are released
// before Run returns, whether it succeeds or not.
func (p *Pipeline) Run(ctx context.Context, img image.Image) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.backend.Ready(ctx); err != nil {
		return nil, scanerr.ExternalLibrary("init", err)
	}

	scope := vision.NewScope()
	defer scope.Close()

	if img == nil || img.Bounds().Empty() {
		return nil, scanerr.InvalidInput("read", "image is empty")
	}
	src, err := scope.Keep(p.backend.FromImage(img))
	if err != nil {
		return nil, scanerr.ExternalLibrary("read", err)
	}

	det, err := p.detector.Detect(p, scope, src)
	if err != nil {
		p.log.WithError(err).Debug("detection failed")
		return nil, err
	}
	quad := geom.OrderCorners(det.Corners)
	p.log.WithField("corners", quad.Points()).Debug("corners ordered")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	warped, err := p.Rectify(scope, src, quad)
	if err != nil {
		return nil, err
	}
	out, err := p.backend.ToImage(warped)
	if err != nil {
		return nil, scanerr.ExternalLibrary("export", err)
	}

	w, h := warped.Size()
	return &Result{
		Detector:  p.detector.Name(),
		Corners:   quad,
		Contour:   det.Contour,
		Threshold: det.Threshold,
		Width:     w,
		Height:    h,
		Image:     out,
		Page:      p.FitPage(out),
	}, nil
}

// Binarize converts src to gray and applies Otsu's threshold. It returns the
// mask (owned by scope) and the chosen threshold.
func (p *Pipeline) Binarize(scope *vision.Scope, src vision.Mat) (vision.Mat, float64, error) {
	if w, h := src.Size(); w <= 0 || h <= 0 {
		return nil, 0, scanerr.InvalidInput("binarize", "image has zero area (%dx%d)", w, h)
	}
	gray, err := scope.Keep(p.backend.Gray(src))
	if err != nil {
		return nil, 0, scanerr.ExternalLibrary("binarize", err)
	}
	mask, threshold, err := p.backend.OtsuThreshold(gray)
	scope.Track(mask)
	if err != nil {
		return nil, 0, scanerr.ExternalLibrary("binarize", err)
	}
	p.log.WithField("threshold", threshold).Debug("image binarized")
	return mask, threshold, nil
}

// SelectContour returns the external contour of mask with the largest area.
// Of equally large contours the first one found wins.
func (p *Pipeline) SelectContour(mask vision.Mat) (geom.Contour, error) {
	contours, err := p.backend.ExternalContours(mask)
	if err != nil {
		return nil, scanerr.ExternalLibrary("contours", err)
	}

	var best geom.Contour
	var bestArea float64
	for _, c := range contours {
		if area := p.backend.ContourArea(c); area > bestArea {
			best, bestArea = c, area
		}
	}
	if best == nil {
		return nil, scanerr.NoDocumentFound("contours", "%d contours, none with positive area", len(contours))
	}

	p.log.WithFields(logrus.Fields{
		"contours": len(contours),
		"area":     bestArea,
		"points":   len(best),
	}).Debug("largest contour selected")
	return best, nil
}

// ApproximateQuad simplifies c with a tolerance proportional to its perimeter
// and requires exactly four vertices.
func (p *Pipeline) ApproximateQuad(c geom.Contour) ([4]geom.Point, error) {
	epsilon := p.approxFactor * p.backend.ArcLength(c, true)
	poly := p.backend.ApproxPoly(c, epsilon, true)

	p.log.WithFields(logrus.Fields{
		"epsilon":  epsilon,
		"vertices": len(poly),
	}).Debug("contour approximated")

	if len(poly) != 4 {
		return [4]geom.Point{}, scanerr.NotAQuadrilateral("approximate", "document must have 4 corners, found %d", len(poly))
	}
	return [4]geom.Point{poly[0], poly[1], poly[2], poly[3]}, nil
}

// Rectify warps the ordered quadrilateral of src onto an upright rectangle.
// The returned Mat is owned by scope.
func (p *Pipeline) Rectify(scope *vision.Scope, src vision.Mat, quad geom.Quad) (vision.Mat, error) {
	fw, fh := quad.Size()
	w, h := int(math.Round(fw)), int(math.Round(fh))
	if w <= 0 || h <= 0 {
		return nil, scanerr.DegenerateGeometry("rectify", "target size %dx%d", w, h)
	}
	if err := quad.Validate(); err != nil {
		return nil, err
	}

	t, err := p.backend.PerspectiveTransform(quad, geom.RectQuad(0, 0, float64(w), float64(h)))
	if err != nil {
		return nil, scanerr.ExternalLibrary("rectify", err)
	}
	warped, err := scope.Keep(p.backend.WarpPerspective(src, t, w, h))
	if err != nil {
		return nil, scanerr.ExternalLibrary("rectify", err)
	}

	p.log.WithFields(logrus.Fields{"width": w, "height": h}).Debug("image rectified")
	return warped, nil
}

// FitPage places a rectified image on the configured page.
func (p *Pipeline) FitPage(img image.Image) OutputPage {
	return FitPage(img, p.page)
}
