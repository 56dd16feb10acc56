package scanner

import (
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// Policy decides how a rectified image is placed on its page.
type Policy string

const (
	// PolicyStretch fills the whole page and ignores the image aspect ratio.
	PolicyStretch Policy = "stretch-to-page"
	// PolicyFit scales the image to fit inside the page and centers it.
	PolicyFit Policy = "fit-preserve-aspect"
)

// ParsePolicy accepts the policy names and the short forms "stretch" and "fit".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stretch", string(PolicyStretch):
		return PolicyStretch, nil
	case "fit", string(PolicyFit):
		return PolicyFit, nil
	default:
		return "", fmt.Errorf("unknown page policy: %s", s)
	}
}

// PageSize is a page in PDF points (1/72 inch). The zero size means the page
// takes the size of the image placed on it.
type PageSize struct {
	Name   string
	Width  float64
	Height float64
}

var (
	A4     = PageSize{Name: "a4", Width: 210 * 72 / 25.4, Height: 297 * 72 / 25.4}
	Letter = PageSize{Name: "letter", Width: 612, Height: 792}
	Source = PageSize{Name: "source"}
)

// LookupPageSize resolves a named page size.
func LookupPageSize(name string) (PageSize, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "a4":
		return A4, nil
	case "letter":
		return Letter, nil
	case "source":
		return Source, nil
	default:
		return PageSize{}, fmt.Errorf("unknown page size: %s", name)
	}
}

// IsSource reports whether the page follows the image size.
func (s PageSize) IsSource() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s PageSize) String() string {
	if s.IsSource() {
		return "source"
	}
	return fmt.Sprintf("%s (%.2fx%.2f pt)", s.Name, s.Width, s.Height)
}

// PageOptions configures the Page Fitter.
type PageOptions struct {
	Policy Policy
	Size   PageSize
	// MaxDPI caps the resolution of the embedded image; 0 keeps it as is.
	MaxDPI float64
}

// Placement is the rectangle an image occupies on its page, in points, with
// the origin at the top-left corner of the page.
type Placement struct {
	X, Y          float64
	Width, Height float64
}

// OutputPage is a page ready to be written to a PDF.
type OutputPage struct {
	Width     float64
	Height    float64
	Placement Placement
	Image     image.Image
}

// FitPage places img on a page according to opts.
func FitPage(img image.Image, opts PageOptions) OutputPage {
	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())

	if opts.Size.IsSource() {
		return OutputPage{
			Width:     iw,
			Height:    ih,
			Placement: Placement{Width: iw, Height: ih},
			Image:     img,
		}
	}

	pw, ph := opts.Size.Width, opts.Size.Height
	page := OutputPage{Width: pw, Height: ph}

	switch opts.Policy {
	case PolicyFit:
		docAspect := iw / ih
		pageAspect := pw / ph
		var w, h float64
		if docAspect > pageAspect {
			w = pw
			h = w / docAspect
		} else {
			h = ph
			w = h * docAspect
		}
		page.Placement = Placement{X: (pw - w) / 2, Y: (ph - h) / 2, Width: w, Height: h}
	default:
		page.Placement = Placement{Width: pw, Height: ph}
	}

	page.Image = limitResolution(img, page.Placement, opts.MaxDPI)
	return page
}

// limitResolution downsamples img when it would be embedded above maxDPI.
func limitResolution(img image.Image, pl Placement, maxDPI float64) image.Image {
	if maxDPI <= 0 {
		return img
	}
	b := img.Bounds()
	tw := int(math.Round(pl.Width / 72 * maxDPI))
	th := int(math.Round(pl.Height / 72 * maxDPI))
	if tw >= b.Dx() && th >= b.Dy() {
		return img
	}
	if tw > b.Dx() {
		tw = b.Dx()
	}
	if th > b.Dy() {
		th = b.Dy()
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
