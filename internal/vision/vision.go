// Package vision is the image-processing collaborator of the scanner. A Backend
// owns its buffers (Mats); callers hand them back with Release, normally through
// a Scope.
package vision

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/ivlev/scan2pdf/internal/geom"
)

// Mat is an image buffer owned by a Backend.
type Mat interface {
	Size() (width, height int)
	// Release returns the buffer to its backend. Calling it twice is a no-op.
	Release()
}

// Backend provides the primitive operations the scan pipeline is built from.
type Backend interface {
	Name() string
	// Ready blocks until the backend can be used.
	Ready(ctx context.Context) error

	FromImage(img image.Image) (Mat, error)
	ToImage(m Mat) (image.Image, error)

	// Gray converts to a single-channel luma image.
	Gray(src Mat) (Mat, error)
	// OtsuThreshold binarizes a gray image with an automatically chosen
	// threshold t. Pixels brighter than t become 255, the rest 0.
	OtsuThreshold(gray Mat) (Mat, float64, error)
	// ExternalContours returns the outer borders of the outermost foreground
	// components, compressed to their direction changes.
	ExternalContours(mask Mat) ([]geom.Contour, error)

	ContourArea(c geom.Contour) float64
	ArcLength(c geom.Contour, closed bool) float64
	ApproxPoly(c geom.Contour, epsilon float64, closed bool) geom.Contour

	PerspectiveTransform(src, dst [4]geom.Point) (geom.Transform, error)
	// WarpPerspective produces a width x height image whose pixel (x, y) samples
	// src at t^-1(x, y) bilinearly. Samples outside src are zero.
	WarpPerspective(src Mat, t geom.Transform, width, height int) (Mat, error)
}

// Factory creates a backend instance.
type Factory func() Backend

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// DefaultBackend is used when no backend name is configured.
const DefaultBackend = "native"

// Register makes a backend available by name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Open creates the backend registered under name.
func Open(name string) (Backend, error) {
	if name == "" {
		name = DefaultBackend
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown vision backend: %s (available: %v)", name, Available())
	}
	return f(), nil
}

// Available lists registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
