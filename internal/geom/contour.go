// Package geom contains the plane geometry behind document rectification:
// contours, polygon simplification, corner ordering and projective transforms.
package geom

import (
	"fmt"
	"image"
	"math"
)

// Point is a real-valued image-space coordinate.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// FromImagePoint converts an integer pixel coordinate.
func FromImagePoint(p image.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Image rounds p to the nearest pixel.
func (p Point) Image() image.Point {
	return image.Point{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Contour is an ordered sequence of points; closed unless stated otherwise.
type Contour []Point

// Area returns the absolute enclosed area (shoelace formula).
// Contours with fewer than three points have zero area.
func Area(c Contour) float64 {
	if len(c) < 3 {
		return 0
	}
	var sum float64
	prev := c[len(c)-1]
	for _, p := range c {
		sum += prev.X*p.Y - p.X*prev.Y
		prev = p
	}
	return math.Abs(sum) / 2
}

// Perimeter returns the arc length of c, including the closing segment when closed.
func Perimeter(c Contour, closed bool) float64 {
	if len(c) < 2 {
		return 0
	}
	var length float64
	for i := 1; i < len(c); i++ {
		length += c[i].Dist(c[i-1])
	}
	if closed {
		length += c[0].Dist(c[len(c)-1])
	}
	return length
}

// Bounds returns the smallest integer rectangle containing every point.
func Bounds(c Contour) image.Rectangle {
	if len(c) == 0 {
		return image.Rectangle{}
	}
	minX, minY := c[0].X, c[0].Y
	maxX, maxY := minX, minY
	for _, p := range c[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1)
}
