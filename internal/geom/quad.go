package geom

import (
	"math"
	"sort"

	"github.com/ivlev/scan2pdf/internal/scanerr"
)

// Corner roles of an ordered quadrilateral.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

const degenerateTolerance = 1e-9

// Quad holds four corners; once produced by OrderCorners they are indexed by
// TopLeft, TopRight, BottomRight and BottomLeft.
type Quad [4]Point

// OrderCorners assigns canonical roles to four unordered points: the two with
// the smallest y form the top edge (left to right), the other two the bottom
// edge (right to left). Ties keep input order.
//
// Documents rotated by close to 45 degrees get mislabelled corners.
func OrderCorners(pts [4]Point) Quad {
	sorted := pts
	sort.SliceStable(sorted[:], func(i, j int) bool {
		return sorted[i].Y < sorted[j].Y
	})
	top := sorted[:2]
	bottom := sorted[2:]
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].X < top[j].X
	})
	sort.SliceStable(bottom, func(i, j int) bool {
		return bottom[i].X > bottom[j].X
	})
	return Quad{top[0], top[1], bottom[0], bottom[1]}
}

// RectQuad returns the ordered corners of r.
func RectQuad(x0, y0, x1, y1 float64) Quad {
	return Quad{Pt(x0, y0), Pt(x1, y0), Pt(x1, y1), Pt(x0, y1)}
}

// Size returns the upright target size: the larger of the horizontal extents of
// the top and bottom edges and the larger of the vertical extents of the left
// and right edges. Using the maximum keeps skewed content from being cropped.
func (q Quad) Size() (width, height float64) {
	width = math.Max(
		math.Abs(q[TopRight].X-q[TopLeft].X),
		math.Abs(q[BottomRight].X-q[BottomLeft].X),
	)
	height = math.Max(
		math.Abs(q[BottomLeft].Y-q[TopLeft].Y),
		math.Abs(q[BottomRight].Y-q[TopRight].Y),
	)
	return width, height
}

// Validate rejects quadrilaterals with coincident corners or three collinear corners.
func (q Quad) Validate() error {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if q[i].Dist(q[j]) <= degenerateTolerance {
				return scanerr.DegenerateGeometry("quad", "corners %d and %d coincide at %v", i, j, q[i])
			}
		}
	}
	for skip := 0; skip < 4; skip++ {
		var tri []Point
		for i := 0; i < 4; i++ {
			if i != skip {
				tri = append(tri, q[i])
			}
		}
		if math.Abs(cross(tri[0], tri[1], tri[2])) <= degenerateTolerance {
			return scanerr.DegenerateGeometry("quad", "corners %v, %v and %v are collinear", tri[0], tri[1], tri[2])
		}
	}
	return nil
}

// Points returns the corners as a slice in role order.
func (q Quad) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// Contour returns the corners as a closed contour.
func (q Quad) Contour() Contour {
	return Contour(q.Points())
}
