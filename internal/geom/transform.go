package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ivlev/scan2pdf/internal/scanerr"
)

// Transform is a 3x3 projective matrix in row-major order.
type Transform [9]float64

// Identity is the transform that maps every point to itself.
var Identity = Transform{1, 0, 0, 0, 1, 0, 0, 0, 1}

// PerspectiveTransform returns the transform mapping src[i] onto dst[i] for all
// four correspondences. The bottom-right coefficient is fixed to 1 and the other
// eight are found by solving the resulting linear system.
func PerspectiveTransform(src, dst [4]Point) (Transform, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -x * u, -y * u})
		b.SetVec(2*i, u)
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -x * v, -y * v})
		b.SetVec(2*i+1, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Transform{}, scanerr.DegenerateGeometry("transform", "no projective mapping between %v and %v: %v", src, dst, err)
	}

	var t Transform
	for i := 0; i < 8; i++ {
		t[i] = h.AtVec(i)
	}
	t[8] = 1
	if !t.finite() {
		return Transform{}, scanerr.DegenerateGeometry("transform", "projective mapping is not finite")
	}
	return t, nil
}

// Apply maps p through t.
func (t Transform) Apply(p Point) Point {
	w := t[6]*p.X + t[7]*p.Y + t[8]
	return Point{
		X: (t[0]*p.X + t[1]*p.Y + t[2]) / w,
		Y: (t[3]*p.X + t[4]*p.Y + t[5]) / w,
	}
}

// Invert returns the inverse transform, normalised so its last coefficient is 1.
func (t Transform) Invert() (Transform, error) {
	m := mat.NewDense(3, 3, t[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Transform{}, scanerr.DegenerateGeometry("transform", "transform is not invertible: %v", err)
	}
	var out Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = inv.At(r, c)
		}
	}
	if out[8] != 0 {
		scale := out[8]
		for i := range out {
			out[i] /= scale
		}
	}
	if !out.finite() {
		return Transform{}, scanerr.DegenerateGeometry("transform", "inverse transform is not finite")
	}
	return out, nil
}

func (t Transform) finite() bool {
	for _, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
