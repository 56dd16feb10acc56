package geom

import "math"

// farthestPairIterations bounds the search for the initial split of a closed curve.
const farthestPairIterations = 3

// Approximate simplifies c with the Douglas-Peucker algorithm so that no dropped
// point lies farther than epsilon from the resulting polygon.
//
// A closed curve is split at a pair of mutually distant points and each half is
// simplified separately; a final pass removes vertices lying on an almost straight
// line between their neighbours. The result keeps the traversal order of c.
func Approximate(c Contour, epsilon float64, closed bool) Contour {
	n := len(c)
	if n < 3 || epsilon < 0 {
		return append(Contour(nil), c...)
	}
	if !closed {
		keep := make([]bool, n)
		keep[0], keep[n-1] = true, true
		douglasPeucker(c, 0, n-1, epsilon, keep)
		return collect(c, keep)
	}

	start, end := 0, 0
	for i := 0; i < farthestPairIterations; i++ {
		far := farthestFrom(c, start)
		if far == end && i > 0 {
			break
		}
		start, end = far, start
	}
	if start == end || c[start].Dist(c[end]) <= epsilon {
		return Contour{c[start]}
	}
	if start > end {
		start, end = end, start
	}

	// Rotate so the curve begins at start; end lands at index end-start.
	ring := make(Contour, 0, n+1)
	ring = append(ring, c[start:]...)
	ring = append(ring, c[:start]...)
	ring = append(ring, c[start])
	mid := end - start

	keep := make([]bool, len(ring))
	keep[0], keep[mid], keep[len(ring)-1] = true, true, true
	douglasPeucker(ring, 0, mid, epsilon, keep)
	douglasPeucker(ring, mid, len(ring)-1, epsilon, keep)
	keep[len(ring)-1] = false

	return removeStraight(collect(ring, keep), epsilon)
}

// douglasPeucker marks in keep the points of c[first..last] that must survive.
func douglasPeucker(c Contour, first, last int, epsilon float64, keep []bool) {
	if last-first < 2 {
		return
	}
	maxDist := -1.0
	index := first
	for i := first + 1; i < last; i++ {
		d := segmentDistance(c[i], c[first], c[last])
		if d > maxDist {
			maxDist = d
			index = i
		}
	}
	if maxDist <= epsilon {
		return
	}
	keep[index] = true
	douglasPeucker(c, first, index, epsilon, keep)
	douglasPeucker(c, index, last, epsilon, keep)
}

// removeStraight drops vertices that lie between their neighbours on an
// almost straight line.
func removeStraight(poly Contour, epsilon float64) Contour {
	limit := 0.5 * epsilon * epsilon
	for changed := true; changed && len(poly) > 3; {
		changed = false
		for i := 0; i < len(poly) && len(poly) > 3; i++ {
			prev := poly[(i+len(poly)-1)%len(poly)]
			next := poly[(i+1)%len(poly)]
			pt := poly[i]

			chord := next.Sub(prev)
			chordSq := chord.X*chord.X + chord.Y*chord.Y
			if chordSq == 0 {
				continue
			}
			area := cross(prev, pt, next)
			inner := (pt.X-prev.X)*(next.X-pt.X) + (pt.Y-prev.Y)*(next.Y-pt.Y)
			if area*area <= limit*chordSq && inner >= 0 {
				poly = append(poly[:i], poly[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return poly
}

func farthestFrom(c Contour, from int) int {
	best, bestDist := from, -1.0
	for i, p := range c {
		dx, dy := p.X-c[from].X, p.Y-c[from].Y
		if d := dx*dx + dy*dy; d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func collect(c Contour, keep []bool) Contour {
	out := make(Contour, 0, 8)
	for i, k := range keep {
		if k {
			out = append(out, c[i])
		}
	}
	return out
}

// segmentDistance is the distance from p to the line through a and b, or to a
// when a and b coincide.
func segmentDistance(p, a, b Point) float64 {
	length := a.Dist(b)
	if length == 0 {
		return p.Dist(a)
	}
	return math.Abs(cross(a, b, p)) / length
}
