package vision

import (
	"image"

	"github.com/ivlev/scan2pdf/internal/geom"
)

// Cell states of the padded label grid.
const (
	cellBackground uint8 = iota
	cellForeground
	cellOuter   // background reachable from the image frame
	cellVisited // foreground already assigned to a component
)

// Moore neighbourhood, counterclockwise on screen starting east.
var neighbours = [8]image.Point{
	{1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}, {0, 1}, {1, 1},
}

const dirWest = 4

// labelGrid is the mask padded by one background pixel on every side, so the
// frame itself is background and border following never leaves the grid.
type labelGrid struct {
	w, h  int
	cells []uint8
}

func newLabelGrid(mask *image.Gray) *labelGrid {
	mw, mh := mask.Rect.Dx(), mask.Rect.Dy()
	g := &labelGrid{w: mw + 2, h: mh + 2}
	g.cells = make([]uint8, g.w*g.h)
	for y := 0; y < mh; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+mw]
		for x, v := range row {
			if v != 0 {
				g.cells[(y+1)*g.w+x+1] = cellForeground
			}
		}
	}
	return g
}

func (g *labelGrid) at(x, y int) uint8 {
	return g.cells[y*g.w+x]
}

func (g *labelGrid) isForeground(x, y int) bool {
	c := g.cells[y*g.w+x]
	return c == cellForeground || c == cellVisited
}

// fill floods from (x, y) over cells equal to from, marking them to. Background
// is 4-connected and foreground 8-connected. Each popped seed paints its whole
// horizontal run, then pushes one seed per run found in the rows above and below.
func (g *labelGrid) fill(x, y int, from, to uint8, eight bool) {
	if g.cells[y*g.w+x] != from {
		return
	}
	stack := []image.Point{{X: x, Y: y}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		row := p.Y * g.w
		if g.cells[row+p.X] != from {
			continue
		}
		l, r := p.X, p.X
		for l > 0 && g.cells[row+l-1] == from {
			l--
		}
		for r < g.w-1 && g.cells[row+r+1] == from {
			r++
		}
		for i := l; i <= r; i++ {
			g.cells[row+i] = to
		}

		lo, hi := l, r
		if eight {
			lo, hi = max(l-1, 0), min(r+1, g.w-1)
		}
		for _, ny := range [2]int{p.Y - 1, p.Y + 1} {
			if ny < 0 || ny >= g.h {
				continue
			}
			nrow := ny * g.w
			inRun := false
			for i := lo; i <= hi; i++ {
				if g.cells[nrow+i] != from {
					inRun = false
					continue
				}
				if !inRun {
					stack = append(stack, image.Point{X: i, Y: ny})
					inRun = true
				}
			}
		}
	}
}

// externalContours finds the outer border of every 8-connected foreground
// component that is not enclosed by another component, in raster order of the
// component's first pixel.
func externalContours(mask *image.Gray) []geom.Contour {
	g := newLabelGrid(mask)
	g.fill(0, 0, cellBackground, cellOuter, false)

	var contours []geom.Contour
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			if g.at(x, y) != cellForeground {
				continue
			}
			// The first pixel of a component always has background to its
			// left; the component is outermost when that background is.
			if g.at(x-1, y) == cellOuter {
				contours = append(contours, compressChain(g.traceBorder(x, y)))
			}
			g.fill(x, y, cellForeground, cellVisited, true)
		}
	}
	return contours
}

// traceBorder follows the outer border starting at (x0, y0), whose west
// neighbour is background. Points are returned in unpadded coordinates.
func (g *labelGrid) traceBorder(x0, y0 int) []image.Point {
	start := image.Point{X: x0, Y: y0}

	// Clockwise from west for the last pixel of the border.
	first, found := image.Point{}, false
	for k := 0; k < 8; k++ {
		n := neighbours[(dirWest-k+8)%8]
		q := image.Point{X: x0 + n.X, Y: y0 + n.Y}
		if g.isForeground(q.X, q.Y) {
			first, found = q, true
			break
		}
	}
	if !found {
		return []image.Point{{X: x0 - 1, Y: y0 - 1}}
	}

	var border []image.Point
	prev, cur := first, start
	for {
		back := direction(cur, prev)
		var next image.Point
		for k := 1; k <= 8; k++ {
			n := neighbours[(back+k)%8]
			q := image.Point{X: cur.X + n.X, Y: cur.Y + n.Y}
			if g.isForeground(q.X, q.Y) {
				next = q
				break
			}
		}
		border = append(border, image.Point{X: cur.X - 1, Y: cur.Y - 1})
		if next == start && cur == first {
			break
		}
		prev, cur = cur, next
	}
	return border
}

func direction(from, to image.Point) int {
	d := image.Point{X: to.X - from.X, Y: to.Y - from.Y}
	for i, n := range neighbours {
		if n == d {
			return i
		}
	}
	return 0
}

// compressChain keeps only the points where the chain changes direction, so
// straight horizontal, vertical and diagonal runs collapse to their ends.
func compressChain(chain []image.Point) geom.Contour {
	n := len(chain)
	if n <= 2 {
		c := make(geom.Contour, n)
		for i, p := range chain {
			c[i] = geom.FromImagePoint(p)
		}
		return c
	}
	var c geom.Contour
	for i, p := range chain {
		prev := chain[(i-1+n)%n]
		next := chain[(i+1)%n]
		in := direction(prev, p)
		out := direction(p, next)
		if in != out {
			c = append(c, geom.FromImagePoint(p))
		}
	}
	if len(c) == 0 {
		c = append(c, geom.FromImagePoint(chain[0]))
	}
	return c
}
