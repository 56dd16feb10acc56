package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scan2pdf/internal/geom"
	"github.com/ivlev/scan2pdf/internal/scanerr"
)

// fillRect paints the inclusive rectangle [x0,x1]x[y0,y1].
func fillRect(img *image.Gray, x0, y0, x1, y1 int, v uint8) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func TestOtsuTwoLevels(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 40, 30))
	fillRect(g, 10, 10, 25, 20, 200)

	assert.Equal(t, uint8(0), otsuLevel(g))

	// A darker foreground on mid-gray: the threshold falls between the levels.
	fillRect(g, 0, 0, 39, 29, 60)
	fillRect(g, 5, 5, 30, 25, 180)
	level := otsuLevel(g)
	assert.GreaterOrEqual(t, level, uint8(60))
	assert.Less(t, level, uint8(180))
}

func TestOtsuUniformImage(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 8, 8))
	assert.Equal(t, uint8(0), otsuLevel(g))
}

func TestExternalContoursRectangle(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 300, 200))
	fillRect(g, 10, 10, 200, 150, 255)

	contours := externalContours(g)
	require.Len(t, contours, 1)
	assert.ElementsMatch(t, geom.Contour{
		geom.Pt(10, 10), geom.Pt(10, 150), geom.Pt(200, 150), geom.Pt(200, 10),
	}, contours[0])
	assert.InDelta(t, 190.0*140.0, geom.Area(contours[0]), 1e-9)
}

func TestExternalContoursSkipsNested(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 100, 100))
	fillRect(g, 10, 10, 90, 90, 255)
	fillRect(g, 20, 20, 80, 80, 0)
	fillRect(g, 40, 40, 60, 60, 255) // island inside the hole

	contours := externalContours(g)
	require.Len(t, contours, 1)
	assert.InDelta(t, 80.0*80.0, geom.Area(contours[0]), 1e-9)
}

func TestExternalContoursRasterOrder(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 100, 60))
	fillRect(g, 60, 5, 90, 20, 255)
	fillRect(g, 5, 30, 35, 45, 255)

	contours := externalContours(g)
	require.Len(t, contours, 2)
	assert.Equal(t, image.Rect(60, 5, 91, 21), geom.Bounds(contours[0]))
	assert.Equal(t, image.Rect(5, 30, 36, 46), geom.Bounds(contours[1]))
}

func TestExternalContoursLineAndDot(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	fillRect(g, 2, 2, 4, 2, 255)
	g.SetGray(8, 8, color.Gray{Y: 255})

	contours := externalContours(g)
	require.Len(t, contours, 2)
	assert.Equal(t, geom.Contour{geom.Pt(2, 2), geom.Pt(4, 2)}, contours[0])
	assert.Equal(t, geom.Contour{geom.Pt(8, 8)}, contours[1])
	assert.Zero(t, geom.Area(contours[0]))
}

func TestExternalContoursTouchingFrame(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 20, 10))
	fillRect(g, 0, 0, 19, 9, 255)

	contours := externalContours(g)
	require.Len(t, contours, 1)
	assert.InDelta(t, 19.0*9.0, geom.Area(contours[0]), 1e-9)
}

func solidRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func TestNativeIdentityWarp(t *testing.T) {
	n := NewNative()
	src := solidRGBA(32, 24)

	scope := NewScope()
	defer scope.Close()

	m, err := scope.Keep(n.FromImage(src))
	require.NoError(t, err)

	q := geom.RectQuad(0, 0, 32, 24)
	tr, err := n.PerspectiveTransform(q, q)
	require.NoError(t, err)

	warped, err := scope.Keep(n.WarpPerspective(m, tr, 32, 24))
	require.NoError(t, err)

	out, err := n.ToImage(warped)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.(*image.RGBA).Pix)
}

func TestNativeWarpBorderIsZero(t *testing.T) {
	n := NewNative()
	m, err := n.FromImage(solidRGBA(10, 10))
	require.NoError(t, err)
	defer m.Release()

	shift := geom.Transform{1, 0, 5, 0, 1, 0, 0, 0, 1} // move right by 5
	warped, err := n.WarpPerspective(m, shift, 10, 10)
	require.NoError(t, err)
	defer warped.Release()

	out, err := n.ToImage(warped)
	require.NoError(t, err)
	rgba := out.(*image.RGBA)
	assert.Equal(t, color.RGBA{}, rgba.RGBAAt(2, 3))
	assert.Equal(t, solidRGBA(10, 10).RGBAAt(0, 3), rgba.RGBAAt(5, 3))
}

func TestNativeGrayAndThreshold(t *testing.T) {
	n := NewNative()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	for y := 5; y < 15; y++ {
		for x := 5; x < 15; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	scope := NewScope()
	defer scope.Close()

	src, err := scope.Keep(n.FromImage(img))
	require.NoError(t, err)
	gray, err := scope.Keep(n.Gray(src))
	require.NoError(t, err)
	mask, level, err := n.OtsuThreshold(gray)
	scope.Track(mask)
	require.NoError(t, err)
	assert.Equal(t, 0.0, level)

	contours, err := n.ExternalContours(mask)
	require.NoError(t, err)
	require.Len(t, contours, 1)
	assert.InDelta(t, 81.0, n.ContourArea(contours[0]), 1e-9)
	assert.InDelta(t, 36.0, n.ArcLength(contours[0], true), 1e-9)

	_, _, err = n.OtsuThreshold(src)
	assert.True(t, errors.Is(err, scanerr.ErrExternalLibrary))
}

func TestNativeFromImageRejectsEmpty(t *testing.T) {
	_, err := NewNative().FromImage(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.True(t, errors.Is(err, scanerr.ErrInvalidInput))
}

func TestNativeUseAfterRelease(t *testing.T) {
	n := NewNative()
	m, err := n.FromImage(solidRGBA(4, 4))
	require.NoError(t, err)
	m.Release()
	m.Release()

	_, err = n.Gray(m)
	assert.True(t, errors.Is(err, scanerr.ErrExternalLibrary))
}

type recordingMat struct {
	id  int
	log *[]int
}

func (r *recordingMat) Size() (int, int) { return 1, 1 }
func (r *recordingMat) Release()         { *r.log = append(*r.log, r.id) }

func TestScopeReleasesInReverseOrder(t *testing.T) {
	var released []int
	scope := NewScope()
	a := &recordingMat{id: 1, log: &released}
	b := &recordingMat{id: 2, log: &released}
	c := &recordingMat{id: 3, log: &released}
	scope.Track(a)
	scope.Track(b)
	scope.Track(c)
	scope.Track(nil)

	assert.Equal(t, 3, scope.Len())

	scope.Close()
	scope.Close()
	assert.Equal(t, []int{3, 2, 1}, released)
	assert.Zero(t, scope.Len())
}

func TestRegistry(t *testing.T) {
	b, err := Open("")
	require.NoError(t, err)
	assert.Equal(t, "native", b.Name())

	_, err = Open("no-such-backend")
	assert.Error(t, err)
	assert.Contains(t, Available(), "native")
}

type flakyBackend struct {
	*Native
	calls int
	fail  int
}

func (f *flakyBackend) Ready(ctx context.Context) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("not loaded yet")
	}
	return nil
}

func TestServiceReadyOnce(t *testing.T) {
	fb := &flakyBackend{Native: NewNative(), fail: 1}
	svc := NewService(fb)

	assert.Error(t, svc.Ready(context.Background()))
	assert.NoError(t, svc.Ready(context.Background()))
	assert.NoError(t, svc.Ready(context.Background()))
	assert.Equal(t, 2, fb.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewService(NewNative()).Ready(ctx))
}

func TestExternalContoursDiagonalRing(t *testing.T) {
	// A diamond of diagonally touching pixels is one 8-connected component,
	// and the background inside it is closed off for 4-connected background.
	g := image.NewGray(image.Rect(0, 0, 21, 21))
	for y := 0; y < 21; y++ {
		for x := 0; x < 21; x++ {
			dx, dy := x-10, y-10
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx+dy == 3 {
				g.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	g.SetGray(10, 10, color.Gray{Y: 255}) // island inside the ring

	contours := externalContours(g)
	require.Len(t, contours, 1)
	assert.Equal(t, image.Rect(7, 7, 14, 14), geom.Bounds(contours[0]))
}

func TestExternalContoursComb(t *testing.T) {
	// Teeth hanging from a bar: every row below the bar has several runs that
	// belong to the same component.
	g := image.NewGray(image.Rect(0, 0, 60, 40))
	fillRect(g, 5, 5, 54, 8, 255)
	for x := 5; x <= 50; x += 9 {
		fillRect(g, x, 9, x+3, 34, 255)
	}
	// A tooth that only touches the bar diagonally.
	g.SetGray(55, 9, color.Gray{Y: 255})
	fillRect(g, 56, 10, 57, 30, 255)

	contours := externalContours(g)
	require.Len(t, contours, 1)
	assert.Equal(t, image.Rect(5, 5, 58, 35), geom.Bounds(contours[0]))
}

func TestOtsuLevelIsBackground(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 30, 10))
	fillRect(g, 0, 0, 9, 9, 20)
	fillRect(g, 10, 0, 19, 9, 100)
	fillRect(g, 20, 0, 29, 9, 230)

	mask, level, err := otsuBinarize(g)
	require.NoError(t, err)
	for y := 0; y < 10; y++ {
		for x := 0; x < 30; x++ {
			want := uint8(0)
			if g.GrayAt(x, y).Y > level {
				want = 255
			}
			require.Equal(t, want, mask.GrayAt(x, y).Y, "pixel %d,%d at level %d", x, y, level)
		}
	}

	// Pixels equal to the level stay background.
	at := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(at.Pix, []uint8{0, 0, 255, 255})
	mask, level, err = otsuBinarize(at)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), level)
	assert.Equal(t, []uint8{0, 0, 255, 255}, mask.Pix)
}

func TestNativeReleaseWhileInUse(t *testing.T) {
	n := NewNative()
	m, err := n.FromImage(solidRGBA(16, 16))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if g, err := n.Gray(m); err == nil {
				g.Release()
			}
		}
	}()
	m.Release()
	<-done

	_, err = n.Gray(m)
	assert.True(t, errors.Is(err, scanerr.ErrExternalLibrary))
}

func BenchmarkExternalContours(b *testing.B) {
	// A phone-size photo with one page covering most of the frame.
	g := image.NewGray(image.Rect(0, 0, 4000, 3000))
	fillRect(g, 400, 300, 3600, 2700, 255)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if len(externalContours(g)) != 1 {
			b.Fatal("expected one contour")
		}
	}
}
