package label

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scan2pdf/internal/scanerr"
)

func grayPage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	return img
}

func TestStampBottomRight(t *testing.T) {
	src := grayPage(400, 600)
	out, err := Stamp(src, Content("abc", 2), 96)
	require.NoError(t, err)

	assert.Equal(t, src.Bounds(), out.Bounds())
	// Top-left untouched, source untouched.
	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 255}, color.NRGBAModel.Convert(out.At(5, 5)))
	assert.Equal(t, uint8(128), src.Pix[len(src.Pix)-2])

	// The quiet zone of the code is white.
	margin := 96 / 8
	r, g, b, _ := out.At(400-margin-96+1, 600-margin-96+1).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})
}

func TestStampShrinksToPage(t *testing.T) {
	out, err := Stamp(grayPage(300, 300), "x", 1000)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 300, 300), out.Bounds())
}

func TestStampTooSmall(t *testing.T) {
	_, err := Stamp(grayPage(100, 100), "x", 96)
	assert.True(t, errors.Is(err, scanerr.ErrInvalidInput))
}

func TestContent(t *testing.T) {
	assert.Equal(t, "session/3", Content("session", 3))
}
