package vision

import (
	"image"
	"math"

	"github.com/ernyoke/imger/threshold"
)

// otsuLevel picks the threshold maximising the between-class variance of the
// histogram of g. Levels where either class is empty are skipped; among equal
// maxima the lowest level wins.
func otsuLevel(g *image.Gray) uint8 {
	var hist [256]int
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}

	total := float64(w * h)
	if total == 0 {
		return 0
	}
	scale := 1 / total

	var mu float64
	for i, c := range hist {
		mu += float64(i) * float64(c)
	}
	mu *= scale

	// machine epsilon of float32
	const eps = 1.1920929e-07

	var q1, mu1, maxSigma float64
	var level int
	for i := 0; i < 256; i++ {
		p := float64(hist[i]) * scale
		mu1 *= q1
		q1 += p
		q2 := 1 - q1
		if math.Min(q1, q2) < eps || math.Max(q1, q2) > 1-eps {
			continue
		}
		mu1 = (mu1 + float64(i)*p) / q1
		mu2 := (mu - q1*mu1) / q2
		sigma := q1 * q2 * (mu1 - mu2) * (mu1 - mu2)
		if sigma > maxSigma {
			maxSigma = sigma
			level = i
		}
	}
	return uint8(level)
}

// otsuBinarize thresholds g at its Otsu level with Imger's binary threshold.
// Imger's OtsuThreshold picks its own level, so the level is computed here and
// passed in explicitly. Pixels equal to the level are background.
func otsuBinarize(g *image.Gray) (*image.Gray, uint8, error) {
	t := otsuLevel(g)
	mask, err := threshold.Threshold(g, t, threshold.ThreshBinary)
	if err != nil {
		return nil, 0, err
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		for x, v := range src {
			if v == t {
				dst[x] = 0
			}
		}
	}
	return mask, t, nil
}
