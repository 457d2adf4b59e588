package match

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidImage(c color.Color, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestColorHistogramNormalized(t *testing.T) {
	hist := colorHistogram(solidImage(color.RGBA{R: 200, G: 30, B: 90, A: 255}, 8, 8))
	require.Len(t, hist, 64)

	var sum float64
	for _, v := range hist {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestHistogramScorer(t *testing.T) {
	red := &Fingerprint{ColorHist: colorHistogram(solidImage(color.RGBA{R: 255, A: 255}, 4, 4))}
	alsoRed := &Fingerprint{ColorHist: colorHistogram(solidImage(color.RGBA{R: 255, A: 255}, 4, 4))}
	blue := &Fingerprint{ColorHist: colorHistogram(solidImage(color.RGBA{B: 255, A: 255}, 4, 4))}

	scorer := HistogramScorer{}
	require.Equal(t, float64(100), scorer.Score(red, alsoRed))
	require.Equal(t, float64(0), scorer.Score(red, blue))
}

func TestHistogramScorerWithoutHistograms(t *testing.T) {
	scorer := HistogramScorer{}
	a := &Fingerprint{ContentHash: "same"}
	b := &Fingerprint{ContentHash: "same"}
	c := &Fingerprint{ContentHash: "other"}

	require.Equal(t, float64(100), scorer.Score(a, b), "equal bytes imply equal colors")
	require.Equal(t, float64(0), scorer.Score(a, c))
}

func TestRandomScorerRange(t *testing.T) {
	scorer := RandomScorer{}
	for i := 0; i < 100; i++ {
		score := scorer.Score(nil, nil)
		if score < 80 || score >= 100 {
			t.Fatalf("score %f out of [80,100)", score)
		}
	}
}
