package match

import (
	"image"
	"math/rand"
)

// colorBinsPerChannel gives a 4x4x4 RGB histogram, coarse enough to be
// robust against lighting differences between two photos of the same dog.
const colorBinsPerChannel = 4

// ColorScorer produces the auxiliary color-similarity signal in [0,100]
// attached to every match candidate. It is kept behind an interface so the
// signal can be swapped without touching the matcher.
type ColorScorer interface {
	Score(a, b *Fingerprint) float64
}

// HistogramScorer compares normalized RGB histograms by intersection. This
// is the default signal.
type HistogramScorer struct{}

func (HistogramScorer) Score(a, b *Fingerprint) float64 {
	if a.ColorHist == nil || b.ColorHist == nil {
		// Identical bytes have identical colors even when decoding failed.
		if a.ContentHash == b.ContentHash {
			return 100
		}
		return 0
	}

	var intersection float64
	for i := range a.ColorHist {
		if a.ColorHist[i] < b.ColorHist[i] {
			intersection += a.ColorHist[i]
		} else {
			intersection += b.ColorHist[i]
		}
	}
	return intersection * 100
}

// RandomScorer reproduces the legacy placeholder signal: a random value in
// [80,100) unrelated to the actual pixels. It is non-functional and kept
// only for parity with the original client behavior.
type RandomScorer struct{}

func (RandomScorer) Score(_, _ *Fingerprint) float64 {
	return rand.Float64()*20 + 80
}

// colorHistogram builds a normalized 64-bin RGB histogram of the image.
func colorHistogram(img image.Image) []float64 {
	bounds := img.Bounds()
	total := float64(bounds.Dx() * bounds.Dy())
	if total == 0 {
		return nil
	}

	hist := make([]float64, colorBinsPerChannel*colorBinsPerChannel*colorBinsPerChannel)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// 16-bit channels; keep the top two bits of each.
			ri := int(r >> 14)
			gi := int(g >> 14)
			bi := int(b >> 14)
			hist[ri*colorBinsPerChannel*colorBinsPerChannel+gi*colorBinsPerChannel+bi]++
		}
	}
	for i := range hist {
		hist[i] /= total
	}
	return hist
}
