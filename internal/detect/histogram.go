package detect

import (
	"image"
	"math"
)

const dblEpsilon = 0x1p-52

// Histogram counts the 256 intensity levels of g.
func Histogram(g *image.Gray) [256]float64 {
	var hist [256]float64
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}
	return hist
}

// Correlation is the Pearson correlation of two histograms. Two flat
// histograms correlate perfectly.
func Correlation(h1, h2 [256]float64) float64 {
	var m1, m2 float64
	for i := range h1 {
		m1 += h1[i]
		m2 += h2[i]
	}
	m1 /= float64(len(h1))
	m2 /= float64(len(h2))

	var num, s1, s2 float64
	for i := range h1 {
		d1 := h1[i] - m1
		d2 := h2[i] - m2
		num += d1 * d2
		s1 += d1 * d1
		s2 += d2 * d2
	}
	scale := s1 * s2
	if math.Abs(scale) <= dblEpsilon {
		return 1
	}
	return num / math.Sqrt(scale)
}
