package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToGray_NormalizesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 13, 12))
	src.Set(10, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	g := ToGray(src)

	assert.Equal(t, image.Rect(0, 0, 3, 2), g.Bounds())
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), g.GrayAt(2, 1).Y)
}

func TestResize(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range g.Pix {
		g.Pix[i] = 100
	}

	same := Resize(g, 8, 8)
	assert.Same(t, g, same)

	small := Resize(g, 4, 2)
	assert.Equal(t, image.Rect(0, 0, 4, 2), small.Bounds())
	for _, v := range small.Pix {
		assert.Equal(t, uint8(100), v)
	}
}

func TestBinarize(t *testing.T) {
	g := &image.Gray{Pix: []uint8{0, 150, 151, 255}, Stride: 4, Rect: image.Rect(0, 0, 4, 1)}
	assert.Equal(t, []uint8{0, 0, 255, 255}, Binarize(g, 150).Pix)
}
