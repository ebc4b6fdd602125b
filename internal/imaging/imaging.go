// Package imaging holds the grayscale helpers shared by change detection and
// OCR preprocessing.
package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ToGray converts img to 8-bit luma with its origin moved to (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return dst
}

// Resize scales g to w×h with bilinear interpolation.
func Resize(g *image.Gray, w, h int) *image.Gray {
	if g.Bounds().Dx() == w && g.Bounds().Dy() == h {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Src, nil)
	return dst
}

// Binarize maps pixels above threshold to white and the rest to black.
func Binarize(g *image.Gray, threshold uint8) *image.Gray {
	dst := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		if v > threshold {
			dst.Pix[i] = 255
		}
	}
	return dst
}
