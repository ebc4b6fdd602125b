package detect

import (
	"fmt"
	"image"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	ssimRange  = 255.0
)

// SSIM returns the mean structural similarity of two equally sized grayscale
// images, using a uniform square window and sample covariance. Only windows
// that lie entirely inside the image contribute, so borders need no padding.
// Images smaller than the window are scored with one window spanning the
// shorter side.
func SSIM(a, b *image.Gray) (float64, error) {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if b.Bounds().Dx() != w || b.Bounds().Dy() != h {
		return 0, fmt.Errorf("ssim: size mismatch %dx%d vs %dx%d", w, h, b.Bounds().Dx(), b.Bounds().Dy())
	}
	win := min(ssimWindow, w, h)
	if win < 1 {
		return 0, fmt.Errorf("ssim: empty image")
	}

	ia := newIntegral(a, nil)
	ib := newIntegral(b, nil)
	iab := newIntegral(a, b)

	n := float64(win * win)
	covNorm := 1.0
	if win > 1 {
		covNorm = n / (n - 1)
	}
	c1 := (ssimK1 * ssimRange) * (ssimK1 * ssimRange)
	c2 := (ssimK2 * ssimRange) * (ssimK2 * ssimRange)

	var total float64
	var count int
	for y := 0; y+win <= h; y++ {
		for x := 0; x+win <= w; x++ {
			sa, saa := ia.window(x, y, win)
			sb, sbb := ib.window(x, y, win)
			_, sab := iab.window(x, y, win)

			ua := float64(sa) / n
			ub := float64(sb) / n
			va := (float64(saa)/n - ua*ua) * covNorm
			vb := (float64(sbb)/n - ub*ub) * covNorm
			vab := (float64(sab)/n - ua*ub) * covNorm

			num := (2*ua*ub + c1) * (2*vab + c2)
			den := (ua*ua + ub*ub + c1) * (va + vb + c2)
			total += num / den
			count++
		}
	}
	return total / float64(count), nil
}

// integral holds summed-area tables of pixel values and of pixel products.
// With b == nil the product table is a*a, otherwise a*b and the value table
// is unused.
type integral struct {
	stride int
	sum    []int64
	prod   []int64
}

func newIntegral(a, b *image.Gray) integral {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if b == nil {
		b = a
	}
	it := integral{
		stride: w + 1,
		sum:    make([]int64, (w+1)*(h+1)),
		prod:   make([]int64, (w+1)*(h+1)),
	}
	for y := 0; y < h; y++ {
		var rowSum, rowProd int64
		rowA := a.Pix[y*a.Stride : y*a.Stride+w]
		rowB := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := 0; x < w; x++ {
			va, vb := int64(rowA[x]), int64(rowB[x])
			rowSum += va
			rowProd += va * vb
			i := (y+1)*it.stride + x + 1
			it.sum[i] = it.sum[i-it.stride] + rowSum
			it.prod[i] = it.prod[i-it.stride] + rowProd
		}
	}
	return it
}

func (it integral) window(x, y, size int) (sum, prod int64) {
	tl := y*it.stride + x
	tr := tl + size
	bl := (y+size)*it.stride + x
	br := bl + size
	return it.sum[br] - it.sum[tr] - it.sum[bl] + it.sum[tl],
		it.prod[br] - it.prod[tr] - it.prod[bl] + it.prod[tl]
}
