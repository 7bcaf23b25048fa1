package motion

import (
	"image"
	"math"
	"sync"
)

// Alpha is the smoothing factor of the running average.
const Alpha = 0.05

// background is a per-pixel running average of RGB frames, kept in float32
// so slow drifts are not lost to 8-bit rounding.
type background struct {
	sync.RWMutex
	alpha  float32
	bounds image.Rectangle
	primed bool

	// avg holds three channels per pixel, row major.
	avg []float32
}

func newBackground(alpha float32, bounds image.Rectangle) *background {
	return &background{
		alpha:  alpha,
		bounds: bounds,
		avg:    make([]float32, bounds.Dx()*bounds.Dy()*3),
	}
}

// Update folds in into the average. The first frame seeds the average as is.
func (b *background) Update(in *image.NRGBA) {
	b.Lock()
	defer b.Unlock()

	w, h := b.bounds.Dx(), b.bounds.Dy()
	keep := 1 - b.alpha

	for y := 0; y < h; y++ {
		row := in.Pix[y*in.Stride : y*in.Stride+w*4]
		avg := b.avg[y*w*3 : (y+1)*w*3]

		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				v := float32(row[x*4+c])
				if !b.primed {
					avg[x*3+c] = v
					continue
				}

				avg[x*3+c] = avg[x*3+c]*keep + v*b.alpha
			}
		}
	}

	b.primed = true
}

// absDiffGray writes the grayscale absolute difference between in and the
// 8-bit rendition of the average into out.
func (b *background) absDiffGray(in *image.NRGBA, out *image.Gray) {
	b.RLock()
	defer b.RUnlock()

	w, h := b.bounds.Dx(), b.bounds.Dy()

	for y := 0; y < h; y++ {
		row := in.Pix[y*in.Stride : y*in.Stride+w*4]
		avg := b.avg[y*w*3 : (y+1)*w*3]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]

		for x := 0; x < w; x++ {
			var d [3]int
			for c := 0; c < 3; c++ {
				d[c] = absInt(int(row[x*4+c]) - int(quantize(avg[x*3+c])))
			}

			dst[x] = luma(d[0], d[1], d[2])
		}
	}
}

// Image renders the average as an 8-bit picture.
func (b *background) Image() *image.NRGBA {
	b.RLock()
	defer b.RUnlock()

	w, h := b.bounds.Dx(), b.bounds.Dy()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	for i := 0; i < w*h; i++ {
		img.Pix[i*4] = quantize(b.avg[i*3])
		img.Pix[i*4+1] = quantize(b.avg[i*3+1])
		img.Pix[i*4+2] = quantize(b.avg[i*3+2])
		img.Pix[i*4+3] = 0xff
	}

	return img
}

func quantize(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(float64(v)))
	}
}

// luma uses the ITU-R 601 weights.
func luma(r, g, b int) uint8 {
	return uint8((299*r + 587*g + 114*b + 500) / 1000)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
