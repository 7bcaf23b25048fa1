package preview

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/tcolgate/ratnav/internal/motion"
)

//nolint:gochecknoglobals // Fixed overlay colour.
var innerColor = color.NRGBA{G: 0xff, A: 0xff}

// annotate returns a copy of frame with the inner rectangle and the region
// boxes drawn on it.
func annotate(frame image.Image, inner image.Rectangle, regions []motion.Region) *image.NRGBA {
	img := imaging.Clone(frame)

	outline(img, inner, innerColor)

	pal := colorful.FastWarmPalette(len(regions))
	for i, r := range regions {
		outline(img, r.Bounds, pal[i])
	}

	return img
}

// outline draws the one pixel border of r.
func outline(img draw.Image, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}

	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}
