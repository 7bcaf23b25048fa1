package motion

import (
	"image"

	"github.com/harrydb/go/img/grayscale"
)

// Foreground is the mask value of a changed pixel in contours mode.
const Foreground = 255

// Region is a connected blob of changed pixels.
type Region struct {
	// Bounds is the bounding box of the blob.
	Bounds image.Rectangle
	// Area is the number of pixels in the blob.
	Area int
}

// Signal is the outcome of processing one frame.
type Signal struct {
	// Percent is the changed share of the frame, 0 to 100.
	Percent float64
	// Inner is set when a region starts inside the inner rectangle.
	// It is only computed in contours mode.
	Inner bool
	// Regions lists the blobs found in contours mode.
	Regions []Region
	// Mask is the engine's change mask. It is overwritten by the next frame.
	Mask *image.Gray
}

// InnerRect returns the centered box of half the frame width and height.
func InnerRect(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	origin := image.Pt(bounds.Min.X+w/4, bounds.Min.Y+h/4)

	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w/2, h/2))}
}

// cornerInside reports whether p lies strictly inside r, edges excluded.
// Only the top-left corner of a region is tested, not its full extent.
func cornerInside(p image.Point, r image.Rectangle) bool {
	return p.X > r.Min.X && p.X < r.Max.X &&
		p.Y > r.Min.Y && p.Y < r.Max.Y
}

// Regions extracts the 8-connected blobs of Foreground pixels in mask.
func Regions(mask *image.Gray) []Region {
	cocos := grayscale.CoCos(mask, Foreground, grayscale.NEIGHBOR8)
	regions := make([]Region, 0, len(cocos))

	for _, coco := range cocos {
		if len(coco) == 0 {
			continue
		}

		box := image.Rectangle{Min: coco[0], Max: coco[0].Add(image.Pt(1, 1))}
		for _, p := range coco[1:] {
			box = box.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
		}

		regions = append(regions, Region{Bounds: box, Area: len(coco)})
	}

	return regions
}

// AggregateRegions sums the region areas as a percentage of the mask and
// tests every region corner against inner.
func AggregateRegions(mask *image.Gray, inner image.Rectangle) *Signal {
	regions := Regions(mask)
	sig := &Signal{Regions: regions, Mask: mask}

	area := 0
	for _, r := range regions {
		area += r.Area
		if cornerInside(r.Bounds.Min, inner) {
			sig.Inner = true
		}
	}

	sig.Percent = percentOf(area, mask.Bounds())

	return sig
}

// AggregateZeros reports the share of zero-valued pixels in mask.
func AggregateZeros(mask *image.Gray) *Signal {
	b := mask.Bounds()
	zeros := 0

	for y := 0; y < b.Dy(); y++ {
		for _, v := range mask.Pix[y*mask.Stride : y*mask.Stride+b.Dx()] {
			if v == 0 {
				zeros++
			}
		}
	}

	return &Signal{Percent: percentOf(zeros, b), Mask: mask}
}

func percentOf(n int, bounds image.Rectangle) float64 {
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	return float64(n) * 100 / float64(total)
}
