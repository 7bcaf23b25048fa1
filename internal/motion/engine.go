package motion

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/gift"
)

const (
	// ContourCutoff binarizes the background difference: above it is change.
	ContourCutoff = 50
	// DilatePasses is the number of 3x3 dilations applied to the contour mask.
	DilatePasses = 15
	// ErodePasses is the number of 3x3 erosions applied after dilating.
	ErodePasses = 10
	// DeltaCutoff binarizes the frame-to-frame difference in threshold mode.
	DeltaCutoff = 10

	// smoothSigma matches a 3x3 Gaussian kernel.
	smoothSigma = 0.8
)

var (
	// ErrNoFrame is returned when there is no frame to process.
	ErrNoFrame = errors.New("no frame")
	// ErrBoundsMismatch is returned for frames whose size differs from the engine's.
	ErrBoundsMismatch = errors.New("frame size mismatch")
)

// Engine turns frames into change signals. Implementations keep cross-frame
// state and must be driven from a single goroutine.
type Engine interface {
	// Mode reports the algorithm in use.
	Mode() Mode
	// Inner returns the inner rectangle regions are tested against.
	Inner() image.Rectangle
	// Process consumes one frame. Errors leave the engine state untouched.
	Process(frame image.Image) (*Signal, error)
}

// NewEngine builds the engine for mode sized for frames of the given bounds.
func NewEngine(mode Mode, bounds image.Rectangle) (Engine, error) {
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrBoundsMismatch, bounds)
	}

	switch mode {
	case ModeContours:
		return newContourEngine(bounds), nil
	case ModeThreshold:
		return newThresholdEngine(bounds), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// Backgrounder is implemented by engines that keep a background model.
type Backgrounder interface {
	Background() *image.NRGBA
}

func checkFrame(frame image.Image, size image.Point) error {
	if frame == nil {
		return ErrNoFrame
	}

	if got := frame.Bounds().Size(); got != size {
		return fmt.Errorf("%w: got %v, want %v", ErrBoundsMismatch, got, size)
	}

	return nil
}

// binarize maps every pixel of img above cutoff to hi and the rest to lo.
func binarize(img *image.Gray, cutoff, lo, hi uint8) {
	for i, v := range img.Pix {
		if v > cutoff {
			img.Pix[i] = hi
		} else {
			img.Pix[i] = lo
		}
	}
}

// closingFilters dilates then erodes with a 3x3 square the given number of times.
func closingFilters(dilate, erode int) []gift.Filter {
	filters := make([]gift.Filter, 0, dilate+erode)
	for i := 0; i < dilate; i++ {
		filters = append(filters, gift.Maximum(3, false))
	}

	for i := 0; i < erode; i++ {
		filters = append(filters, gift.Minimum(3, false))
	}

	return filters
}

// contourEngine compares frames against a running average.
type contourEngine struct {
	bounds image.Rectangle
	inner  image.Rectangle
	model  *background

	smooth  *gift.GIFT
	closing *gift.GIFT

	smoothed *image.NRGBA
	diff     *image.Gray
	mask     *image.Gray
}

func newContourEngine(bounds image.Rectangle) *contourEngine {
	rect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	return &contourEngine{
		bounds:   rect,
		inner:    InnerRect(rect),
		model:    newBackground(Alpha, rect),
		smooth:   gift.New(gift.GaussianBlur(smoothSigma)),
		closing:  gift.New(closingFilters(DilatePasses, ErodePasses)...),
		smoothed: image.NewNRGBA(rect),
		diff:     image.NewGray(rect),
		mask:     image.NewGray(rect),
	}
}

func (e *contourEngine) Mode() Mode {
	return ModeContours
}

func (e *contourEngine) Inner() image.Rectangle {
	return e.inner
}

func (e *contourEngine) Background() *image.NRGBA {
	return e.model.Image()
}

func (e *contourEngine) Process(frame image.Image) (*Signal, error) {
	if err := checkFrame(frame, e.bounds.Size()); err != nil {
		return nil, err
	}

	e.smooth.Draw(e.smoothed, frame)
	e.model.Update(e.smoothed)
	e.model.absDiffGray(e.smoothed, e.diff)

	binarize(e.diff, ContourCutoff, 0, Foreground)
	e.closing.Draw(e.mask, e.diff)
	// The filters interpolate in float; pin the mask back to 0/255.
	binarize(e.mask, Foreground/2, 0, Foreground)

	return AggregateRegions(e.mask, e.inner), nil
}

// thresholdEngine compares each frame with the previous one.
type thresholdEngine struct {
	bounds image.Rectangle
	inner  image.Rectangle

	gray   *gift.GIFT
	filter *gift.GIFT

	prev *image.Gray
	cur  *image.Gray
	diff *image.Gray
	mask *image.Gray
	seen bool
}

func newThresholdEngine(bounds image.Rectangle) *thresholdEngine {
	rect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	return &thresholdEngine{
		bounds: rect,
		inner:  InnerRect(rect),
		gray:   gift.New(gift.Grayscale()),
		filter: gift.New(
			gift.Mean(5, false),
			// open
			gift.Minimum(3, false),
			gift.Maximum(3, false),
			// close
			gift.Maximum(3, false),
			gift.Minimum(3, false),
		),
		prev: image.NewGray(rect),
		cur:  image.NewGray(rect),
		diff: image.NewGray(rect),
		mask: image.NewGray(rect),
	}
}

func (e *thresholdEngine) Mode() Mode {
	return ModeThreshold
}

func (e *thresholdEngine) Inner() image.Rectangle {
	return e.inner
}

func (e *thresholdEngine) Process(frame image.Image) (*Signal, error) {
	if err := checkFrame(frame, e.bounds.Size()); err != nil {
		return nil, err
	}

	e.gray.Draw(e.cur, frame)
	if !e.seen {
		copy(e.prev.Pix, e.cur.Pix)
		e.seen = true
	}

	for i := range e.cur.Pix {
		e.diff.Pix[i] = uint8(absInt(int(e.cur.Pix[i]) - int(e.prev.Pix[i])))
	}

	e.filter.Draw(e.mask, e.diff)
	// Inverted: changed pixels become 0.
	binarize(e.mask, DeltaCutoff, Foreground, 0)

	e.prev, e.cur = e.cur, e.prev

	return AggregateZeros(e.mask), nil
}
