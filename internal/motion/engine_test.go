package motion

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = c.A
	}

	return img
}

func paint(img *image.NRGBA, r image.Rectangle, c color.NRGBA) *image.NRGBA {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	return img
}

var (
	black = color.NRGBA{A: 0xff}
	white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	gray  = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

func TestNewEngine(t *testing.T) {
	t.Parallel()

	bounds := image.Rect(0, 0, 64, 48)

	e, err := NewEngine(ModeContours, bounds)
	require.NoError(t, err)
	require.Equal(t, ModeContours, e.Mode())
	require.Equal(t, image.Rect(16, 12, 48, 36), e.Inner())

	_, isBackgrounder := e.(Backgrounder)
	require.True(t, isBackgrounder)

	e, err = NewEngine(ModeThreshold, bounds)
	require.NoError(t, err)
	require.Equal(t, ModeThreshold, e.Mode())

	_, err = NewEngine("sigma", bounds)
	require.ErrorIs(t, err, ErrUnknownMode)

	_, err = NewEngine(ModeContours, image.Rectangle{})
	require.ErrorIs(t, err, ErrBoundsMismatch)
}

func TestEngine_RejectsBadFrames(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeContours, ModeThreshold} {
		e, err := NewEngine(mode, image.Rect(0, 0, 32, 24))
		require.NoError(t, err)

		_, err = e.Process(nil)
		require.ErrorIs(t, err, ErrNoFrame)

		_, err = e.Process(solid(16, 16, gray))
		require.ErrorIs(t, err, ErrBoundsMismatch)
	}
}

func TestContourEngine_FirstFrameIsQuiet(t *testing.T) {
	t.Parallel()

	frame := paint(solid(64, 48, gray), image.Rect(10, 10, 30, 20), white)

	e, err := NewEngine(ModeContours, frame.Bounds())
	require.NoError(t, err)

	sig, err := e.Process(frame)
	require.NoError(t, err)
	require.Zero(t, sig.Percent)
	require.False(t, sig.Inner)
	require.Empty(t, sig.Regions)
}

func TestContourEngine_ConvergesOnStaticScene(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(ModeContours, image.Rect(0, 0, 48, 32))
	require.NoError(t, err)

	_, err = e.Process(solid(48, 32, black))
	require.NoError(t, err)

	scene := solid(48, 32, white)
	last := 101.0
	percents := make([]float64, 0, 60)

	for i := 0; i < 60; i++ {
		sig, err := e.Process(scene)
		require.NoError(t, err)
		require.LessOrEqual(t, sig.Percent, last)

		last = sig.Percent
		percents = append(percents, sig.Percent)
	}

	require.Positive(t, percents[0])
	require.Zero(t, percents[len(percents)-1])
}

func TestContourEngine_DetectsCentralObject(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(ModeContours, image.Rect(0, 0, 64, 48))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		sig, err := e.Process(solid(64, 48, gray))
		require.NoError(t, err)
		require.Zero(t, sig.Percent)
	}

	sig, err := e.Process(paint(solid(64, 48, gray), image.Rect(28, 20, 36, 28), white))
	require.NoError(t, err)
	require.Positive(t, sig.Percent)
	require.NotEmpty(t, sig.Regions)
	require.True(t, sig.Inner)
	require.Equal(t, image.Rect(0, 0, 64, 48), sig.Mask.Bounds())

	for _, v := range sig.Mask.Pix {
		require.True(t, v == 0 || v == Foreground)
	}
}

func TestContourEngine_Background(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(ModeContours, image.Rect(0, 0, 8, 8))
	require.NoError(t, err)

	_, err = e.Process(solid(8, 8, gray))
	require.NoError(t, err)

	bg, ok := e.(Backgrounder)
	require.True(t, ok)

	img := bg.Background()
	require.Equal(t, gray, img.NRGBAAt(4, 4))
}

func TestThresholdEngine_ComparesWithPreviousFrame(t *testing.T) {
	t.Parallel()

	bounds := image.Rect(0, 0, 40, 40)
	e, err := NewEngine(ModeThreshold, bounds)
	require.NoError(t, err)

	still := solid(40, 40, gray)

	sig, err := e.Process(still)
	require.NoError(t, err)
	require.Zero(t, sig.Percent)
	require.False(t, sig.Inner)

	sig, err = e.Process(still)
	require.NoError(t, err)
	require.Zero(t, sig.Percent)

	changed := paint(solid(40, 40, gray), image.Rect(0, 0, 20, 40), white)

	sig, err = e.Process(changed)
	require.NoError(t, err)
	require.InDelta(t, 50.0, sig.Percent, 10)
	require.False(t, sig.Inner)

	// The same frame again shows no change because the reference moved on.
	sig, err = e.Process(changed)
	require.NoError(t, err)
	require.Zero(t, sig.Percent)
}
