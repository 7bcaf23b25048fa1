package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tcolgate/ratnav/internal/alert"
	"github.com/tcolgate/ratnav/internal/capture"
	"github.com/tcolgate/ratnav/internal/motion"
	"github.com/tcolgate/ratnav/internal/timeutil"
)

var t0 = time.Date(2014, 5, 1, 8, 0, 0, 0, time.UTC)

var errUnplugged = errors.New("device unplugged")

type item struct {
	img image.Image
	err error
}

// scriptedSource replays items, moving the clock by step before each one.
type scriptedSource struct {
	items  []item
	bounds image.Rectangle
	clock  *timeutil.MockClock
	step   time.Duration
	calls  int
}

func (s *scriptedSource) Next(context.Context) (image.Image, error) {
	if s.calls >= len(s.items) {
		return nil, io.EOF
	}

	s.clock.Set(t0.Add(time.Duration(s.calls) * s.step))
	it := s.items[s.calls]
	s.calls++

	return it.img, it.err
}

func (s *scriptedSource) Bounds() image.Rectangle { return s.bounds }
func (s *scriptedSource) Close() error           { return nil }

type recordingSink struct {
	played []alert.ID
}

func (s *recordingSink) Play(_ context.Context, id alert.ID) error {
	s.played = append(s.played, id)

	return nil
}

type recordingDisplay struct {
	sizes []image.Point
}

func (d *recordingDisplay) Show(frame image.Image, _ *motion.Signal) {
	d.sizes = append(d.sizes, frame.Bounds().Size())
}

func solid(w, h int, c color.Gray) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = c.Y
	}

	return img
}

func halfWhite(w, h int) *image.Gray {
	img := solid(w, h, color.Gray{Y: 0x80})
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.SetGray(x, y, color.Gray{Y: 0xff})
		}
	}

	return img
}

// walkScript is still for a second, alternates between two frames from 1s
// to 9.5s and is still again from 10s, at two frames per second.
func walkScript() []item {
	still := solid(40, 40, color.Gray{Y: 0x80})
	moved := halfWhite(40, 40)

	items := make([]item, 0, 24)
	for i := 0; i < 24; i++ {
		img := image.Image(still)
		if i >= 2 && i < 20 && i%2 == 0 {
			img = moved
		}

		items = append(items, item{img: img})
	}

	return items
}

func newScripted(items []item) *scriptedSource {
	return &scriptedSource{
		items:  items,
		bounds: image.Rect(0, 0, 40, 40),
		clock:  timeutil.NewMockClock(t0),
		step:   500 * time.Millisecond,
	}
}

func TestPipeline_AlertSequence(t *testing.T) {
	t.Parallel()

	src := newScripted(walkScript())
	sink := new(recordingSink)

	var reports []Report

	p, err := New(src, sink, Options{
		Mode:      motion.ModeThreshold,
		Threshold: motion.DefaultThreshold,
		Clock:     src.clock,
		OnReport:  func(r Report) { reports = append(reports, r) },
	})
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, []alert.ID{alert.Moving, alert.Standing}, sink.played)
	require.Equal(t, alert.StateStanding, p.State())

	require.Len(t, reports, 1)
	require.Equal(t, 24, reports[0].Frames)
	require.Equal(t, 2, reports[0].Alerts)
	require.Zero(t, reports[0].Misses)
}

func TestPipeline_CycleStates(t *testing.T) {
	t.Parallel()

	src := newScripted(walkScript())
	p, err := New(src, nil, Options{Mode: motion.ModeThreshold, Clock: src.clock})
	require.NoError(t, err)

	ctx := context.Background()
	states := make([]alert.State, 0, 24)

	for {
		res, err := p.Cycle(ctx)
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)
		states = append(states, res.State)
	}

	require.Equal(t, alert.StateStanding, states[1])
	require.Equal(t, alert.StateTransient, states[2])
	require.Equal(t, alert.StateTransient, states[8])
	require.Equal(t, alert.StateMoving, states[9])
	require.Equal(t, alert.StateMoving, states[19])
	require.Equal(t, alert.StateStanding, states[20])
}

func TestPipeline_Warmup(t *testing.T) {
	t.Parallel()

	src := newScripted(walkScript())
	sink := new(recordingSink)

	p, err := New(src, sink, Options{Mode: motion.ModeThreshold, Warmup: time.Minute, Clock: src.clock})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))
	require.Empty(t, sink.played)
}

func TestPipeline_SkipsFailedCycles(t *testing.T) {
	t.Parallel()

	still := solid(40, 40, color.Gray{Y: 0x80})
	src := newScripted([]item{
		{img: still},
		{err: capture.ErrNoFrame},
		{img: solid(20, 20, color.Gray{})},
		{img: nil},
		{img: still},
	})

	p, err := New(src, nil, Options{Mode: motion.ModeThreshold, Clock: src.clock})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = p.Cycle(ctx)
	require.NoError(t, err)

	_, err = p.Cycle(ctx)
	require.ErrorIs(t, err, ErrSkipped)
	require.ErrorIs(t, err, capture.ErrNoFrame)

	_, err = p.Cycle(ctx)
	require.ErrorIs(t, err, motion.ErrBoundsMismatch)

	_, err = p.Cycle(ctx)
	require.ErrorIs(t, err, capture.ErrNoFrame)

	res, err := p.Cycle(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Signal.Percent)
	require.Equal(t, alert.StateStanding, res.State)

	_, err = p.Cycle(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestPipeline_RunCountsMisses(t *testing.T) {
	t.Parallel()

	still := solid(40, 40, color.Gray{Y: 0x80})
	src := newScripted([]item{
		{img: still},
		{err: capture.ErrNoFrame},
		{err: errUnplugged},
		{img: still},
	})

	var reports []Report

	p, err := New(src, nil, Options{
		Mode:     motion.ModeThreshold,
		Clock:    src.clock,
		OnReport: func(r Report) { reports = append(reports, r) },
	})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, reports, 1)
	require.Equal(t, 2, reports[0].Frames)
	require.Equal(t, 2, reports[0].Misses)
}

func TestPipeline_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	src := newScripted(walkScript())
	p, err := New(src, nil, Options{Mode: motion.ModeThreshold, Clock: src.clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	require.Zero(t, src.calls)
}

func TestPipeline_Threshold(t *testing.T) {
	t.Parallel()

	src := newScripted(walkScript())
	sink := new(recordingSink)

	_, err := New(src, sink, Options{Threshold: 101})
	require.ErrorIs(t, err, ErrThresholdRange)

	p, err := New(src, sink, Options{Mode: motion.ModeThreshold, Threshold: 10, Clock: src.clock})
	require.NoError(t, err)
	require.Equal(t, 10, p.Threshold())

	require.ErrorIs(t, p.SetThreshold(-1), ErrThresholdRange)
	require.ErrorIs(t, p.SetThreshold(101), ErrThresholdRange)
	require.Equal(t, 10, p.Threshold())

	// Nothing changes by more than the whole frame.
	require.NoError(t, p.SetThreshold(100))
	require.NoError(t, p.Run(context.Background()))
	require.Empty(t, sink.played)
}

func TestPipeline_ScalesFrames(t *testing.T) {
	t.Parallel()

	frame := solid(64, 48, color.Gray{Y: 0x40})
	src := &scriptedSource{
		items:  []item{{img: frame}, {img: frame}},
		bounds: frame.Bounds(),
		clock:  timeutil.NewMockClock(t0),
		step:   time.Second,
	}
	display := new(recordingDisplay)

	p, err := New(src, nil, Options{ScaleWidth: 32, Clock: src.clock, Display: display})
	require.NoError(t, err)
	require.Equal(t, motion.ModeContours, p.Engine().Mode())
	require.Equal(t, image.Rect(8, 6, 24, 18), p.Inner())
	require.NotEqual(t, uuid.Nil, p.ID())

	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, []image.Point{{32, 24}, {32, 24}}, display.sizes)
}

func TestScaledSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, image.Pt(640, 480), scaledSize(image.Pt(640, 480), 0))
	require.Equal(t, image.Pt(640, 480), scaledSize(image.Pt(640, 480), 800))
	require.Equal(t, image.Pt(320, 240), scaledSize(image.Pt(640, 480), 320))
	require.Equal(t, image.Pt(2, 1), scaledSize(image.Pt(640, 10), 2))
}

func TestStatsReport(t *testing.T) {
	t.Parallel()

	s := newStats(t0)
	s.observe(10*time.Millisecond, 0)
	s.observe(30*time.Millisecond, 1)
	s.miss()

	require.False(t, s.due(t0.Add(time.Second), 2*time.Second))
	require.True(t, s.due(t0.Add(2*time.Second), 2*time.Second))
	require.False(t, s.due(t0.Add(time.Hour), 0))

	r := s.report(t0.Add(2 * time.Second))
	require.Equal(t, 2, r.Frames)
	require.Equal(t, 1, r.Misses)
	require.Equal(t, 1, r.Alerts)
	require.InDelta(t, 1.0, r.FPS, 1e-9)
	require.InDelta(t, float64(20*time.Millisecond), float64(r.CycleMean), float64(time.Microsecond))
	require.Positive(t, r.CycleStdDev)

	r = s.report(t0.Add(3 * time.Second))
	require.Zero(t, r.Frames)
	require.Zero(t, r.FPS)
}
