package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/tcolgate/ratnav/internal/alert"
	"github.com/tcolgate/ratnav/internal/capture"
	"github.com/tcolgate/ratnav/internal/logger"
	"github.com/tcolgate/ratnav/internal/motion"
	"github.com/tcolgate/ratnav/internal/timeutil"
)

// failurePause throttles the loop while the source keeps failing hard.
const failurePause = 100 * time.Millisecond

var (
	// ErrThresholdRange is returned for thresholds outside 0 to 100.
	ErrThresholdRange = errors.New("threshold out of range 0-100")
	// ErrSkipped marks a cycle that did not process a frame.
	ErrSkipped = errors.New("cycle skipped")
)

// Display receives every processed frame with its signal. Show runs on the
// pipeline goroutine; sig.Mask is reused by the next cycle.
type Display interface {
	Show(frame image.Image, sig *motion.Signal)
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	ID            uuid.UUID
	Mode          motion.Mode
	Threshold     int
	ConfirmDelay  time.Duration
	Cooldown      time.Duration
	ScaleWidth    int
	Warmup        time.Duration
	StatsInterval time.Duration
	Clock         timeutil.Clock
	Display       Display
	// OnReport is called with every periodic report; nil only logs it.
	OnReport func(Report)
}

// Result is the outcome of one cycle.
type Result struct {
	Signal *motion.Signal
	Moving bool
	Alerts []alert.ID
	State  alert.State
}

// Pipeline owns the engine and alert state for one source.
type Pipeline struct {
	id      uuid.UUID
	src     capture.Source
	engine  motion.Engine
	machine *alert.Machine
	clock   timeutil.Clock
	display Display

	threshold atomic.Int64

	srcSize  image.Point
	scaled   image.Point
	warmup   time.Duration
	started  time.Time
	interval time.Duration
	onReport func(Report)
	stats    *stats
}

// New builds a pipeline reading src and alerting through sink.
func New(src capture.Source, sink alert.Sink, opts Options) (*Pipeline, error) {
	if opts.Threshold < 0 || opts.Threshold > 100 {
		return nil, fmt.Errorf("%w: %d", ErrThresholdRange, opts.Threshold)
	}

	if opts.Mode == "" {
		opts.Mode = motion.ModeContours
	}

	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}

	size := src.Bounds().Size()
	scaled := scaledSize(size, opts.ScaleWidth)

	engine, err := motion.NewEngine(opts.Mode, image.Rectangle{Max: scaled})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	p := &Pipeline{
		id:       opts.ID,
		src:      src,
		engine:   engine,
		machine:  alert.NewMachine(sink, alert.WithConfirmDelay(opts.ConfirmDelay), alert.WithCooldown(opts.Cooldown)),
		clock:    opts.Clock,
		display:  opts.Display,
		srcSize:  size,
		scaled:   scaled,
		warmup:   opts.Warmup,
		interval: opts.StatsInterval,
		onReport: opts.OnReport,
	}
	p.threshold.Store(int64(opts.Threshold))

	return p, nil
}

// scaledSize keeps the aspect ratio of size at the given width. Widths that
// would not shrink the frame keep it unchanged.
func scaledSize(size image.Point, width int) image.Point {
	if width <= 0 || width >= size.X || size.X == 0 {
		return size
	}

	h := size.Y * width / size.X
	if h < 1 {
		h = 1
	}

	return image.Pt(width, h)
}

// ID identifies the pipeline in logs and published events.
func (p *Pipeline) ID() uuid.UUID {
	return p.id
}

// Engine returns the change engine.
func (p *Pipeline) Engine() motion.Engine {
	return p.engine
}

// Inner returns the inner rectangle in detection coordinates.
func (p *Pipeline) Inner() image.Rectangle {
	return p.engine.Inner()
}

// SetDisplay replaces the display. Call it before Run.
func (p *Pipeline) SetDisplay(d Display) {
	p.display = d
}

// Threshold returns the current movement threshold.
func (p *Pipeline) Threshold() int {
	return int(p.threshold.Load())
}

// SetThreshold changes the movement threshold. It is safe to call while Run
// is active and takes effect on the next cycle.
func (p *Pipeline) SetThreshold(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: %d", ErrThresholdRange, v)
	}

	p.threshold.Store(int64(v))

	return nil
}

// State returns the alert state. Only call it from the Run goroutine or
// once Run has returned.
func (p *Pipeline) State() alert.State {
	return p.machine.State()
}

// Run cycles until ctx is cancelled or the source ends. Failed cycles are
// skipped. A cancelled context or an exhausted source returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx = logger.WithKV(ctx, "pipeline", p.id.String())

	logger.InfoKV(ctx, "Starting detector",
		"mode", p.engine.Mode(),
		"frame", p.srcSize,
		"detect", p.scaled,
		"inner", p.engine.Inner(),
		"threshold", p.Threshold(),
	)

	p.stats = newStats(p.clock.Now())

	for ctx.Err() == nil {
		res, err := p.Cycle(ctx)

		switch {
		case err == nil:
			if len(res.Alerts) > 0 {
				logger.DebugKV(ctx, "Cycle dispatched alerts", "alerts", res.Alerts, "state", res.State)
			}
		case errors.Is(err, io.EOF):
			logger.InfoKV(ctx, "Source exhausted")
			p.flushReport(ctx)

			return nil
		case ctx.Err() != nil:
		case errors.Is(err, capture.ErrNoFrame):
			logger.DebugKV(ctx, "Skipping cycle", "error", err)
		default:
			logger.WarnKV(ctx, "Skipping cycle", "error", err)

			if !errors.Is(err, motion.ErrBoundsMismatch) {
				pause(ctx, failurePause)
			}
		}

		if p.stats.due(p.clock.Now(), p.interval) {
			p.flushReport(ctx)
		}
	}

	return nil
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Pipeline) flushReport(ctx context.Context) {
	r := p.stats.report(p.clock.Now())

	logger.InfoKV(ctx, "Detector stats",
		"frames", r.Frames,
		"misses", r.Misses,
		"alerts", r.Alerts,
		"fps", fmt.Sprintf("%.2f", r.FPS),
		"cycle_mean", r.CycleMean,
		"cycle_stddev", r.CycleStdDev,
	)

	if p.onReport != nil {
		p.onReport(r)
	}
}

// Cycle runs one acquire, detect, decide and alert step. Capture failures
// and bad frames leave all state untouched and return an error wrapping the
// cause; io.EOF is passed through.
func (p *Pipeline) Cycle(ctx context.Context) (*Result, error) {
	res, err := p.cycle(ctx)
	if err != nil && p.stats != nil && !errors.Is(err, io.EOF) {
		p.stats.miss()
	}

	return res, err
}

func (p *Pipeline) cycle(ctx context.Context) (*Result, error) {
	frame, err := p.src.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("%w: capture: %w", ErrSkipped, err)
	}

	begin := p.clock.Now()

	if p.started.IsZero() {
		p.started = begin
	}

	if frame == nil {
		return nil, fmt.Errorf("%w: %w", ErrSkipped, capture.ErrNoFrame)
	}

	if got := frame.Bounds().Size(); got != p.srcSize {
		return nil, fmt.Errorf("%w: %w: got %v, want %v", ErrSkipped, motion.ErrBoundsMismatch, got, p.srcSize)
	}

	if p.scaled != p.srcSize {
		frame = imaging.Resize(frame, p.scaled.X, p.scaled.Y, imaging.Linear)
	}

	sig, err := p.engine.Process(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSkipped, err)
	}

	res := &Result{Signal: sig, Moving: motion.Moving(sig.Percent, p.Threshold())}

	if begin.Sub(p.started) >= p.warmup {
		res.Alerts = p.machine.Step(ctx, begin, res.Moving, sig.Inner)
	}

	res.State = p.machine.State()

	if p.display != nil {
		p.display.Show(frame, sig)
	}

	if p.stats != nil {
		p.stats.observe(p.clock.Since(begin), len(res.Alerts))
	}

	return res, nil
}
