package pipeline

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Report summarises the cycles run since the previous report.
type Report struct {
	// Frames is the number of frames processed.
	Frames int
	// Misses is the number of skipped cycles.
	Misses int
	// Alerts is the number of alerts dispatched.
	Alerts int
	// FPS is the processed frame rate over the report window.
	FPS float64
	// CycleMean and CycleStdDev describe the processing time per frame.
	CycleMean   time.Duration
	CycleStdDev time.Duration
}

// stats accumulates one report window.
type stats struct {
	start  time.Time
	misses int
	alerts int
	cycles []float64
}

func newStats(now time.Time) *stats {
	return &stats{start: now}
}

func (s *stats) observe(d time.Duration, alerts int) {
	s.cycles = append(s.cycles, d.Seconds())
	s.alerts += alerts
}

func (s *stats) miss() {
	s.misses++
}

func (s *stats) due(now time.Time, interval time.Duration) bool {
	return interval > 0 && now.Sub(s.start) >= interval
}

// report closes the window at now and starts a new one.
func (s *stats) report(now time.Time) Report {
	r := Report{
		Frames: len(s.cycles),
		Misses: s.misses,
		Alerts: s.alerts,
	}

	if elapsed := now.Sub(s.start).Seconds(); elapsed > 0 {
		r.FPS = float64(r.Frames) / elapsed
	}

	if len(s.cycles) > 0 {
		mean, std := stat.MeanStdDev(s.cycles, nil)
		r.CycleMean = time.Duration(mean * float64(time.Second))

		if len(s.cycles) > 1 {
			r.CycleStdDev = time.Duration(std * float64(time.Second))
		}
	}

	s.start = now
	s.misses = 0
	s.alerts = 0
	s.cycles = s.cycles[:0]

	return r
}
