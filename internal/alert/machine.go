// Package alert turns the noisy per-frame movement decision into a small
// number of audible alerts.
//
// A Machine moves between standing, transient and moving states. Movement
// must persist for the confirmation delay before MOVING fires, STANDING
// fires when a confirmed movement stops, and MOVE fires while standing when
// something starts inside the inner rectangle. All alerts share one
// cooldown, so while one kind cools down no other kind can fire.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/tcolgate/ratnav/internal/logger"
)

// ID names an alert.
type ID string

const (
	// Move asks to get moving: something stirs in the middle of a still scene.
	Move ID = "MOVE"
	// Moving confirms sustained movement.
	Moving ID = "MOVING"
	// Standing reports that confirmed movement stopped.
	Standing ID = "STANDING"
)

// IDs lists every alert kind.
func IDs() []ID {
	return []ID{Move, Moving, Standing}
}

// State is the conceptual state derived from the machine flags.
type State int

const (
	// StateStanding means no movement is being tracked.
	StateStanding State = iota
	// StateTransient means movement was seen but is not confirmed yet.
	StateTransient
	// StateMoving means movement has been confirmed.
	StateMoving
)

func (s State) String() string {
	switch s {
	case StateStanding:
		return "standing"
	case StateTransient:
		return "transient"
	case StateMoving:
		return "moving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	// DefaultConfirmDelay is how long movement must last before MOVING fires.
	DefaultConfirmDelay = 3 * time.Second
	// DefaultCooldown is the minimum time between two dispatched alerts.
	DefaultCooldown = 5 * time.Second
)

// Sink plays alerts. Play must not block beyond starting playback.
type Sink interface {
	Play(ctx context.Context, id ID) error
}

// Machine is the debounced alert state machine. It is not safe for
// concurrent use; one pipeline cycle drives it at a time.
type Machine struct {
	sink     Sink
	confirm  time.Duration
	cooldown time.Duration

	standing  bool
	moving    bool
	moveTime  time.Time
	alertTime time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithConfirmDelay overrides DefaultConfirmDelay. Non-positive values are ignored.
func WithConfirmDelay(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.confirm = d
		}
	}
}

// WithCooldown overrides DefaultCooldown. Non-positive values are ignored.
func WithCooldown(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// NewMachine returns a machine in the standing state dispatching to sink.
func NewMachine(sink Sink, opts ...Option) *Machine {
	m := &Machine{
		sink:     sink,
		confirm:  DefaultConfirmDelay,
		cooldown: DefaultCooldown,
		standing: true,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State returns the current conceptual state.
func (m *Machine) State() State {
	switch {
	case m.moving:
		return StateMoving
	case m.standing:
		return StateStanding
	default:
		return StateTransient
	}
}

// Step advances the machine by one cycle and returns the alerts that were
// dispatched to the sink, in order.
func (m *Machine) Step(ctx context.Context, now time.Time, movement, inner bool) []ID {
	var fired []ID

	if movement {
		if m.standing {
			logger.DebugKV(ctx, "We detected a first movement")

			m.standing = false
			m.moveTime = now
		}

		if !m.moving && now.After(m.moveTime.Add(m.confirm)) {
			logger.InfoKV(ctx, "We are moving", "since", m.moveTime)

			fired = m.emit(ctx, now, Moving, fired)
			m.moving = true
		}

		return fired
	}

	if m.moving {
		logger.InfoKV(ctx, "We stand still")

		fired = m.emit(ctx, now, Standing, fired)
		m.moving = false
	}

	m.standing = true

	if inner {
		logger.DebugKV(ctx, "We should move")

		fired = m.emit(ctx, now, Move, fired)
	}

	return fired
}

// emit dispatches id if the shared cooldown has elapsed.
func (m *Machine) emit(ctx context.Context, now time.Time, id ID, fired []ID) []ID {
	if !m.alertTime.IsZero() && !now.After(m.alertTime.Add(m.cooldown)) {
		logger.DebugKV(ctx, "Not alerting", "alert", id, "last_alert", m.alertTime)

		return fired
	}

	if m.sink != nil {
		if err := m.sink.Play(ctx, id); err != nil {
			logger.ErrorKV(ctx, "Failed to play alert", "alert", id, "error", err)
		}
	}

	m.alertTime = now

	return append(fired, id)
}
