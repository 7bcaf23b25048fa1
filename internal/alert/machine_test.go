package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errDeviceBusy = errors.New("device busy")

// recordingSink remembers every alert it was asked to play.
type recordingSink struct {
	played []ID
	err    error
}

func (s *recordingSink) Play(_ context.Context, id ID) error {
	s.played = append(s.played, id)

	return s.err
}

var t0 = time.Date(2014, 5, 1, 8, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time {
	return t0.Add(d)
}

func TestMachine_InitialState(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	require.Equal(t, StateStanding, m.State())
	require.Equal(t, "standing", m.State().String())
	require.Empty(t, m.Step(context.Background(), t0, false, false))
	require.Equal(t, StateStanding, m.State())
}

func TestMachine_ConfirmationDelay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := new(recordingSink)
	m := NewMachine(sink)

	require.Empty(t, m.Step(ctx, at(0), true, false))
	require.Equal(t, StateTransient, m.State())

	for _, d := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		require.Empty(t, m.Step(ctx, at(d), true, false), d)
		require.Equal(t, StateTransient, m.State())
	}

	require.Equal(t, []ID{Moving}, m.Step(ctx, at(3*time.Second+time.Millisecond), true, false))
	require.Equal(t, StateMoving, m.State())

	require.Empty(t, m.Step(ctx, at(10*time.Second), true, false))
	require.Equal(t, []ID{Moving}, sink.played)
}

func TestMachine_TransientWithoutConfirmation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := new(recordingSink)
	m := NewMachine(sink)

	m.Step(ctx, at(0), true, false)
	m.Step(ctx, at(time.Second), true, false)
	require.Empty(t, m.Step(ctx, at(2*time.Second), false, false))
	require.Equal(t, StateStanding, m.State())

	// The confirmation timer restarts with the next movement.
	require.Empty(t, m.Step(ctx, at(3*time.Second), true, false))
	require.Empty(t, m.Step(ctx, at(5*time.Second), true, false))
	require.Equal(t, []ID{Moving}, m.Step(ctx, at(6500*time.Millisecond), true, false))
}

func TestMachine_Scenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := new(recordingSink)
	m := NewMachine(sink)

	steps := []struct {
		now      time.Duration
		movement bool
		want     []ID
	}{
		{now: 0, movement: false},
		{now: 1 * time.Second, movement: true},
		{now: 2 * time.Second, movement: true},
		{now: 3 * time.Second, movement: true},
		{now: 4500 * time.Millisecond, movement: true, want: []ID{Moving}},
		{now: 10 * time.Second, movement: false, want: []ID{Standing}},
	}

	for _, s := range steps {
		got := m.Step(ctx, at(s.now), s.movement, false)
		if s.want == nil {
			require.Empty(t, got, s.now)
			continue
		}

		require.Equal(t, s.want, got, s.now)
	}

	require.Equal(t, []ID{Moving, Standing}, sink.played)
	require.Equal(t, StateStanding, m.State())
}

func TestMachine_Cooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	sink := new(recordingSink)
	m := NewMachine(sink)
	require.Equal(t, []ID{Move}, m.Step(ctx, at(0), false, true))
	require.Empty(t, m.Step(ctx, at(time.Second), false, true))
	require.Equal(t, []ID{Move}, sink.played)

	sink = new(recordingSink)
	m = NewMachine(sink)
	require.Equal(t, []ID{Move}, m.Step(ctx, at(0), false, true))
	require.Equal(t, []ID{Move}, m.Step(ctx, at(6*time.Second), false, true))
	require.Equal(t, []ID{Move, Move}, sink.played)

	// Exactly at the end of the cooldown is still too early.
	sink = new(recordingSink)
	m = NewMachine(sink)
	m.Step(ctx, at(0), false, true)
	require.Empty(t, m.Step(ctx, at(5*time.Second), false, true))
}

func TestMachine_CooldownIsShared(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := new(recordingSink)
	m := NewMachine(sink)

	require.Equal(t, []ID{Move}, m.Step(ctx, at(0), false, true))

	m.Step(ctx, at(500*time.Millisecond), true, false)

	// MOVING is due but MOVE is still cooling down; the state moves on regardless.
	require.Empty(t, m.Step(ctx, at(4*time.Second), true, false))
	require.Equal(t, StateMoving, m.State())

	require.Equal(t, []ID{Standing}, m.Step(ctx, at(5500*time.Millisecond), false, false))
	require.Equal(t, []ID{Move, Standing}, sink.played)
}

func TestMachine_MoveOnlyWhileStill(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := new(recordingSink)
	m := NewMachine(sink)

	require.Empty(t, m.Step(ctx, at(0), true, true))

	// Returning to rest fires STANDING; MOVE in the same cycle is held back by the cooldown.
	m = NewMachine(sink)
	m.Step(ctx, at(0), true, false)
	m.Step(ctx, at(4*time.Second), true, false)
	require.Equal(t, []ID{Standing}, m.Step(ctx, at(10*time.Second), false, true))
}

func TestMachine_SinkFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := &recordingSink{err: errDeviceBusy}
	m := NewMachine(sink, WithConfirmDelay(time.Second), WithCooldown(2*time.Second))

	m.Step(ctx, at(0), true, false)
	require.Equal(t, []ID{Moving}, m.Step(ctx, at(1500*time.Millisecond), true, false))
	require.Equal(t, StateMoving, m.State())

	// The failed dispatch still starts the cooldown.
	require.Empty(t, m.Step(ctx, at(2*time.Second), false, false))
	require.Equal(t, StateStanding, m.State())
	require.Equal(t, []ID{Moving}, sink.played)
}

func TestOptionsIgnoreNonPositive(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil, WithConfirmDelay(0), WithCooldown(-time.Second))
	require.Equal(t, DefaultConfirmDelay, m.confirm)
	require.Equal(t, DefaultCooldown, m.cooldown)
	require.Len(t, IDs(), 3)
}
