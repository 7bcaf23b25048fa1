package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/tcolgate/ratnav/internal/alert"
	"github.com/tcolgate/ratnav/internal/logger"
)

// Multi plays every alert on each of its sinks in order.
type Multi []alert.Sink

// Play forwards id to every sink and joins their errors.
func (m Multi) Play(ctx context.Context, id alert.ID) error {
	var errs []error

	for i, s := range m {
		if s == nil {
			continue
		}

		if err := s.Play(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// Log is a sink that only reports alerts through the context logger.
type Log struct{}

// Play logs id.
func (Log) Play(ctx context.Context, id alert.ID) error {
	logger.InfoKV(ctx, "Alert", "alert", id)

	return nil
}
