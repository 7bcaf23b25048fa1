//go:build !linux

package capture

import (
	"context"
	"fmt"
	"image"
)

// DefaultDevice is the V4L2 device opened when none is configured.
const DefaultDevice = "/dev/video0"

// Webcam is only available on Linux.
type Webcam struct{}

// OpenWebcam always fails outside Linux.
func OpenWebcam(_ context.Context, dev, _, _ string) (*Webcam, error) {
	return nil, fmt.Errorf("%w: v4l2 device %s", ErrUnsupported, dev)
}

// Bounds returns an empty rectangle.
func (*Webcam) Bounds() image.Rectangle { return image.Rectangle{} }

// Next always fails.
func (*Webcam) Next(context.Context) (image.Image, error) { return nil, ErrUnsupported }

// Close is a no-op.
func (*Webcam) Close() error { return nil }
