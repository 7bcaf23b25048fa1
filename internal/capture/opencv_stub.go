//go:build !withcv

package capture

import (
	"context"
	"fmt"
	"image"
)

// OpenCV needs a binary built with the withcv tag.
type OpenCV struct{}

// OpenOpenCV always fails without the withcv build tag.
func OpenOpenCV(_ context.Context, device string) (*OpenCV, error) {
	return nil, fmt.Errorf("%w: opencv device %q, rebuild with -tags withcv", ErrUnsupported, device)
}

// Bounds returns an empty rectangle.
func (*OpenCV) Bounds() image.Rectangle { return image.Rectangle{} }

// Next always fails.
func (*OpenCV) Next(context.Context) (image.Image, error) { return nil, ErrUnsupported }

// Close is a no-op.
func (*OpenCV) Close() error { return nil }
