//go:build withcv

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

var errNotOpened = errors.New("video capture not opened")

// OpenCV reads frames through an OpenCV VideoCapture, which accepts device
// ids as well as files and stream URLs.
type OpenCV struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	bounds image.Rectangle
}

// OpenOpenCV opens device, a numeric device id or a file or stream URL.
func OpenOpenCV(_ context.Context, device string) (*OpenCV, error) {
	var target interface{} = device
	if device == "" {
		target = 0
	} else if id, err := strconv.Atoi(device); err == nil {
		target = id
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("open video capture %q: %w", device, err)
	}

	if !vc.IsOpened() {
		_ = vc.Close()

		return nil, fmt.Errorf("%w: %q", errNotOpened, device)
	}

	w := int(vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(vc.Get(gocv.VideoCaptureFrameHeight))

	return &OpenCV{vc: vc, mat: gocv.NewMat(), bounds: image.Rect(0, 0, w, h)}, nil
}

// Bounds returns the frame size reported by the capture backend.
func (c *OpenCV) Bounds() image.Rectangle {
	return c.bounds
}

// Next reads one frame. Failed reads and empty frames are reported as ErrNoFrame.
func (c *OpenCV) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, ErrNoFrame
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	return img, nil
}

// Close releases the capture and its buffer.
func (c *OpenCV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.mat.Close()

	return c.vc.Close()
}
