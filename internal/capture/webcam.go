//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strconv"
	"strings"

	"github.com/blackjack/webcam"

	"github.com/tcolgate/ratnav/internal/logger"
)

// DefaultDevice is the V4L2 device opened when none is configured.
const DefaultDevice = "/dev/video0"

// waitTimeout is the WaitForFrame timeout in seconds.
const waitTimeout = 1

var (
	errNoFormat = errors.New("no supported pixel format")
	errNoSize   = errors.New("no matching frame size")
)

type byArea []webcam.FrameSize

func (s byArea) Len() int      { return len(s) }
func (s byArea) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byArea) Less(i, j int) bool {
	return s[i].MaxWidth*s[i].MaxHeight < s[j].MaxWidth*s[j].MaxHeight
}

// Webcam streams frames from a V4L2 device.
type Webcam struct {
	cam    *webcam.Webcam
	format PixelFormat
	w, h   int
}

// OpenWebcam opens dev, negotiates format and size and starts streaming.
// An empty format picks the first decodable one, an empty size the largest.
func OpenWebcam(ctx context.Context, dev, format, size string) (*Webcam, error) {
	if dev == "" {
		dev = DefaultDevice
	}

	cam, err := webcam.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev, err)
	}

	wc, err := setupWebcam(ctx, cam, format, size)
	if err != nil {
		_ = cam.Close()

		return nil, err
	}

	return wc, nil
}

func setupWebcam(ctx context.Context, cam *webcam.Webcam, fmtstr, szstr string) (*Webcam, error) {
	formats := cam.GetSupportedFormats()
	for f, s := range formats {
		logger.DebugKV(ctx, "Available format", "format", s, "fourcc", fmt.Sprintf("%#x", uint32(f)))
	}

	format, err := pickFormat(formats, fmtstr)
	if err != nil {
		return nil, err
	}

	sizes := byArea(cam.GetSupportedFrameSizes(format))
	sort.Sort(sizes)

	size, err := pickSize(sizes, szstr)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Requesting format", "format", formats[format], "size", size.GetString())

	f, w, h, err := cam.SetImageFormat(format, size.MaxWidth, size.MaxHeight)
	if err != nil {
		return nil, fmt.Errorf("set image format: %w", err)
	}

	if !PixelFormat(f).Supported() {
		return nil, fmt.Errorf("%w: device chose %q", errNoFormat, formats[f])
	}

	logger.InfoKV(ctx, "Resulting image format", "format", formats[f], "width", w, "height", h)

	if err := cam.StartStreaming(); err != nil {
		return nil, fmt.Errorf("start streaming: %w", err)
	}

	return &Webcam{cam: cam, format: PixelFormat(f), w: int(w), h: int(h)}, nil
}

func pickFormat(formats map[webcam.PixelFormat]string, want string) (webcam.PixelFormat, error) {
	// Map order is random; prefer the formats in a fixed order.
	candidates := make([]webcam.PixelFormat, 0, len(formats))
	for f := range formats {
		candidates = append(candidates, f)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	for _, f := range candidates {
		switch {
		case want == "" && PixelFormat(f).Supported():
			return f, nil
		case want != "" && formats[f] == want:
			if !PixelFormat(f).Supported() {
				return 0, fmt.Errorf("%w: %q cannot be decoded", errNoFormat, want)
			}

			return f, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", errNoFormat, want)
}

func pickSize(sizes byArea, want string) (webcam.FrameSize, error) {
	if len(sizes) == 0 {
		return webcam.FrameSize{}, errNoSize
	}

	switch {
	case want == "":
		return sizes[len(sizes)-1], nil
	case strings.Count(want, "x") == 1:
		parts := strings.Split(want, "x")

		x, xerr := strconv.Atoi(parts[0])
		y, yerr := strconv.Atoi(parts[1])
		if xerr != nil || yerr != nil || x <= 0 || y <= 0 {
			return webcam.FrameSize{}, fmt.Errorf("%w: cannot parse %q as WxH", errNoSize, want)
		}

		return webcam.FrameSize{MaxWidth: uint32(x), MaxHeight: uint32(y)}, nil
	default:
		for _, s := range sizes {
			if want == s.GetString() {
				return s, nil
			}
		}

		return webcam.FrameSize{}, fmt.Errorf("%w: %q", errNoSize, want)
	}
}

// Bounds returns the negotiated frame size.
func (c *Webcam) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.w, c.h)
}

// Next waits for and decodes the next frame. Timeouts, empty buffers and
// undecodable frames are reported as ErrNoFrame.
func (c *Webcam) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := c.cam.WaitForFrame(waitTimeout)

	var timeout *webcam.Timeout
	switch {
	case err == nil:
	case errors.As(err, &timeout):
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	default:
		return nil, fmt.Errorf("wait for frame: %w", err)
	}

	frame, err := c.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrNoFrame, err)
	}

	if len(frame) == 0 {
		return nil, ErrNoFrame
	}

	// ReadFrame returns the mmaped buffer; it is reused by the driver.
	buf := make([]byte, len(frame))
	copy(buf, frame)

	img, err := decodeFrame(buf, c.w, c.h, c.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	return img, nil
}

// Close releases the device.
func (c *Webcam) Close() error {
	return c.cam.Close()
}
