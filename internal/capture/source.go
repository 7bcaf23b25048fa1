// Package capture provides the frame sources the pipeline reads from: V4L2
// webcams, OpenCV capture devices and directories of still images.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrNoFrame marks a capture miss the caller may retry.
	ErrNoFrame = errors.New("no frame available")
	// ErrUnknownKind is returned by Open for unsupported source kinds.
	ErrUnknownKind = errors.New("unknown source kind")
	// ErrUnsupported is returned for sources not built into this binary.
	ErrUnsupported = errors.New("source not supported by this build")
)

// Source delivers frames of fixed bounds. io.EOF from Next means a finite
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Bounds() image.Rectangle
	Close() error
}

// Kind names a source implementation.
type Kind string

const (
	// KindWebcam captures from a V4L2 device.
	KindWebcam Kind = "webcam"
	// KindOpenCV captures through OpenCV; needs the withcv build tag.
	KindOpenCV Kind = "opencv"
	// KindDirectory replays image files from a directory.
	KindDirectory Kind = "directory"
)

// Options selects and configures a source.
type Options struct {
	Kind Kind
	// Device is the V4L2 device path or the OpenCV device id.
	Device string
	// Format is the V4L2 pixel format description; empty picks the first supported.
	Format string
	// Size is WxH or a frame size description; empty picks the largest.
	Size string
	// Directory holds the images for KindDirectory.
	Directory string
	// Loop restarts a directory source at the first image instead of ending.
	Loop bool
	// FPS paces directory replay; zero replays as fast as frames are consumed.
	FPS float64
}

// Open builds the source described by opts.
func Open(ctx context.Context, opts Options) (Source, error) {
	var (
		src Source
		err error
	)

	switch opts.Kind {
	case KindWebcam, "":
		src, err = OpenWebcam(ctx, opts.Device, opts.Format, opts.Size)
	case KindOpenCV:
		src, err = OpenOpenCV(ctx, opts.Device)
	case KindDirectory:
		src, err = OpenDirectory(opts.Directory, opts.Loop, opts.FPS)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}

	if err != nil {
		return nil, err
	}

	return src, nil
}
