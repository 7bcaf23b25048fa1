package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

var errNoImages = errors.New("no images found")

//nolint:gochecknoglobals // Lookup table.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// Directory replays the images of a directory in lexical order.
type Directory struct {
	files  []string
	next   int
	loop   bool
	bounds image.Rectangle

	interval time.Duration
	last     time.Time
}

// OpenDirectory lists the images in dir. The first image fixes the bounds.
func OpenDirectory(dir string, loop bool, fps float64) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames directory: %w", err)
	}

	var files []string

	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}

		files = append(files, filepath.Join(dir, e.Name()))
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, errNoImages)
	}

	sort.Strings(files)

	first, err := imaging.Open(files[0])
	if err != nil {
		return nil, fmt.Errorf("open first frame: %w", err)
	}

	d := &Directory{
		files:  files,
		loop:   loop,
		bounds: image.Rect(0, 0, first.Bounds().Dx(), first.Bounds().Dy()),
	}

	if fps > 0 {
		d.interval = time.Duration(float64(time.Second) / fps)
	}

	return d, nil
}

// Bounds returns the size of the first image.
func (d *Directory) Bounds() image.Rectangle {
	return d.bounds
}

// Next decodes the next image. Unreadable files are reported as ErrNoFrame.
func (d *Directory) Next(ctx context.Context) (image.Image, error) {
	if d.next >= len(d.files) {
		if !d.loop {
			return nil, io.EOF
		}

		d.next = 0
	}

	if err := d.pace(ctx); err != nil {
		return nil, err
	}

	file := d.files[d.next]
	d.next++

	img, err := imaging.Open(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoFrame, file, err)
	}

	return img, nil
}

// pace waits until the next frame is due.
func (d *Directory) pace(ctx context.Context) error {
	if d.interval <= 0 {
		return nil
	}

	if wait := d.interval - time.Since(d.last); !d.last.IsZero() && wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	d.last = time.Now()

	return nil
}

// Close is a no-op.
func (d *Directory) Close() error {
	return nil
}
