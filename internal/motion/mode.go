package motion

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the change detection algorithm.
type Mode string

const (
	// ModeContours compares frames against a running average and extracts regions.
	ModeContours Mode = "contours"
	// ModeThreshold compares each frame with the one before it and counts pixels.
	ModeThreshold Mode = "threshold"
)

// ErrUnknownMode is returned for mode names other than contours and threshold.
var ErrUnknownMode = errors.New("unknown detection mode")

// ParseMode converts a mode name, case-insensitively. An empty name is contours.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeContours, "":
		return ModeContours, nil
	case ModeThreshold:
		return ModeThreshold, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) String() string {
	return string(m)
}
