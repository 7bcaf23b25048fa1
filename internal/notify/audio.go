package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tcolgate/ratnav/internal/alert"
	"github.com/tcolgate/ratnav/internal/logger"
)

// ErrNoPlayer is returned when no audio player is known for the platform.
var ErrNoPlayer = errors.New("no audio player for this platform")

// Audio plays one sound file per alert through an external player program.
type Audio struct {
	player string
	args   []string
	files  map[alert.ID]string
}

// DefaultPlayer returns the stock command line sound player for the OS.
func DefaultPlayer() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "aplay", nil
	case "darwin":
		return "afplay", nil
	default:
		return "", fmt.Errorf("%s: %w", runtime.GOOS, ErrNoPlayer)
	}
}

// NewAudio maps every alert to <dir>/<alert>.wav, lower-cased, and plays them
// with player. An empty player selects DefaultPlayer; extra fields in player
// are passed as leading arguments.
func NewAudio(dir, player string) (*Audio, error) {
	if strings.TrimSpace(player) == "" {
		p, err := DefaultPlayer()
		if err != nil {
			return nil, err
		}

		player = p
	}

	fields := strings.Fields(player)
	a := &Audio{
		player: fields[0],
		args:   fields[1:],
		files:  make(map[alert.ID]string, len(alert.IDs())),
	}

	for _, id := range alert.IDs() {
		a.files[id] = filepath.Join(dir, strings.ToLower(string(id))+".wav")
	}

	return a, nil
}

// File returns the sound file played for id.
func (a *Audio) File(id alert.ID) string {
	return a.files[id]
}

// Play starts the player on the file for id and returns without waiting
// for playback to finish.
func (a *Audio) Play(ctx context.Context, id alert.ID) error {
	file, ok := a.files[id]
	if !ok {
		return fmt.Errorf("no sound for alert %q", id)
	}

	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("sound for %s: %w", id, err)
	}

	args := append(append([]string(nil), a.args...), file)

	//nolint:gosec // The player comes from the operator's configuration.
	cmd := exec.Command(a.player, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", a.player, err)
	}

	logger.InfoKV(ctx, "Playing audio", "alert", id, "file", file)

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.WarnKV(ctx, "Audio player exited with error", "alert", id, "error", err)
		}
	}()

	return nil
}
