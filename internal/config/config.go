package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tcolgate/ratnav/internal/alert"
	"github.com/tcolgate/ratnav/internal/capture"
	"github.com/tcolgate/ratnav/internal/logger"
	"github.com/tcolgate/ratnav/internal/motion"
)

// Config holds everything a detector binary needs.
type Config struct {
	Source        Source   `yaml:"source"`
	Detector      Detector `yaml:"detector"`
	Alerts        Alerts   `yaml:"alerts"`
	Audio         Audio    `yaml:"audio"`
	MQTT          MQTT     `yaml:"mqtt"`
	Preview       Preview  `yaml:"preview"`
	LogLevel      string   `yaml:"log_level"`
	StatsInterval Duration `yaml:"stats_interval"`
}

// Source selects the frame source.
type Source struct {
	// Kind is webcam, opencv or directory.
	Kind string `yaml:"kind"`
	// Device is the V4L2 path or OpenCV device id.
	Device string `yaml:"device,omitempty"`
	// Format is the V4L2 pixel format description.
	Format string `yaml:"format,omitempty"`
	// Size is WxH or a V4L2 frame size description.
	Size string `yaml:"size,omitempty"`
	// Directory is replayed when Kind is directory.
	Directory string `yaml:"directory,omitempty"`
	// Loop restarts directory replay at the end.
	Loop bool `yaml:"loop,omitempty"`
	// FPS paces directory replay.
	FPS float64 `yaml:"fps,omitempty"`
}

// Detector tunes the motion engine.
type Detector struct {
	// Mode is contours or threshold.
	Mode string `yaml:"mode"`
	// Threshold is the changed percentage above which the scene is moving.
	Threshold int `yaml:"threshold"`
	// ScaleWidth downscales frames to this width before detection; 0 keeps them.
	ScaleWidth int `yaml:"scale_width,omitempty"`
	// Warmup ignores movement for this long after start.
	Warmup Duration `yaml:"warmup,omitempty"`
}

// Alerts tunes the alert state machine.
type Alerts struct {
	ConfirmDelay Duration `yaml:"confirm_delay"`
	Cooldown     Duration `yaml:"cooldown"`
}

// Audio configures the sound sink.
type Audio struct {
	Enabled bool `yaml:"enabled"`
	// Player is the command used to play a file, with optional arguments.
	Player string `yaml:"player,omitempty"`
	// Directory holds move.wav, moving.wav and standing.wav.
	Directory string `yaml:"directory"`
}

// MQTT configures the optional broker sink. An empty Broker disables it.
type MQTT struct {
	Broker   string `yaml:"broker,omitempty"`
	Topic    string `yaml:"topic,omitempty"`
	ClientID string `yaml:"client_id,omitempty"`
	QoS      byte   `yaml:"qos,omitempty"`
}

// Preview configures the HTTP preview. An empty Listen disables it.
type Preview struct {
	Listen string `yaml:"listen,omitempty"`
}

// Duration is a time.Duration written as a string such as "3s".
type Duration time.Duration

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

const (
	// DefaultConfigFilename is the default filename for detector settings.
	DefaultConfigFilename = "ratnav.yaml"

	// DefaultSoundDirectory is searched for the alert sounds.
	DefaultSoundDirectory = "sounds"

	// DefaultTopic is the MQTT topic prefix.
	DefaultTopic = "ratnav"

	// DefaultStatsInterval is how often the frame rate is reported.
	DefaultStatsInterval = time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	maxQoS = 2
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := base()
	_ = Validate(cfg)

	return cfg
}

// base holds the defaults a zero value cannot express.
func base() *Config {
	return &Config{
		Detector: Detector{Threshold: motion.DefaultThreshold},
		Audio:    Audio{Enabled: true},
	}
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := base()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks cfg and fills defaults for unset fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := validateSource(&cfg.Source); err != nil {
		return err
	}

	if err := validateDetector(&cfg.Detector); err != nil {
		return err
	}

	if err := validateAlerts(&cfg.Alerts); err != nil {
		return err
	}

	if cfg.Audio.Directory == "" {
		cfg.Audio.Directory = DefaultSoundDirectory
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultTopic
	}

	if cfg.MQTT.QoS > maxQoS {
		return fmt.Errorf("%w: mqtt qos %d out of range 0-%d", ErrInvalid, cfg.MQTT.QoS, maxQoS)
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, cfg.LogLevel)
	}

	switch {
	case cfg.StatsInterval < 0:
		return fmt.Errorf("%w: negative stats interval", ErrInvalid)
	case cfg.StatsInterval == 0:
		cfg.StatsInterval = Duration(DefaultStatsInterval)
	}

	return nil
}

func validateSource(src *Source) error {
	switch capture.Kind(src.Kind) {
	case "":
		src.Kind = string(capture.KindWebcam)
	case capture.KindWebcam, capture.KindOpenCV:
	case capture.KindDirectory:
		if src.Directory == "" {
			return fmt.Errorf("%w: directory source needs a directory", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalid, capture.ErrUnknownKind, src.Kind)
	}

	if src.FPS < 0 {
		return fmt.Errorf("%w: negative fps", ErrInvalid)
	}

	return nil
}

func validateDetector(det *Detector) error {
	mode, err := motion.ParseMode(det.Mode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	det.Mode = mode.String()

	if det.Threshold < 0 || det.Threshold > 100 {
		return fmt.Errorf("%w: threshold %d out of range 0-100", ErrInvalid, det.Threshold)
	}

	if det.ScaleWidth < 0 {
		return fmt.Errorf("%w: negative scale width", ErrInvalid)
	}

	if det.Warmup < 0 {
		return fmt.Errorf("%w: negative warmup", ErrInvalid)
	}

	return nil
}

func validateAlerts(a *Alerts) error {
	if a.ConfirmDelay < 0 || a.Cooldown < 0 {
		return fmt.Errorf("%w: negative alert delay", ErrInvalid)
	}

	if a.ConfirmDelay == 0 {
		a.ConfirmDelay = Duration(alert.DefaultConfirmDelay)
	}

	if a.Cooldown == 0 {
		a.Cooldown = Duration(alert.DefaultCooldown)
	}

	return nil
}
