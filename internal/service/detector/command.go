package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tcolgate/ratnav/internal/alert"
	"github.com/tcolgate/ratnav/internal/capture"
	"github.com/tcolgate/ratnav/internal/config"
	"github.com/tcolgate/ratnav/internal/logger"
	"github.com/tcolgate/ratnav/internal/motion"
	"github.com/tcolgate/ratnav/internal/notify"
	"github.com/tcolgate/ratnav/internal/pipeline"
	"github.com/tcolgate/ratnav/internal/preview"
)

// Options controls the ratnav process. Empty or nil fields keep the values
// from the configuration file.
type Options struct {
	// ConfigPath is the settings YAML file. Empty tries the default file and
	// falls back to built-in defaults when it does not exist.
	ConfigPath string
	Threshold  *int
	Mode       string
	Source     string
	Device     string
	Directory  string
	Preview    string
	NoAudio    bool
	LogLevel   string
	// Output receives log entries; nil means stdout.
	Output io.Writer
}

// Run loads settings and runs the detector until ctx is cancelled or a
// finite source is exhausted.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	level, _ := logger.ParseLogLevel(cfg.LogLevel)
	ctx = logger.ToContext(ctx, logger.New(zap.NewAtomicLevelAt(level), opts.Output))
	ctx = logger.WithName(ctx, "ratnav")

	src, err := capture.Open(ctx, capture.Options{
		Kind:      capture.Kind(cfg.Source.Kind),
		Device:    cfg.Source.Device,
		Format:    cfg.Source.Format,
		Size:      cfg.Source.Size,
		Directory: cfg.Source.Directory,
		Loop:      cfg.Source.Loop,
		FPS:       cfg.Source.FPS,
	})
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	defer func() {
		if err := src.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close source", "error", err)
		}
	}()

	id := uuid.New()

	sink, closeSinks, err := buildSinks(ctx, cfg, id)
	if err != nil {
		return err
	}
	defer closeSinks()

	mode, _ := motion.ParseMode(cfg.Detector.Mode)

	p, err := pipeline.New(src, sink, pipeline.Options{
		ID:            id,
		Mode:          mode,
		Threshold:     cfg.Detector.Threshold,
		ConfirmDelay:  cfg.Alerts.ConfirmDelay.Std(),
		Cooldown:      cfg.Alerts.Cooldown.Std(),
		ScaleWidth:    cfg.Detector.ScaleWidth,
		Warmup:        cfg.Detector.Warmup.Std(),
		StatsInterval: cfg.StatsInterval.Std(),
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	return run(ctx, cfg, p)
}

// run drives the pipeline and, when configured, the preview server. The
// preview stops with the pipeline.
func run(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)

	if cfg.Preview.Listen != "" {
		bg, _ := p.Engine().(motion.Backgrounder)
		srv := preview.New(p, bg, p.Inner())
		p.SetDisplay(srv)

		g.Go(func() error {
			return srv.ListenAndServe(runCtx, cfg.Preview.Listen)
		})
	}

	g.Go(func() error {
		defer cancel()

		return p.Run(runCtx)
	})

	err := g.Wait()
	cancel()

	if err != nil {
		return fmt.Errorf("run detector: %w", err)
	}

	logger.InfoKV(ctx, "Detector stopped")

	return nil
}

func loadConfig(opts *Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	switch {
	case opts.ConfigPath != "":
		cfg, err = config.Load(opts.ConfigPath)
	default:
		cfg, err = config.Load(config.DefaultConfigFilename)
		if errors.Is(err, os.ErrNotExist) {
			cfg, err = config.Default(), nil
		}
	}

	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(cfg, opts)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return cfg, nil
}

func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.Threshold != nil {
		cfg.Detector.Threshold = *opts.Threshold
	}

	if opts.Mode != "" {
		cfg.Detector.Mode = opts.Mode
	}

	if opts.Directory != "" {
		cfg.Source.Kind = string(capture.KindDirectory)
		cfg.Source.Directory = opts.Directory
	}

	if opts.Source != "" {
		cfg.Source.Kind = opts.Source
	}

	if opts.Device != "" {
		cfg.Source.Device = opts.Device
	}

	if opts.Preview != "" {
		cfg.Preview.Listen = opts.Preview
	}

	if opts.NoAudio {
		cfg.Audio.Enabled = false
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
}

// buildSinks assembles the alert sinks. The returned func releases them.
func buildSinks(ctx context.Context, cfg *config.Config, id uuid.UUID) (alert.Sink, func(), error) {
	sinks := notify.Multi{notify.Log{}}
	closers := []func() error{}

	if cfg.Audio.Enabled {
		audio, err := notify.NewAudio(cfg.Audio.Directory, cfg.Audio.Player)
		if err != nil {
			return nil, nil, fmt.Errorf("audio sink: %w", err)
		}

		sinks = append(sinks, audio)
	}

	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "ratnav-" + id.String()
		}

		m, err := notify.DialMQTT(ctx, notify.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: clientID,
			QoS:      cfg.MQTT.QoS,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mqtt sink: %w", err)
		}

		sinks = append(sinks, m)
		closers = append(closers, m.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.WarnKV(ctx, "Failed to close sink", "error", err)
			}
		}
	}

	return sinks, closeAll, nil
}
