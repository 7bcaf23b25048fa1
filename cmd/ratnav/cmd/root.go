package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tcolgate/ratnav/internal/service/detector"
	"github.com/tcolgate/ratnav/internal/version"
)

var (
	// options collects the flag values passed to the detector.
	options detector.Options
	// threshold backs the --threshold flag; only used when set.
	threshold int

	// rootCmd represents the base command for running the detector.
	rootCmd = &cobra.Command{
		Use:   "ratnav",
		Short: "Watch a camera and announce when the scene moves or stands still.",
		Long: `Runs the motion detector on a webcam, an OpenCV capture device or a
directory of images.

Once movement has lasted for the confirmation delay the MOVING alert plays,
STANDING plays when it stops, and MOVE plays when something stirs in the
middle of an otherwise still scene. Alerts are played through the system
sound player and optionally published to an MQTT broker.

Flags override the values from the configuration file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts := options
			if cmd.Flags().Changed("threshold") {
				opts.Threshold = &threshold
			}

			return detector.Run(ctx, &opts)
		},
	}
)

// Execute runs the ratnav CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&options.ConfigPath, "config", "c", "", "path to configuration file (default ratnav.yaml if present)")
	flags.IntVarP(&threshold, "threshold", "t", 0, "changed percentage of the frame that counts as movement, 0-100")
	flags.StringVarP(&options.Mode, "mode", "m", "", "detection mode: contours or threshold")
	flags.StringVarP(&options.Source, "source", "s", "", "frame source: webcam, opencv or directory")
	flags.StringVarP(&options.Device, "device", "d", "", "video device path or OpenCV device id")
	flags.StringVar(&options.Directory, "dir", "", "replay the images in this directory")
	flags.StringVarP(&options.Preview, "preview", "l", "", "serve the preview on this address, e.g. :8080")
	flags.BoolVar(&options.NoAudio, "no-audio", false, "do not play alert sounds")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level: debug, info, warn or error")
}
