package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"joftmode/internal/config"
	"joftmode/internal/logging"
	"joftmode/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "joftmode",
		Short: "Wearable activity logger: IMU + GNSS fusion, on-device walk/e-bike classification",
		Long: `joftmode samples a 6-axis IMU and a GNSS receiver, classifies each
3-second window as walking or e-biking, and logs one CSV row per sample.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(summarizeCmd())
	root.AddCommand(statsCmd())
	return root
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func runCmd(configPath *string) *cobra.Command {
	var (
		duration time.Duration
		logDir   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sampling, positioning, classification and logging tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if logDir != "" {
				cfg.Log.Dir = logDir
			}

			logs := web.NewLogBuffer(cfg.Logging.BufferLines)
			logger, err := logging.New(cfg.Logging, os.Stderr, logs)
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				var stop context.CancelFunc
				ctx, stop = context.WithTimeout(ctx, duration)
				defer stop()
			}

			rt, err := newLiveRuntime(cfg, logger.SugaredLogger, logs, nil)
			if err != nil {
				return err
			}
			return multierr.Combine(rt.Run(ctx), rt.Close())
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Override log.dir")
	return cmd
}
