package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rental-availability-backend/config"
	"rental-availability-backend/internal/catalog"
	"rental-availability-backend/internal/recommend"
	"rental-availability-backend/internal/reservation"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "availd",
		Short:         "Equipment availability and conflict resolution service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $CONFIG_PATH or ./config/config.yaml)")

	load := func() (*config.Config, *slog.Logger, error) {
		config.LoadEnv()
		path := configPath
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		if path == "" {
			path = "./config/config.yaml" // Default path for local development
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
		logger := newLogger(cfg.Log)
		slog.SetDefault(logger)
		logger.Info("configuration loaded", "path", path)
		return cfg, logger, nil
	}

	root.AddCommand(newServeCmd(load), newMigrateCmd(load), newCheckCmd(load))
	return root
}

type loader func() (*config.Config, *slog.Logger, error)

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func engineConfig(cfg config.EngineConfig) reservation.Config {
	return reservation.Config{
		HoldTimeout:         cfg.HoldTimeout,
		MinimumTurnaround:   cfg.Turnaround,
		RejectPastIntervals: cfg.RejectPastIntervals,
		StrictResources:     cfg.StrictResources,
		Alternatives: recommend.Options{
			Horizon:     cfg.Horizon,
			Step:        cfg.Step,
			TopK:        cfg.AlternativeTopK,
			Concurrency: cfg.SearchConcurrency,
		},
	}
}

func breakerConfig(cfg config.CatalogConfig) catalog.BreakerConfig {
	b := catalog.DefaultBreakerConfig()
	b.FailureThreshold = cfg.BreakerFailures
	b.Timeout = cfg.BreakerTimeout
	return b
}
