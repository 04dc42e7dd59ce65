package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hausgeist-ai/hausgeist/pkg/config"
	"github.com/hausgeist-ai/hausgeist/pkg/genlog"
	"github.com/hausgeist-ai/hausgeist/pkg/providers"
	"github.com/hausgeist-ai/hausgeist/pkg/server"
	"github.com/hausgeist-ai/hausgeist/pkg/styles"
	"github.com/hausgeist-ai/hausgeist/pkg/tracker"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the generation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			registry, err := styles.Load(cfg.FallbackDir)
			if err != nil {
				return fmt.Errorf("load style registry: %w", err)
			}

			gl, err := genlog.New(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("init generation log: %w", err)
			}
			defer func() { _ = gl.Close() }()

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			deps := server.Deps{
				Styles:  registry,
				GenLog:  gl,
				Tracker: tr,
			}

			if cfg.StreetViewKey != "" {
				deps.StreetView = providers.NewGoogleStreetView(cfg.StreetViewKey)
				deps.Aerial = providers.NewGoogleAerial(cfg.StreetViewKey)
			} else {
				log.Println("no street view key configured, serving mock imagery")
				deps.StreetView = providers.MockStreetView{}
				deps.Aerial = providers.MockAerial{}
			}

			if cfg.GoogleAIKey != "" {
				deps.Vision = providers.NewGeminiVision(cfg.GoogleAIKey, cfg.Models.Vision)
				deps.Synth = providers.NewGeminiSynthesizer(cfg.GoogleAIKey,
					[]string{cfg.Models.Image, cfg.Models.ImageFallback})
			} else {
				log.Println("no Google AI key configured, serving mock generations")
				deps.Vision = providers.MockVision{}
				deps.Synth = providers.MockSynthesizer{}
			}

			srv := server.New(cfg, deps)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "hausgeist.yaml", "path to config file")
	return cmd
}

// loadConfig falls back to defaults when the config file is absent, so
// `hausgeist serve` works out of the box in mock mode.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
