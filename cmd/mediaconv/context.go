package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediaconv/internal/config"
	"mediaconv/internal/conversion"
	"mediaconv/internal/history"
	"mediaconv/internal/logging"
	"mediaconv/internal/services/ffmpeg"
	"mediaconv/internal/services/ytdlp"
)

type commandContext struct {
	configFlag string
	envFile    string

	// Overrides for the conversion tools; nil uses yt-dlp and ffmpeg.
	fetcher    conversion.Fetcher
	transcoder conversion.Transcoder

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, resolved, exists, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// withHistory opens the history store for the duration of fn. fn receives nil
// when history is disabled.
func (c *commandContext) withHistory(ctx context.Context, fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fn(nil)
	}
	store, err := history.OpenFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// converters returns the fetcher and transcoder for local conversions.
func (c *commandContext) converters(cfg *config.Config, logger *slog.Logger) (conversion.Fetcher, conversion.Transcoder) {
	fetcher, transcoder := c.fetcher, c.transcoder
	if fetcher == nil {
		fetcher = ytdlp.New(cfg.Fetcher, logger)
	}
	if transcoder == nil {
		transcoder = ffmpeg.New(cfg.Transcoder, logger)
	}
	return fetcher, transcoder
}

// commandLogger writes to stderr so command output on stdout stays clean.
func commandLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

