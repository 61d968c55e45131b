package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateKeepAlive(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	output := filepath.Clean(c.Paths.OutputDir)
	// The sweeper deletes every expired file in output_dir, so nothing the
	// daemon owns may live there.
	if filepath.Clean(c.Paths.DataDir) == output {
		return errors.New("paths.data_dir must differ from paths.output_dir")
	}
	if filepath.Clean(c.Paths.LogDir) == output {
		return errors.New("paths.log_dir must differ from paths.output_dir")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if c.Conversion.Workers < 1 {
		return errors.New("conversion.workers must be at least 1")
	}
	if c.Conversion.FetchTimeout <= 0 || c.Conversion.TranscodeTimeout <= 0 {
		return errors.New("conversion timeouts must be positive")
	}
	return nil
}

func (c *Config) validateTranscoder() error {
	if c.Transcoder.VideoCRF < 0 || c.Transcoder.VideoCRF > 51 {
		return fmt.Errorf("transcoder.video_crf must be between 0 and 51 (got %d)", c.Transcoder.VideoCRF)
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.MaxAgeMinutes <= 0 {
		return errors.New("retention.max_age_minutes must be positive")
	}
	if c.Retention.SweepIntervalMinutes <= 0 {
		return errors.New("retention.sweep_interval_minutes must be positive")
	}
	// A result must outlive the job that produced it.
	if budget := c.FetchTimeout() + c.TranscodeTimeout(); budget >= c.RetentionMaxAge() {
		return fmt.Errorf("retention.max_age_minutes (%s) must exceed conversion.fetch_timeout + conversion.transcode_timeout (%s)", c.RetentionMaxAge(), budget)
	}
	return nil
}

func (c *Config) validateKeepAlive() error {
	if !c.KeepAlive.Enabled {
		return nil
	}
	if c.KeepAlive.URL == "" {
		return errors.New("keepalive.url must be set when keepalive is enabled")
	}
	parsed, err := url.Parse(c.KeepAlive.URL)
	if err != nil {
		return fmt.Errorf("keepalive.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("keepalive.url must use http or https (got %q)", c.KeepAlive.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("keepalive.url must include a host (got %q)", c.KeepAlive.URL)
	}
	return nil
}

func (c *Config) validateHistory() error {
	if !c.History.Enabled {
		return nil
	}
	switch c.History.Driver {
	case HistoryDriverSQLite:
		return nil
	case HistoryDriverPostgres:
		if c.History.DSN == "" {
			return errors.New("history.dsn is required for the postgres driver (or set DATABASE_URL)")
		}
		return nil
	default:
		return fmt.Errorf("history.driver: unsupported value %q", c.History.Driver)
	}
}

func (c *Config) validateCache() error {
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required when the cache is enabled (or set REDIS_ADDR)")
	}
	if c.Cache.RedisDB < 0 {
		return errors.New("cache.redis_db must not be negative")
	}
	return nil
}

func (c *Config) validateMirror() error {
	if c.Mirror.Enabled && c.Mirror.Bucket == "" {
		return errors.New("mirror.bucket is required when the mirror is enabled")
	}
	return nil
}
