package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
}

// Server contains HTTP boundary configuration.
type Server struct {
	Bind            string   `toml:"bind"`
	DownloadPrefix  string   `toml:"download_prefix"`
	ShutdownTimeout int      `toml:"shutdown_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// Conversion contains worker pool sizing and per-step timeouts.
type Conversion struct {
	Workers          int `toml:"workers"`
	QueueSize        int `toml:"queue_size"`
	FetchTimeout     int `toml:"fetch_timeout"`
	TranscodeTimeout int `toml:"transcode_timeout"`
}

// Fetcher contains yt-dlp settings.
type Fetcher struct {
	Binary         string `toml:"binary"`
	CookiesFile    string `toml:"cookies_file"`
	VideoMaxHeight int    `toml:"video_max_height"`
}

// Transcoder contains ffmpeg settings. The presets are fixed per media kind;
// these knobs only tune the fixed preset.
type Transcoder struct {
	Binary       string `toml:"binary"`
	AudioBitrate string `toml:"audio_bitrate"`
	VideoPreset  string `toml:"video_preset"`
	VideoCRF     int    `toml:"video_crf"`
	Threads      int    `toml:"threads"`
}

// Retention contains output file expiry settings.
type Retention struct {
	MaxAgeMinutes        int `toml:"max_age_minutes"`
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

// KeepAlive contains self-ping settings.
type KeepAlive struct {
	Enabled               bool   `toml:"enabled"`
	URL                   string `toml:"url"`
	IntervalMinutes       int    `toml:"interval_minutes"`
	ActivityWindowMinutes int    `toml:"activity_window_minutes"`
	RequestTimeout        int    `toml:"request_timeout"`
}

// History contains conversion history storage settings.
type History struct {
	Enabled bool   `toml:"enabled"`
	Driver  string `toml:"driver"`
	DSN     string `toml:"dsn"`
}

// Cache contains the optional Redis result cache settings.
type Cache struct {
	Enabled       bool   `toml:"enabled"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// Mirror contains the optional S3 artifact mirror settings.
type Mirror struct {
	Enabled      bool   `toml:"enabled"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Prefix       string `toml:"prefix"`
	Endpoint     string `toml:"endpoint"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for mediaconv.
//
// Configuration sections by subsystem:
//   - Paths: output (served) directory, data directory, log directory
//   - Server: HTTP bind address and download prefix
//   - Conversion: worker pool size and step timeouts
//   - Fetcher: yt-dlp binary, cookies, video height ceiling
//   - Transcoder: ffmpeg binary and preset tuning
//   - Retention: output file expiry and sweep cadence
//   - KeepAlive: self-ping target and activity window
//   - History: conversion history database
//   - Cache: Redis result cache
//   - Mirror: S3 upload of finished outputs
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Server     Server     `toml:"server"`
	Conversion Conversion `toml:"conversion"`
	Fetcher    Fetcher    `toml:"fetcher"`
	Transcoder Transcoder `toml:"transcoder"`
	Retention  Retention  `toml:"retention"`
	KeepAlive  KeepAlive  `toml:"keepalive"`
	History    History    `toml:"history"`
	Cache      Cache      `toml:"cache"`
	Mirror     Mirror     `toml:"mirror"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file is not an error; defaults and
// environment overrides apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryDSN returns the data source name for the history store. SQLite
// databases default to a file inside the data directory.
func (c *Config) HistoryDSN() string {
	if dsn := strings.TrimSpace(c.History.DSN); dsn != "" {
		return dsn
	}
	if c.History.Driver == HistoryDriverSQLite {
		return filepath.Join(c.Paths.DataDir, "history.db")
	}
	return ""
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediaconvd.lock")
}

// FetchTimeout returns the per-request media fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Conversion.FetchTimeout) * time.Second
}

// TranscodeTimeout returns the per-request transcode timeout.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Conversion.TranscodeTimeout) * time.Second
}

// RetentionMaxAge returns the age after which output files are swept.
func (c *Config) RetentionMaxAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeMinutes) * time.Minute
}

// SweepInterval returns the delay between retention sweeps.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepIntervalMinutes) * time.Minute
}

// PingInterval returns the delay between keep-alive attempts.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.KeepAlive.IntervalMinutes) * time.Minute
}

// ActivityWindow returns how recent client activity must be for a ping to fire.
func (c *Config) ActivityWindow() time.Duration {
	return time.Duration(c.KeepAlive.ActivityWindowMinutes) * time.Minute
}

// PingTimeout returns the HTTP timeout applied to keep-alive requests.
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.KeepAlive.RequestTimeout) * time.Second
}

// ShutdownTimeout returns the graceful HTTP shutdown window.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
