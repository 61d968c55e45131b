// Package ffmpeg runs the ffmpeg transcoder with the fixed MP3 and MP4 presets.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"mediaconv/internal/config"
	"mediaconv/internal/logging"
	"mediaconv/internal/services"
	"mediaconv/internal/workspace"
)

// Preset tunes the fixed codec settings.
type Preset struct {
	AudioBitrate string
	VideoPreset  string
	VideoCRF     int
	Threads      int
}

// PresetFromConfig extracts the preset from transcoder configuration.
func PresetFromConfig(cfg config.Transcoder) Preset {
	return Preset{
		AudioBitrate: cfg.AudioBitrate,
		VideoPreset:  cfg.VideoPreset,
		VideoCRF:     cfg.VideoCRF,
		Threads:      cfg.Threads,
	}
}

// Request describes one transcode.
type Request struct {
	InputPath  string
	OutputPath string
	Kind       workspace.Kind
}

// Client invokes ffmpeg. Output is written to OutputPath+".part" and renamed
// into place only after ffmpeg succeeds, so OutputPath never holds a partial file.
type Client struct {
	binary string
	preset Preset
	runner services.CommandRunner
	logger *slog.Logger
	stat   func(name string) (os.FileInfo, error)
	rename func(oldpath, newpath string) error
	remove func(name string) error
}

// Option configures a Client.
type Option func(*Client)

// WithRunner overrides process execution.
func WithRunner(r services.CommandRunner) Option {
	return func(c *Client) {
		if r != nil {
			c.runner = r
		}
	}
}

// New constructs a transcoder from configuration.
func New(cfg config.Transcoder, logger *slog.Logger, opts ...Option) *Client {
	binary := cfg.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	c := &Client{
		binary: binary,
		preset: PresetFromConfig(cfg),
		runner: services.ExecRunner{},
		logger: logging.NewComponentLogger(logger, "ffmpeg"),
		stat:   os.Stat,
		rename: os.Rename,
		remove: os.Remove,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcode converts req.InputPath into req.OutputPath, overwriting any
// existing file. Failures carry services.ErrTranscode.
func (c *Client) Transcode(ctx context.Context, req Request) error {
	if !req.Kind.Valid() {
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", fmt.Sprintf("unsupported media kind %q", req.Kind), nil)
	}
	partial := workspace.PartialPath(req.OutputPath)
	args := BuildArgs(req.Kind, req.InputPath, partial, c.preset)

	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("ffmpeg starting", logging.String("input", req.InputPath), logging.Any("args", args))
	started := time.Now()

	res, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		c.discard(ctx, partial)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		detail := services.TailLines(res.Stderr, 3)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", detail, err)
	}

	info, err := c.stat(partial)
	if err != nil || info.Size() == 0 {
		c.discard(ctx, partial)
		return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", "output file missing", err)
	}
	if err := c.rename(partial, req.OutputPath); err != nil {
		c.discard(ctx, partial)
		return services.Wrap(services.ErrTranscode, "transcode", "finalize output", "", err)
	}

	logger.Debug("ffmpeg finished",
		logging.String("output", req.OutputPath),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (c *Client) discard(ctx context.Context, path string) {
	if err := c.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "partial output removal failed", "transcode_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "partial file remains until the next retention sweep"),
		)
	}
}

// BuildArgs returns the ffmpeg argument list for kind. The container is forced
// with -f because the output name ends in .part.
func BuildArgs(kind workspace.Kind, inputPath, outputPath string, preset Preset) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
	}
	switch kind {
	case workspace.KindAudio:
		args = append(args,
			"-vn",
			"-c:a", "libmp3lame",
			"-b:a", preset.AudioBitrate,
			"-f", "mp3",
		)
	case workspace.KindVideo:
		args = append(args,
			"-c:v", "libx264",
			"-preset", preset.VideoPreset,
			"-crf", strconv.Itoa(preset.VideoCRF),
			"-c:a", "aac",
			"-movflags", "+faststart",
			"-f", "mp4",
		)
	}
	if preset.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(preset.Threads))
	}
	return append(args, outputPath)
}
