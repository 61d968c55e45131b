// Package ytdlp fetches source media through the yt-dlp executable.
package ytdlp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"mediaconv/internal/config"
	"mediaconv/internal/logging"
	"mediaconv/internal/services"
	"mediaconv/internal/workspace"
)

// Request describes one fetch.
type Request struct {
	URL        string
	OutputPath string
	Kind       workspace.Kind
}

// Result is what a successful fetch produced.
type Result struct {
	Title string
	Path  string
}

// Metadata is the subset of yt-dlp's info JSON the pipeline uses.
type Metadata struct {
	Title    string
	Filename string
}

// invocation is the fully resolved set of yt-dlp options for one fetch.
type invocation struct {
	Binary      string
	CookiesFile string
	Format      string
	MergeFormat string
	OutputPath  string
}

type runFunc func(ctx context.Context, inv invocation, sourceURL string) (Metadata, string, error)

// Client runs yt-dlp with the fixed per-kind format profiles.
type Client struct {
	binary         string
	cookiesFile    string
	videoMaxHeight int
	run            runFunc
	stat           func(name string) (os.FileInfo, error)
	logger         *slog.Logger
}

// New constructs a fetcher from configuration.
func New(cfg config.Fetcher, logger *slog.Logger) *Client {
	binary := cfg.Binary
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Client{
		binary:         binary,
		cookiesFile:    cfg.CookiesFile,
		videoMaxHeight: cfg.VideoMaxHeight,
		run:            runYTDLP,
		stat:           os.Stat,
		logger:         logging.NewComponentLogger(logger, "ytdlp"),
	}
}

// Fetch downloads req.URL into req.OutputPath. Failures carry services.ErrFetch
// with yt-dlp's own error text; context errors are returned unwrapped so the
// caller can report timeouts.
func (c *Client) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := ValidateURL(req.URL); err != nil {
		return Result{}, err
	}
	if !req.Kind.Valid() {
		return Result{}, services.Wrap(services.ErrFetch, "fetch", "yt-dlp", fmt.Sprintf("unsupported media kind %q", req.Kind), nil)
	}

	inv := invocation{
		Binary:      c.binary,
		CookiesFile: c.cookiesFile,
		Format:      FormatFor(req.Kind, c.videoMaxHeight),
		OutputPath:  req.OutputPath,
	}
	if req.Kind == workspace.KindVideo {
		inv.MergeFormat = strings.TrimPrefix(workspace.TempExtension, ".")
	}
	if inv.CookiesFile != "" {
		if _, err := c.stat(inv.CookiesFile); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, c.logger), "cookies file unavailable; fetching without it", "cookies_missing",
				logging.String("path", inv.CookiesFile),
				logging.Error(err),
				logging.String(logging.FieldImpact, "restricted media may fail to download"),
			)
			inv.CookiesFile = ""
		}
	}

	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("yt-dlp starting", logging.String("url", req.URL), logging.String("format", inv.Format))
	started := time.Now()

	meta, stderr, err := c.run(ctx, inv, req.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, services.Wrap(services.ErrFetch, "fetch", "yt-dlp", errorDetail(stderr), err)
	}

	path := req.OutputPath
	if _, statErr := c.stat(path); statErr != nil {
		if meta.Filename == "" {
			return Result{}, services.Wrap(services.ErrFetch, "fetch", "yt-dlp", "downloaded file missing", statErr)
		}
		if _, altErr := c.stat(meta.Filename); altErr != nil {
			return Result{}, services.Wrap(services.ErrFetch, "fetch", "yt-dlp", "downloaded file missing", altErr)
		}
		path = meta.Filename
	}

	logger.Debug("yt-dlp finished",
		logging.String("title", meta.Title),
		logging.String("path", path),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Result{Title: meta.Title, Path: path}, nil
}

// FormatFor returns the yt-dlp format selector for kind. A positive
// maxHeight caps the video stream height.
func FormatFor(kind workspace.Kind, maxHeight int) string {
	if kind == workspace.KindVideo {
		if maxHeight > 0 {
			return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best", maxHeight)
		}
		return "bestvideo+bestaudio/best"
	}
	return "bestaudio[ext=webm]/bestaudio/best"
}

// ValidateURL rejects anything that is not an absolute http(s) URL.
func ValidateURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return services.Wrap(services.ErrFetch, "fetch", "validate url", "source url is empty", nil)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return services.Wrap(services.ErrFetch, "fetch", "validate url", fmt.Sprintf("invalid source url %q", raw), err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return services.Wrap(services.ErrFetch, "fetch", "validate url", fmt.Sprintf("unsupported url %q: scheme must be http or https", raw), nil)
	}
	if parsed.Host == "" {
		return services.Wrap(services.ErrFetch, "fetch", "validate url", fmt.Sprintf("unsupported url %q: missing host", raw), nil)
	}
	return nil
}

// errorDetail extracts yt-dlp's ERROR lines, falling back to the stderr tail.
func errorDetail(stderr string) string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "ERROR:") {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, "; ")
	}
	return services.TailLines(stderr, 2)
}
