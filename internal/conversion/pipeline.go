package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaconv/internal/activity"
	"mediaconv/internal/clock"
	"mediaconv/internal/config"
	"mediaconv/internal/history"
	"mediaconv/internal/logging"
	"mediaconv/internal/resultcache"
	"mediaconv/internal/services"
	"mediaconv/internal/services/ffmpeg"
	"mediaconv/internal/services/ytdlp"
	"mediaconv/internal/textutil"
	"mediaconv/internal/workspace"
)

// Pipeline runs fetch, transcode and cleanup for one request at a time. It is
// safe for concurrent use; every call owns its own workspace.
type Pipeline struct {
	workspaces       *workspace.Manager
	fetcher          Fetcher
	transcoder       Transcoder
	tracker          *activity.Tracker
	recorder         Recorder
	cache            ResultCache
	mirror           Mirror
	clock            clock.Clock
	downloadPrefix   string
	fetchTimeout     time.Duration
	transcodeTimeout time.Duration
	retention        time.Duration
	stat             func(string) (os.FileInfo, error)
	logger           *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithHistory records every conversion in r.
func WithHistory(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithCache reuses results for repeated source URLs.
func WithCache(c ResultCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMirror uploads finished outputs.
func WithMirror(m Mirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

// WithTimeouts bounds the fetch and transcode steps. Zero disables a bound.
func WithTimeouts(fetch, transcode time.Duration) Option {
	return func(p *Pipeline) {
		p.fetchTimeout = fetch
		p.transcodeTimeout = transcode
	}
}

// WithRetention tells the pipeline how long outputs live before the sweeper
// removes them. Cached results are only reused while at least half of that
// lifetime remains.
func WithRetention(maxAge time.Duration) Option {
	return func(p *Pipeline) { p.retention = maxAge }
}

// WithDownloadPrefix sets the public path outputs are served under.
func WithDownloadPrefix(prefix string) Option {
	return func(p *Pipeline) { p.downloadPrefix = strings.TrimRight(prefix, "/") }
}

// WithClock overrides the time source used for history timestamps.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = clock.OrReal(c) }
}

// NewPipeline wires the pipeline collaborators.
func NewPipeline(ws *workspace.Manager, fetcher Fetcher, transcoder Transcoder, tracker *activity.Tracker, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		workspaces:     ws,
		fetcher:        fetcher,
		transcoder:     transcoder,
		tracker:        tracker,
		clock:          clock.Real{},
		downloadPrefix: config.DefaultDownloadPrefix,
		stat:           os.Stat,
		logger:         logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PipelineFromConfig applies the conversion and server sections of cfg.
func PipelineFromConfig(cfg *config.Config) []Option {
	return []Option{
		WithTimeouts(cfg.FetchTimeout(), cfg.TranscodeTimeout()),
		WithDownloadPrefix(cfg.Server.DownloadPrefix),
		WithRetention(cfg.RetentionMaxAge()),
	}
}

// Convert runs one request to completion. Fetch and transcode failures never
// escape as errors; they come back as a failure Result.
func (p *Pipeline) Convert(ctx context.Context, req Request) Result {
	if p.tracker != nil {
		p.tracker.Touch()
	}
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	if !req.Kind.Valid() {
		err := services.Wrap(services.ErrValidation, "convert", "validate request", fmt.Sprintf("unsupported media kind %q", req.Kind), nil)
		return failure("", req.Kind, err)
	}

	if res, ok := p.cached(ctx, req); ok {
		return res
	}

	ws, err := p.workspaces.Allocate(req.Kind)
	if err != nil {
		return failure("", req.Kind, err)
	}
	ctx = services.WithConversionID(ctx, ws.ID)
	logger := logging.WithContext(ctx, p.logger)
	started := p.clock.Now()
	p.begin(ctx, ws, req, started)

	logger.Info("conversion started",
		logging.String(logging.FieldEventType, "conversion_started"),
		logging.String(logging.FieldKind, string(req.Kind)),
		logging.String("url", req.SourceURL),
	)

	res, err := p.run(ctx, ws, req)
	if err != nil {
		result := failure(ws.ID, req.Kind, err)
		logging.WarnWithContext(logger, "conversion failed", "conversion_failed",
			logging.Error(err),
			logging.String("failure_category", services.FailureCategory(err)),
			logging.String(logging.FieldErrorHint, errorHint(err)),
			logging.String(logging.FieldImpact, "client receives an error response"),
		)
		p.finish(ctx, history.Completion{
			ID:              ws.ID,
			Status:          history.StatusFailure,
			Error:           result.Error,
			FailureCategory: services.FailureCategory(err),
			CompletedAt:     p.clock.Now(),
		})
		return result
	}

	if p.cache != nil {
		p.cache.Store(ctx, req.Kind, req.SourceURL, resultcache.Entry{
			ID:       res.ID,
			Title:    res.Title,
			FileName: res.FileName,
			StoredAt: p.clock.Now(),
		})
	}
	p.finish(ctx, history.Completion{
		ID:          ws.ID,
		Status:      history.StatusSuccess,
		Title:       res.Title,
		FileName:    res.FileName,
		CompletedAt: p.clock.Now(),
	})
	logger.Info("conversion completed",
		logging.String(logging.FieldEventType, "conversion_completed"),
		logging.String("title", res.Title),
		logging.String("file", res.FileName),
		logging.Duration("elapsed", p.clock.Now().Sub(started)),
	)
	return res
}

func (p *Pipeline) run(ctx context.Context, ws workspace.Workspace, req Request) (Result, error) {
	fetched, err := p.fetch(ctx, ws, req)
	if err != nil {
		return Result{}, err
	}
	title := textutil.SanitizeTitle(fetched.Title, req.Kind.DefaultTitle())
	input := fetched.Path
	if input == "" {
		input = ws.TempPath
	}

	if err := p.transcode(ctx, ws, input); err != nil {
		return Result{}, err
	}
	info, err := p.stat(ws.OutputPath)
	if err != nil || info.Size() == 0 {
		return Result{}, services.Wrap(services.ErrTranscode, "transcode", "verify output", "output file missing", err)
	}

	p.workspaces.Remove(ctx, input)

	if p.mirror != nil {
		if key, err := p.mirror.Upload(ctx, ws.OutputPath, req.Kind); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "output mirror upload failed", "mirror_upload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check mirror bucket and credentials"),
				logging.String(logging.FieldImpact, "output is served locally only"),
			)
		} else {
			logging.WithContext(ctx, p.logger).Debug("output mirrored", logging.String("key", key))
		}
	}

	return Result{
		Status:   StatusSuccess,
		ID:       ws.ID,
		Kind:     req.Kind,
		Title:    title,
		URL:      p.downloadPrefix + "/" + ws.FileName(),
		FileName: ws.FileName(),
	}, nil
}

func (p *Pipeline) fetch(ctx context.Context, ws workspace.Workspace, req Request) (ytdlp.Result, error) {
	stepCtx, cancel := withTimeout(services.WithStage(ctx, "fetch"), p.fetchTimeout)
	defer cancel()
	res, err := p.fetcher.Fetch(stepCtx, ytdlp.Request{
		URL:        req.SourceURL,
		OutputPath: ws.TempPath,
		Kind:       req.Kind,
	})
	if err != nil {
		return ytdlp.Result{}, stepError(ctx, err, services.ErrFetch, "fetch", "yt-dlp", p.fetchTimeout)
	}
	return res, nil
}

func (p *Pipeline) transcode(ctx context.Context, ws workspace.Workspace, input string) error {
	stepCtx, cancel := withTimeout(services.WithStage(ctx, "transcode"), p.transcodeTimeout)
	defer cancel()
	err := p.transcoder.Transcode(stepCtx, ffmpeg.Request{
		InputPath:  input,
		OutputPath: ws.OutputPath,
		Kind:       ws.Kind,
	})
	if err != nil {
		return stepError(ctx, err, services.ErrTranscode, "transcode", "ffmpeg", p.transcodeTimeout)
	}
	return nil
}

// cached returns a previous result for the same source when its file is
// still on disk and far enough from expiry for the client to download it.
func (p *Pipeline) cached(ctx context.Context, req Request) (Result, bool) {
	if p.cache == nil {
		return Result{}, false
	}
	entry, ok := p.cache.Lookup(ctx, req.Kind, req.SourceURL)
	if !ok {
		return Result{}, false
	}
	path, err := p.workspaces.Resolve(entry.FileName)
	if err != nil {
		return Result{}, false
	}
	if !p.freshEnough(ctx, path) {
		return Result{}, false
	}
	logging.WithContext(ctx, p.logger).Info("conversion served from cache",
		logging.String(logging.FieldEventType, "conversion_cache_hit"),
		logging.String(logging.FieldConversionID, entry.ID),
		logging.String("file", entry.FileName),
	)
	return Result{
		Status:   StatusSuccess,
		ID:       entry.ID,
		Kind:     req.Kind,
		Title:    entry.Title,
		URL:      p.downloadPrefix + "/" + entry.FileName,
		FileName: entry.FileName,
		Cached:   true,
	}, true
}

func (p *Pipeline) freshEnough(ctx context.Context, path string) bool {
	if p.retention <= 0 {
		return true
	}
	info, err := p.stat(path)
	if err != nil {
		return false
	}
	remaining := p.retention - p.clock.Now().Sub(info.ModTime())
	if remaining >= p.retention/2 {
		return true
	}
	logging.WithContext(ctx, p.logger).Debug("cached output too close to expiry; converting again",
		logging.String(logging.FieldEventType, "conversion_cache_stale"),
		logging.String("file", filepath.Base(path)),
		logging.Duration("remaining", remaining),
	)
	return false
}

func (p *Pipeline) begin(ctx context.Context, ws workspace.Workspace, req Request, started time.Time) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Begin(ctx, history.Entry{
		ID:        ws.ID,
		SourceURL: req.SourceURL,
		Kind:      req.Kind,
		Status:    history.StatusRunning,
		CreatedAt: started,
	}); err != nil {
		p.historyFailed(ctx, err)
	}
}

func (p *Pipeline) finish(ctx context.Context, done history.Completion) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Finish(ctx, done); err != nil {
		p.historyFailed(ctx, err)
	}
}

func (p *Pipeline) historyFailed(ctx context.Context, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, p.logger), "history write failed", "history_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check history database"),
		logging.String(logging.FieldImpact, "conversion missing from history"),
	)
}

func withTimeout(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	if limit <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limit)
}

// stepError tags err with marker. A step deadline becomes a timeout; a
// cancelled parent is reported as such.
func stepError(parent context.Context, err, marker error, stage, operation string, limit time.Duration) error {
	if errors.Is(err, marker) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return services.Timeout(marker, stage, operation, limit, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(marker, stage, operation, "cancelled", err)
	}
	return services.Wrap(marker, stage, operation, "", err)
}

func failure(id string, kind workspace.Kind, err error) Result {
	return Result{
		Status: StatusFailure,
		ID:     id,
		Kind:   kind,
		Error:  err.Error(),
		Err:    err,
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "raise conversion timeouts or retry later"
	case errors.Is(err, services.ErrFetch):
		return "check the source url and yt-dlp output"
	case errors.Is(err, services.ErrTranscode):
		return "check ffmpeg output for the failing input"
	default:
		return "check logs for details"
	}
}
