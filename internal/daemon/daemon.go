package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"mediaconv/internal/activity"
	"mediaconv/internal/clock"
	"mediaconv/internal/config"
	"mediaconv/internal/conversion"
	"mediaconv/internal/deps"
	"mediaconv/internal/history"
	"mediaconv/internal/keepalive"
	"mediaconv/internal/logging"
	"mediaconv/internal/resultcache"
	"mediaconv/internal/retention"
	"mediaconv/internal/server"
	"mediaconv/internal/services/ffmpeg"
	"mediaconv/internal/services/s3mirror"
	"mediaconv/internal/services/ytdlp"
	"mediaconv/internal/workspace"
)

// Daemon owns every long-running component and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock

	lockPath string
	lock     *flock.Flock

	workspace *workspace.Manager
	tracker   *activity.Tracker
	history   *history.Store
	cache     *resultcache.Cache
	mirror    *s3mirror.Mirror
	pool      *conversion.Pool
	server    *server.Server
	sweeper   *retention.Sweeper
	pinger    *keepalive.Pinger

	running   atomic.Bool
	startedAt atomic.Int64
	mu        sync.Mutex
	cancel    context.CancelFunc
	loops     *errgroup.Group
}

// Status is the runtime snapshot served by /api/status and the CLI.
type Status struct {
	Running       bool                   `json:"running"`
	StartedAt     time.Time              `json:"started_at,omitzero"`
	OutputDir     string                 `json:"output_dir"`
	LockFilePath  string                 `json:"lock_file"`
	Dependencies  []deps.Status          `json:"dependencies"`
	Disk          *deps.DiskUsage        `json:"disk,omitempty"`
	Pool          conversion.PoolStats   `json:"pool"`
	Retention     retention.Stats        `json:"retention"`
	KeepAlive     *keepalive.Stats       `json:"keepalive,omitempty"`
	LastActivity  time.Time              `json:"last_activity,omitzero"`
	History       map[history.Status]int `json:"history,omitempty"`
	CacheEnabled  bool                   `json:"cache_enabled"`
	CacheError    string                 `json:"cache_error,omitempty"`
	MirrorEnabled bool                   `json:"mirror_enabled"`
}

// Option customizes daemon construction.
type Option func(*builder)

type builder struct {
	clock      clock.Clock
	fetcher    conversion.Fetcher
	transcoder conversion.Transcoder
	httpClient *http.Client
}

// WithClock replaces the system clock for every time-driven component.
func WithClock(c clock.Clock) Option {
	return func(b *builder) { b.clock = c }
}

// WithFetcher replaces the yt-dlp client.
func WithFetcher(f conversion.Fetcher) Option {
	return func(b *builder) { b.fetcher = f }
}

// WithTranscoder replaces the ffmpeg client.
func WithTranscoder(t conversion.Transcoder) Option {
	return func(b *builder) { b.transcoder = t }
}

// WithPingClient replaces the HTTP client used for keep-alive pings.
func WithPingClient(client *http.Client) Option {
	return func(b *builder) { b.httpClient = client }
}

// New constructs the daemon and its components. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	b := builder{}
	for _, opt := range opts {
		opt(&b)
	}
	c := clock.OrReal(b.clock)

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	ws, err := workspace.New(cfg.Paths.OutputDir, logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		clock:     c,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
		workspace: ws,
		tracker:   activity.New(c),
	}

	if cfg.History.Enabled {
		store, err := history.OpenFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		d.history = store
	}
	d.cache = resultcache.New(cfg.Cache, cfg.RetentionMaxAge(), logger)
	mirror, err := s3mirror.New(cfg.Mirror, logger)
	if err != nil {
		d.closeStores()
		return nil, err
	}
	d.mirror = mirror

	fetcher := b.fetcher
	if fetcher == nil {
		fetcher = ytdlp.New(cfg.Fetcher, logger)
	}
	transcoder := b.transcoder
	if transcoder == nil {
		transcoder = ffmpeg.New(cfg.Transcoder, logger)
	}

	pipelineOpts := append(conversion.PipelineFromConfig(cfg), conversion.WithClock(c))
	if d.history != nil {
		pipelineOpts = append(pipelineOpts, conversion.WithHistory(d.history))
	}
	if d.cache.Enabled() {
		pipelineOpts = append(pipelineOpts, conversion.WithCache(d.cache))
	}
	if d.mirror != nil {
		pipelineOpts = append(pipelineOpts, conversion.WithMirror(d.mirror))
	}
	pipeline := conversion.NewPipeline(ws, fetcher, transcoder, d.tracker, logger, pipelineOpts...)
	d.pool = conversion.NewPool(pipeline, cfg.Conversion.Workers, cfg.Conversion.QueueSize, logger)

	serverOpts := server.OptionsFromConfig(cfg)
	serverOpts.Converter = d.pool
	serverOpts.Workspace = ws
	serverOpts.Status = func(ctx context.Context) any { return d.Status(ctx) }
	serverOpts.Logger = logger
	if d.history != nil {
		serverOpts.History = d.history
	}
	d.server = server.New(serverOpts)

	d.sweeper = retention.New(ws.Dir(), cfg.RetentionMaxAge(), cfg.SweepInterval(), c, logger,
		retention.WithOnRemove(d.forget))

	if cfg.KeepAlive.Enabled {
		client := b.httpClient
		if client == nil {
			client = &http.Client{Timeout: cfg.PingTimeout()}
		}
		d.pinger = keepalive.New(cfg.KeepAlive.URL, cfg.PingInterval(), cfg.ActivityWindow(), d.tracker, c, logger,
			keepalive.WithHTTPClient(client))
	}
	return d, nil
}

// Start acquires the lock and launches the server, pool, sweeper, and pinger.
// A daemon runs at most once; build a new one after Stop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediaconv daemon instance is already running")
	}

	if d.history != nil {
		if n, err := d.history.ResetRunning(ctx, d.clock.Now()); err != nil {
			logging.WarnWithContext(d.logger, "history reset failed", "history_reset_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check history database access"),
				logging.String(logging.FieldImpact, "interrupted conversions stay marked running"),
			)
		} else if n > 0 {
			d.logger.Info("interrupted conversions marked failed", logging.Int64("count", n))
		}
	}

	if d.cache.Enabled() {
		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		if err := d.cache.Ping(pingCtx); err != nil {
			logging.WarnWithContext(d.logger, "result cache unreachable", "cache_unreachable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check cache.redis_addr and that Redis is running"),
				logging.String(logging.FieldImpact, "every conversion runs without cache reuse"),
			)
		}
		cancelPing()
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.pool.Start(runCtx)
	if err := d.server.Start(runCtx); err != nil {
		cancel()
		d.pool.Stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	loops, loopCtx := errgroup.WithContext(runCtx)
	loops.Go(func() error { return d.sweeper.Run(loopCtx) })
	if d.pinger != nil {
		loops.Go(func() error { return d.pinger.Run(loopCtx) })
	}

	d.mu.Lock()
	d.cancel = cancel
	d.loops = loops
	d.mu.Unlock()

	d.startedAt.Store(d.clock.Now().UnixNano())
	d.running.Store(true)
	d.logger.Info("mediaconv daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.Addr()),
		logging.String("output_dir", d.workspace.Dir()),
		logging.Bool("keepalive", d.pinger != nil),
		logging.Bool("history", d.history != nil),
		logging.Bool("cache", d.cache.Enabled()),
		logging.Bool("mirror", d.mirror != nil),
	)
	return nil
}

// Stop stops accepting requests, drains the pool, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.Stop()
	d.mu.Lock()
	cancel, loops := d.cancel, d.loops
	d.cancel, d.loops = nil, nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.pool.Stop()
	if loops != nil {
		if err := loops.Wait(); err != nil {
			d.logger.Warn("background loop exited with error", logging.Error(err))
		}
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediaconv daemon stopped")
}

// Close stops the daemon and releases its stores.
func (d *Daemon) Close() error {
	d.Stop()
	return d.closeStores()
}

func (d *Daemon) closeStores() error {
	var errs []error
	if d.cache != nil {
		errs = append(errs, d.cache.Close())
	}
	if d.history != nil {
		errs = append(errs, d.history.Close())
	}
	return errors.Join(errs...)
}

// Addr returns the bound API address while running.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Handler exposes the API handler.
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler()
}

// Sweep runs one retention pass outside the schedule.
func (d *Daemon) Sweep(ctx context.Context) retention.Result {
	return d.sweeper.Sweep(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		OutputDir:     d.workspace.Dir(),
		LockFilePath:  d.lockPath,
		Dependencies:  deps.CheckBinaries(deps.Requirements(d.cfg)),
		Pool:          d.pool.Stats(),
		Retention:     d.sweeper.Stats(),
		LastActivity:  d.tracker.Last(),
		CacheEnabled:  d.cache.Enabled(),
		MirrorEnabled: d.mirror != nil,
	}
	if ns := d.startedAt.Load(); ns != 0 && status.Running {
		status.StartedAt = time.Unix(0, ns)
	}
	if usage, err := deps.CheckDiskUsage(d.workspace.Dir()); err == nil {
		status.Disk = &usage
	}
	if d.pinger != nil {
		stats := d.pinger.Stats()
		status.KeepAlive = &stats
	}
	if d.history != nil {
		if counts, err := d.history.Counts(ctx); err == nil {
			status.History = counts
		}
	}
	if status.CacheEnabled {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := d.cache.Ping(pingCtx); err != nil {
			status.CacheError = err.Error()
		}
		cancel()
	}
	return status
}

// forget runs after the sweeper deletes an output.
func (d *Daemon) forget(ctx context.Context, name string) {
	if d.history != nil {
		if _, err := d.history.MarkExpired(ctx, name); err != nil {
			d.logger.Warn("history expire failed", logging.String("file", name), logging.Error(err))
		}
	}
	if d.mirror != nil {
		if err := d.mirror.Remove(ctx, name); err != nil {
			logging.WarnWithContext(d.logger, "mirror remove failed", "mirror_remove_failed",
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "expired object remains in bucket"),
			)
		}
	}
}
