// Package retention deletes served outputs once they outlive the retention
// window.
package retention

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mediaconv/internal/clock"
	"mediaconv/internal/logging"
)

// CleanupError records a file the sweeper could not inspect or remove.
type CleanupError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result summarizes one sweep.
type Result struct {
	Scanned int            `json:"scanned"`
	Removed []string       `json:"removed,omitempty"`
	Errors  []CleanupError `json:"errors,omitempty"`
}

// Stats accumulates across sweeps.
type Stats struct {
	Sweeps       int64     `json:"sweeps"`
	TotalRemoved int64     `json:"total_removed"`
	TotalErrors  int64     `json:"total_errors"`
	LastSweep    time.Time `json:"last_sweep,omitzero"`
}

// Sweeper scans one directory and removes regular files older than maxAge.
type Sweeper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	onRemove func(ctx context.Context, name string)
	remove   func(string) error

	mu    sync.Mutex
	stats Stats
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithOnRemove runs fn with the base name of every removed file.
func WithOnRemove(fn func(ctx context.Context, name string)) Option {
	return func(s *Sweeper) { s.onRemove = fn }
}

// WithRemoveFunc overrides file removal.
func WithRemoveFunc(fn func(string) error) Option {
	return func(s *Sweeper) {
		if fn != nil {
			s.remove = fn
		}
	}
}

// New builds a sweeper for dir.
func New(dir string, maxAge, interval time.Duration, c clock.Clock, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		clock:    clock.OrReal(c),
		logger:   logging.NewComponentLogger(logger, "sweeper"),
		remove:   os.Remove,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("retention sweeper started",
		logging.String("dir", s.dir),
		logging.Duration("max_age", s.maxAge),
		logging.Duration("interval", s.interval),
	)
	for {
		s.Sweep(ctx)
		if err := clock.Sleep(ctx, s.clock, s.interval); err != nil {
			s.logger.Info("retention sweeper stopped")
			return nil
		}
	}
}

// Sweep performs one pass. Failures on individual files are logged and the
// scan continues.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	logger := logging.WithContext(ctx, s.logger)
	now := s.clock.Now()
	var res Result

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		res.Errors = append(res.Errors, CleanupError{Path: s.dir, Err: err.Error()})
		logging.WarnWithContext(logger, "retention scan failed", "retention_scan_failed",
			logging.String("dir", s.dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check output_dir exists and is readable"),
			logging.String(logging.FieldImpact, "expired outputs are kept until the next sweep"),
		)
		s.record(now, res)
		return res
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				res.Errors = append(res.Errors, CleanupError{Path: path, Err: err.Error()})
				s.warnFile(logger, "retention stat failed", "retention_stat_failed", path, err)
			}
			continue
		}
		res.Scanned++
		if now.Sub(info.ModTime()) <= s.maxAge {
			continue
		}
		if err := s.remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			res.Errors = append(res.Errors, CleanupError{Path: path, Err: err.Error()})
			s.warnFile(logger, "expired output removal failed", "retention_remove_failed", path, err)
			continue
		}
		res.Removed = append(res.Removed, entry.Name())
		logger.Debug("expired output removed",
			logging.String("file", entry.Name()),
			logging.Duration("age", now.Sub(info.ModTime())),
		)
		if s.onRemove != nil {
			s.onRemove(ctx, entry.Name())
		}
	}

	if len(res.Removed) > 0 || len(res.Errors) > 0 {
		logger.Info("retention sweep finished",
			logging.String(logging.FieldEventType, "retention_sweep"),
			logging.Int("scanned", res.Scanned),
			logging.Int("removed", len(res.Removed)),
			logging.Int("errors", len(res.Errors)),
		)
	}
	s.record(now, res)
	return res
}

// Stats returns cumulative sweep counters.
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sweeper) record(now time.Time, res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Sweeps++
	s.stats.TotalRemoved += int64(len(res.Removed))
	s.stats.TotalErrors += int64(len(res.Errors))
	s.stats.LastSweep = now
}

func (s *Sweeper) warnFile(logger *slog.Logger, msg, event, path string, err error) {
	logging.WarnWithContext(logger, msg, event,
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check output_dir permissions"),
		logging.String(logging.FieldImpact, "file is retried on the next sweep"),
	)
}
