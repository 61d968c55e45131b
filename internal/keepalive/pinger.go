// Package keepalive pings the service's own URL while clients are active so
// hosts that idle down quiet processes keep it warm.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mediaconv/internal/activity"
	"mediaconv/internal/clock"
	"mediaconv/internal/logging"
)

// Outcome says what a ping attempt did.
type Outcome string

const (
	OutcomeSent Outcome = "sent"
	OutcomeIdle Outcome = "idle"
)

// Stats accumulates across ping attempts.
type Stats struct {
	Sent     int64     `json:"sent"`
	Skipped  int64     `json:"skipped"`
	Failed   int64     `json:"failed"`
	LastPing time.Time `json:"last_ping,omitzero"`
}

// Pinger issues GET requests to target while the tracker reports recent
// activity.
type Pinger struct {
	target   string
	interval time.Duration
	window   time.Duration
	tracker  *activity.Tracker
	clock    clock.Clock
	client   *http.Client
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option customizes a Pinger.
type Option func(*Pinger)

// WithHTTPClient overrides the client used for pings.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pinger) {
		if client != nil {
			p.client = client
		}
	}
}

// New builds a pinger.
func New(target string, interval, window time.Duration, tracker *activity.Tracker, c clock.Clock, logger *slog.Logger, opts ...Option) *Pinger {
	p := &Pinger{
		target:   target,
		interval: interval,
		window:   window,
		tracker:  tracker,
		clock:    clock.OrReal(c),
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logging.NewComponentLogger(logger, "keepalive"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run pings once per interval until ctx is cancelled. Ping failures are
// logged and never stop the loop.
func (p *Pinger) Run(ctx context.Context) error {
	p.logger.Info("keepalive pinger started",
		logging.String("target", p.target),
		logging.Duration("interval", p.interval),
		logging.Duration("activity_window", p.window),
	)
	for {
		_, _ = p.PingOnce(ctx)
		if err := clock.Sleep(ctx, p.clock, p.interval); err != nil {
			p.logger.Info("keepalive pinger stopped")
			return nil
		}
	}
}

// PingOnce pings the target when activity falls inside the window. Errors are
// logged here and also returned.
func (p *Pinger) PingOnce(ctx context.Context) (Outcome, error) {
	if p.tracker == nil || !p.tracker.ActiveWithin(p.window) {
		p.mu.Lock()
		p.stats.Skipped++
		p.mu.Unlock()
		p.logger.Debug("keepalive skipped; no recent activity")
		return OutcomeIdle, nil
	}

	err := p.send(ctx)

	p.mu.Lock()
	p.stats.LastPing = p.clock.Now()
	if err != nil {
		p.stats.Failed++
	} else {
		p.stats.Sent++
	}
	p.mu.Unlock()

	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "keepalive ping failed", "keepalive_failed",
			logging.String("target", p.target),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check keepalive.url points at this service"),
			logging.String(logging.FieldImpact, "host may idle the process down"),
		)
		return OutcomeSent, err
	}
	p.logger.Debug("keepalive ping sent", logging.String("target", p.target))
	return OutcomeSent, nil
}

// Stats returns cumulative counters.
func (p *Pinger) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pinger) send(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return fmt.Errorf("build keepalive request: %w", err)
	}
	req.Header.Set("User-Agent", "mediaconv-keepalive")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("keepalive request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("keepalive request: unexpected status %s", resp.Status)
	}
	return nil
}
