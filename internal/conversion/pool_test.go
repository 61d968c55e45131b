package conversion_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediaconv/internal/conversion"
	"mediaconv/internal/workspace"
)

type gatedConverter struct {
	release chan struct{}
	started chan struct{}
	current atomic.Int64
	peak    atomic.Int64
}

func newGatedConverter() *gatedConverter {
	return &gatedConverter{release: make(chan struct{}), started: make(chan struct{}, 64)}
}

func (g *gatedConverter) Convert(ctx context.Context, req conversion.Request) conversion.Result {
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return conversion.Result{Status: conversion.StatusFailure, Error: ctx.Err().Error(), Err: ctx.Err()}
	}
	if req.SourceURL == "bad" {
		return conversion.Result{Status: conversion.StatusFailure, Error: "boom"}
	}
	return conversion.Result{Status: conversion.StatusSuccess, Title: req.SourceURL, Kind: req.Kind}
}

type converterFunc func(ctx context.Context, req conversion.Request) conversion.Result

func (f converterFunc) Convert(ctx context.Context, req conversion.Request) conversion.Result {
	return f(ctx, req)
}

func waitStarted(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for conversion %d to start", i+1)
		}
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	conv := newGatedConverter()
	pool := conversion.NewPool(conv, 2, 8, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	const n = 6
	var wg sync.WaitGroup
	results := make(chan conversion.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := pool.Submit(context.Background(), conversion.Request{SourceURL: "ok", Kind: workspace.KindAudio})
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			results <- res
		}()
	}

	waitStarted(t, conv.started, 2)
	deadline := time.Now().Add(5 * time.Second)
	for pool.Stats().Queued != n-2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if stats := pool.Stats(); stats.Active != 2 || stats.Queued != n-2 {
		t.Fatalf("unexpected stats while saturated: %+v", stats)
	}
	close(conv.release)
	wg.Wait()
	close(results)

	for res := range results {
		if !res.Succeeded() {
			t.Fatalf("unexpected failure %+v", res)
		}
	}
	if peak := conv.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent conversions, saw %d", peak)
	}
	if stats := pool.Stats(); stats.Completed != n || stats.Failed != 0 || stats.Active != 0 {
		t.Fatalf("unexpected final stats %+v", stats)
	}
}

func TestPoolCountsFailures(t *testing.T) {
	conv := newGatedConverter()
	close(conv.release)
	pool := conversion.NewPool(conv, 1, 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	res, err := pool.Submit(context.Background(), conversion.Request{SourceURL: "bad", Kind: workspace.KindVideo})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Succeeded() || res.Error != "boom" {
		t.Fatalf("unexpected result %+v", res)
	}
	if stats := pool.Stats(); stats.Failed != 1 || stats.Completed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPoolSubmitAfterStop(t *testing.T) {
	pool := conversion.NewPool(newGatedConverter(), 1, 1, nil)
	pool.Start(context.Background())
	pool.Stop()

	if _, err := pool.Submit(context.Background(), conversion.Request{SourceURL: "ok", Kind: workspace.KindAudio}); !errors.Is(err, conversion.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	pool.Stop()
}

func TestPoolSubmitHonorsCallerContext(t *testing.T) {
	conv := newGatedConverter()
	pool := conversion.NewPool(conv, 1, 0, nil)
	pool.Start(context.Background())
	defer func() {
		close(conv.release)
		pool.Stop()
	}()

	go func() {
		_, _ = pool.Submit(context.Background(), conversion.Request{SourceURL: "ok", Kind: workspace.KindAudio})
	}()
	waitStarted(t, conv.started, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pool.Submit(ctx, conversion.Request{SourceURL: "queued", Kind: workspace.KindAudio}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoolContextCancellationStopsInFlight(t *testing.T) {
	conv := newGatedConverter()
	ctx, cancel := context.WithCancel(context.Background())
	pool := conversion.NewPool(conv, 1, 1, nil)
	pool.Start(ctx)

	done := make(chan conversion.Result, 1)
	go func() {
		res, _ := pool.Submit(context.Background(), conversion.Request{SourceURL: "ok", Kind: workspace.KindAudio})
		done <- res
	}()
	waitStarted(t, conv.started, 1)
	cancel()

	select {
	case res := <-done:
		if res.Succeeded() || !errors.Is(res.Err, context.Canceled) {
			t.Fatalf("expected cancelled result, got %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight conversion was not cancelled")
	}
	pool.Stop()

	if _, err := pool.Submit(context.Background(), conversion.Request{SourceURL: "ok", Kind: workspace.KindAudio}); !errors.Is(err, conversion.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed after cancel, got %v", err)
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := conversion.NewPool(converterFunc(func(context.Context, conversion.Request) conversion.Result {
		panic("unexpected nil")
	}), 1, 1, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	res, err := pool.Submit(context.Background(), conversion.Request{SourceURL: "x", Kind: workspace.KindAudio})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Succeeded() || res.Error == "" {
		t.Fatalf("expected failure result from panic, got %+v", res)
	}
	if stats := pool.Stats(); stats.Failed != 1 {
		t.Fatalf("expected failure counted, got %+v", stats)
	}
}
