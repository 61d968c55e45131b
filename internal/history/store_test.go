package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"mediaconv/internal/config"
	"mediaconv/internal/history"
	"mediaconv/internal/services"
	"mediaconv/internal/testsupport"
	"mediaconv/internal/workspace"
)

func TestBeginFinishRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Begin(ctx, history.Entry{
		ID:        "c1",
		SourceURL: "https://example.com/v",
		Kind:      workspace.KindAudio,
		CreatedAt: started,
	}); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	running, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if running.Status != history.StatusRunning || running.Kind != workspace.KindAudio {
		t.Fatalf("unexpected running entry %+v", running)
	}

	if err := store.Finish(ctx, history.Completion{
		ID:          "c1",
		Status:      history.StatusSuccess,
		Title:       "Song",
		FileName:    "c1.mp3",
		CompletedAt: started.Add(4 * time.Second),
	}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	done, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if done.Status != history.StatusSuccess || done.Title != "Song" || done.FileName != "c1.mp3" {
		t.Fatalf("unexpected finished entry %+v", done)
	}
	if done.DurationMS != 4000 {
		t.Fatalf("expected 4000ms duration, got %d", done.DurationMS)
	}
	if !done.CreatedAt.Equal(started) {
		t.Fatalf("expected created_at %v, got %v", started, done.CreatedAt)
	}
}

func TestFinishUnknownID(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	err := store.Finish(context.Background(), history.Completion{ID: "missing", Status: history.StatusFailure})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBeginRequiresID(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	if err := store.Begin(context.Background(), history.Entry{SourceURL: "https://example.com"}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestListNewestFirst(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Begin(ctx, history.Entry{
			ID:        id,
			SourceURL: "https://example.com/" + id,
			Kind:      workspace.KindVideo,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Begin %s: %v", id, err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "c" || entries[1].ID != "b" {
		t.Fatalf("unexpected order %+v", entries)
	}
}

func TestLookupByFileAndMarkExpired(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.LookupByFile(ctx, "x.mp4"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found before insert, got %v", err)
	}

	if err := store.Begin(ctx, history.Entry{ID: "x", SourceURL: "https://example.com/x", Kind: workspace.KindVideo}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.Finish(ctx, history.Completion{ID: "x", Status: history.StatusSuccess, Title: "Clip", FileName: "x.mp4"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	entry, err := store.LookupByFile(ctx, "x.mp4")
	if err != nil {
		t.Fatalf("LookupByFile: %v", err)
	}
	if entry.Title != "Clip" {
		t.Fatalf("unexpected title %q", entry.Title)
	}

	n, err := store.MarkExpired(ctx, "x.mp4")
	if err != nil || n != 1 {
		t.Fatalf("MarkExpired: n=%d err=%v", n, err)
	}
	if _, err := store.LookupByFile(ctx, "x.mp4"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected expired entry hidden from lookup, got %v", err)
	}
	n, err = store.MarkExpired(ctx, "x.mp4")
	if err != nil || n != 0 {
		t.Fatalf("second MarkExpired: n=%d err=%v", n, err)
	}
}

func TestResetRunningAndCounts(t *testing.T) {
	store := testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "ok"} {
		if err := store.Begin(ctx, history.Entry{ID: id, SourceURL: "https://example.com/" + id, Kind: workspace.KindAudio}); err != nil {
			t.Fatalf("Begin %s: %v", id, err)
		}
	}
	if err := store.Finish(ctx, history.Completion{ID: "ok", Status: history.StatusSuccess, FileName: "ok.mp3"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	n, err := store.ResetRunning(ctx, time.Now())
	if err != nil || n != 2 {
		t.Fatalf("ResetRunning: n=%d err=%v", n, err)
	}
	entry, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Status != history.StatusFailure || entry.FailureCategory != services.FailureInternal || entry.Error == "" {
		t.Fatalf("unexpected reset entry %+v", entry)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[history.StatusFailure] != 2 || counts[history.StatusSuccess] != 1 || counts[history.StatusRunning] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ctx := context.Background()

	store, err := history.OpenFromConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Begin(ctx, history.Entry{ID: "keep", SourceURL: "https://example.com", Kind: workspace.KindAudio}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_ = store.Close()

	reopened, err := history.OpenFromConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(ctx, "keep"); err != nil {
		t.Fatalf("expected entry after reopen: %v", err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := history.Open(ctx, config.HistoryDriverSQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(ctx, config.HistoryDriverSQLite, path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := history.Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := history.Open(context.Background(), config.HistoryDriverSQLite, "  "); err == nil {
		t.Fatal("expected empty dsn error")
	}
}
