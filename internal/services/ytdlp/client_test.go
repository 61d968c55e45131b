package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaconv/internal/config"
	"mediaconv/internal/services"
	"mediaconv/internal/workspace"
)

func newTestClient(run runFunc) *Client {
	cfg := config.Default()
	client := New(cfg.Fetcher, nil)
	client.run = run
	return client
}

func TestFormatFor(t *testing.T) {
	if got := FormatFor(workspace.KindAudio, 480); got != "bestaudio[ext=webm]/bestaudio/best" {
		t.Fatalf("unexpected audio format %q", got)
	}
	if got := FormatFor(workspace.KindVideo, 480); got != "bestvideo[height<=480]+bestaudio/best" {
		t.Fatalf("unexpected video format %q", got)
	}
	if got := FormatFor(workspace.KindVideo, 0); got != "bestvideo+bestaudio/best" {
		t.Fatalf("unexpected uncapped video format %q", got)
	}
}

func TestValidateURL(t *testing.T) {
	for _, good := range []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "http://example.com/clip"} {
		if err := ValidateURL(good); err != nil {
			t.Fatalf("ValidateURL(%q): %v", good, err)
		}
	}
	for _, bad := range []string{"", "   ", "not a url", "ftp://example.com/a", "https://", "youtube.com/watch?v=x", "%zz"} {
		err := ValidateURL(bad)
		if !errors.Is(err, services.ErrFetch) {
			t.Fatalf("ValidateURL(%q): expected fetch error, got %v", bad, err)
		}
	}
}

func TestFetchPassesProfileAndReturnsTitle(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "id.webm")
	var got invocation
	client := newTestClient(func(_ context.Context, inv invocation, sourceURL string) (Metadata, string, error) {
		got = inv
		if sourceURL != "https://example.com/v" {
			t.Errorf("unexpected url %q", sourceURL)
		}
		if err := os.WriteFile(inv.OutputPath, []byte("media"), 0o644); err != nil {
			t.Errorf("write: %v", err)
		}
		return Metadata{Title: "Clip"}, "", nil
	})

	res, err := client.Fetch(context.Background(), Request{URL: "https://example.com/v", OutputPath: out, Kind: workspace.KindVideo})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "Clip" || res.Path != out {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.Format != "bestvideo[height<=480]+bestaudio/best" || got.MergeFormat != "webm" || got.OutputPath != out || got.Binary != "yt-dlp" {
		t.Fatalf("unexpected invocation %+v", got)
	}
}

func TestFetchAudioHasNoMergeFormat(t *testing.T) {
	dir := t.TempDir()
	var got invocation
	client := newTestClient(func(_ context.Context, inv invocation, _ string) (Metadata, string, error) {
		got = inv
		return Metadata{}, "", os.WriteFile(inv.OutputPath, []byte("a"), 0o644)
	})
	if _, err := client.Fetch(context.Background(), Request{URL: "https://example.com/a", OutputPath: filepath.Join(dir, "x.webm"), Kind: workspace.KindAudio}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.MergeFormat != "" {
		t.Fatalf("expected no merge format for audio, got %q", got.MergeFormat)
	}
}

func TestFetchPreservesToolError(t *testing.T) {
	client := newTestClient(func(context.Context, invocation, string) (Metadata, string, error) {
		stderr := "[youtube] abc: Downloading webpage\nERROR: [youtube] abc: Video unavailable. This video is not available in your country\n"
		return Metadata{}, stderr, errors.New("exit status 1")
	})

	_, err := client.Fetch(context.Background(), Request{URL: "https://example.com/v", OutputPath: filepath.Join(t.TempDir(), "x.webm"), Kind: workspace.KindAudio})
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ERROR: [youtube] abc: Video unavailable. This video is not available in your country") {
		t.Fatalf("expected verbatim tool error, got %q", err.Error())
	}
}

func TestFetchRejectsInvalidURLWithoutRunning(t *testing.T) {
	called := false
	client := newTestClient(func(context.Context, invocation, string) (Metadata, string, error) {
		called = true
		return Metadata{}, "", nil
	})
	_, err := client.Fetch(context.Background(), Request{URL: "definitely not a url", OutputPath: "x", Kind: workspace.KindVideo})
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if called {
		t.Fatal("expected yt-dlp not to run for an invalid url")
	}
}

func TestFetchMissingOutputFallsBackToReportedFilename(t *testing.T) {
	dir := t.TempDir()
	actual := filepath.Join(dir, "id.webm.mkv")
	client := newTestClient(func(context.Context, invocation, string) (Metadata, string, error) {
		if err := os.WriteFile(actual, []byte("v"), 0o644); err != nil {
			t.Errorf("write: %v", err)
		}
		return Metadata{Title: "T", Filename: actual}, "", nil
	})
	res, err := client.Fetch(context.Background(), Request{URL: "https://example.com/v", OutputPath: filepath.Join(dir, "id.webm"), Kind: workspace.KindVideo})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Path != actual {
		t.Fatalf("expected fallback path %q, got %q", actual, res.Path)
	}
}

func TestFetchMissingOutput(t *testing.T) {
	client := newTestClient(func(context.Context, invocation, string) (Metadata, string, error) {
		return Metadata{Title: "T"}, "", nil
	})
	_, err := client.Fetch(context.Background(), Request{URL: "https://example.com/v", OutputPath: filepath.Join(t.TempDir(), "id.webm"), Kind: workspace.KindAudio})
	if !errors.Is(err, services.ErrFetch) || !strings.Contains(err.Error(), "downloaded file missing") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestFetchReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(func(context.Context, invocation, string) (Metadata, string, error) {
		cancel()
		return Metadata{}, "", errors.New("signal: killed")
	})
	_, err := client.Fetch(ctx, Request{URL: "https://example.com/v", OutputPath: "x", Kind: workspace.KindAudio})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchDropsMissingCookiesFile(t *testing.T) {
	cfg := config.Default()
	cfg.Fetcher.CookiesFile = filepath.Join(t.TempDir(), "cookies.txt")
	client := New(cfg.Fetcher, nil)
	var got invocation
	client.run = func(_ context.Context, inv invocation, _ string) (Metadata, string, error) {
		got = inv
		return Metadata{}, "", os.WriteFile(inv.OutputPath, []byte("a"), 0o644)
	}
	if _, err := client.Fetch(context.Background(), Request{URL: "https://example.com/a", OutputPath: filepath.Join(t.TempDir(), "x.webm"), Kind: workspace.KindAudio}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.CookiesFile != "" {
		t.Fatalf("expected missing cookies file to be dropped, got %q", got.CookiesFile)
	}

	if err := os.WriteFile(cfg.Fetcher.CookiesFile, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatalf("write cookies: %v", err)
	}
	if _, err := client.Fetch(context.Background(), Request{URL: "https://example.com/a", OutputPath: filepath.Join(t.TempDir(), "y.webm"), Kind: workspace.KindAudio}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.CookiesFile != cfg.Fetcher.CookiesFile {
		t.Fatalf("expected cookies file passed through, got %q", got.CookiesFile)
	}
}
