package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaconv/internal/activity"
	"mediaconv/internal/conversion"
	"mediaconv/internal/history"
	"mediaconv/internal/server"
	"mediaconv/internal/services"
	"mediaconv/internal/services/ffmpeg"
	"mediaconv/internal/services/ytdlp"
	"mediaconv/internal/testsupport"
	"mediaconv/internal/workspace"
)

type fetchFunc func(ctx context.Context, req ytdlp.Request) (ytdlp.Result, error)

func (f fetchFunc) Fetch(ctx context.Context, req ytdlp.Request) (ytdlp.Result, error) {
	return f(ctx, req)
}

type transcodeFunc func(ctx context.Context, req ffmpeg.Request) error

func (f transcodeFunc) Transcode(ctx context.Context, req ffmpeg.Request) error { return f(ctx, req) }

func okFetcher(title string) fetchFunc {
	return func(_ context.Context, req ytdlp.Request) (ytdlp.Result, error) {
		if err := ytdlp.ValidateURL(req.URL); err != nil {
			return ytdlp.Result{}, err
		}
		if err := os.WriteFile(req.OutputPath, []byte("webm"), 0o644); err != nil {
			return ytdlp.Result{}, err
		}
		return ytdlp.Result{Title: title, Path: req.OutputPath}, nil
	}
}

func copyTranscoder() transcodeFunc {
	return func(_ context.Context, req ffmpeg.Request) error {
		data, err := os.ReadFile(req.InputPath)
		if err != nil {
			return services.Wrap(services.ErrTranscode, "transcode", "ffmpeg", "read input", err)
		}
		return os.WriteFile(req.OutputPath, append([]byte("encoded:"), data...), 0o644)
	}
}

type fixture struct {
	srv     *httptest.Server
	ws      *workspace.Manager
	store   *history.Store
	tracker *activity.Tracker
}

func newFixture(t *testing.T, fetcher conversion.Fetcher) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	ws, err := workspace.New(cfg.Paths.OutputDir, nil)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	store := testsupport.MustOpenHistory(t, cfg)
	tracker := activity.New(nil)
	pipeline := conversion.NewPipeline(ws, fetcher, copyTranscoder(), tracker, nil, conversion.WithHistory(store))
	pool := conversion.NewPool(pipeline, 2, 4, nil)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	opts := server.OptionsFromConfig(cfg)
	opts.Converter = pool
	opts.Workspace = ws
	opts.History = store
	opts.Status = func(context.Context) any {
		return map[string]any{"running": true, "pool": pool.Stats()}
	}
	s := server.New(opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, ws: ws, store: store, tracker: tracker}
}

func getJSON(t *testing.T, target string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return resp
}

func TestRootReportsStatus(t *testing.T) {
	f := newFixture(t, okFetcher("x"))
	var body map[string]string
	resp := getJSON(t, f.srv.URL+"/", &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "success" || body["message"] == "" {
		t.Fatalf("unexpected root response %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
	if !f.tracker.Last().IsZero() {
		t.Fatal("root must not count as activity")
	}
}

func TestConvertAudioThenDownload(t *testing.T) {
	f := newFixture(t, okFetcher("Artist/Song"))

	var body map[string]string
	resp := getJSON(t, f.srv.URL+"/convert/audio?url="+url.QueryEscape("https://example.com/watch?v=abc"), &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", resp.StatusCode, body)
	}
	if body["status"] != "success" || body["title"] != "Artist_Song" {
		t.Fatalf("unexpected body %v", body)
	}
	if !strings.HasPrefix(body["url"], "/downloads/") || !strings.HasSuffix(body["url"], ".mp3") {
		t.Fatalf("unexpected url %q", body["url"])
	}
	if f.tracker.Last().IsZero() {
		t.Fatal("expected conversion to record activity")
	}

	dl, err := http.Get(f.srv.URL + body["url"])
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	data, _ := io.ReadAll(dl.Body)
	if dl.StatusCode != http.StatusOK || string(data) != "encoded:webm" {
		t.Fatalf("unexpected download %d %q", dl.StatusCode, data)
	}
	if ct := dl.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	cd := dl.Header.Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, `filename="Artist_Song.mp3"`) {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if !strings.Contains(cd, "filename*=UTF-8''Artist_Song.mp3") {
		t.Fatalf("expected RFC 5987 title, got %q", cd)
	}
}

func TestConvertMalformedURLFails(t *testing.T) {
	f := newFixture(t, okFetcher("x"))

	var body map[string]string
	resp := getJSON(t, f.srv.URL+"/convert/video?url="+url.QueryEscape("not a url at all"), &body)
	if resp.StatusCode != http.StatusInternalServerError || body["error"] == "" {
		t.Fatalf("expected 500 with error, got %d %v", resp.StatusCode, body)
	}
	if entries := testsupport.DirEntries(t, f.ws.Dir()); len(entries) != 0 {
		t.Fatalf("expected no files, got %v", entries)
	}
}

func TestConvertMissingURLIsBadRequest(t *testing.T) {
	f := newFixture(t, okFetcher("x"))
	var body map[string]string
	resp := getJSON(t, f.srv.URL+"/convert/audio", &body)
	if resp.StatusCode != http.StatusBadRequest || body["error"] == "" {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, body)
	}
}

func TestConvertFetchErrorMessageReachesClient(t *testing.T) {
	f := newFixture(t, fetchFunc(func(context.Context, ytdlp.Request) (ytdlp.Result, error) {
		return ytdlp.Result{}, services.Wrap(services.ErrFetch, "fetch", "yt-dlp", "ERROR: Sign in to confirm your age", errors.New("exit status 1"))
	}))
	var body map[string]string
	resp := getJSON(t, f.srv.URL+"/convert/audio?url="+url.QueryEscape("https://example.com/a"), &body)
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body["error"], "Sign in to confirm your age") {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}
}

func TestDownloadMissingFile(t *testing.T) {
	f := newFixture(t, okFetcher("x"))
	for _, name := range []string{"doesnotexist.mp3", ".hidden", "abc.mp4.part"} {
		var body map[string]string
		resp := getJSON(t, f.srv.URL+"/downloads/"+name, &body)
		if resp.StatusCode != http.StatusNotFound || body["error"] != "File not found" {
			t.Fatalf("%s: expected 404 File not found, got %d %v", name, resp.StatusCode, body)
		}
	}
}

func TestDownloadWithoutHistoryUsesFileName(t *testing.T) {
	f := newFixture(t, okFetcher("x"))
	testsupport.WriteFile(t, filepath.Join(f.ws.Dir(), "manual.mp4"), 8)

	resp, err := http.Get(f.srv.URL + "/downloads/manual.mp4")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="manual.mp4"; filename*=UTF-8''manual.mp4` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
}

func TestConversionsAndStatusEndpoints(t *testing.T) {
	f := newFixture(t, okFetcher("Clip"))
	getJSON(t, f.srv.URL+"/convert/video?url="+url.QueryEscape("https://example.com/v"), nil)

	var list struct {
		Conversions []history.Entry `json:"conversions"`
	}
	resp := getJSON(t, f.srv.URL+"/api/conversions?limit=5", &list)
	if resp.StatusCode != http.StatusOK || len(list.Conversions) != 1 {
		t.Fatalf("unexpected conversions %d %+v", resp.StatusCode, list)
	}
	if list.Conversions[0].Status != history.StatusSuccess || list.Conversions[0].Kind != workspace.KindVideo {
		t.Fatalf("unexpected entry %+v", list.Conversions[0])
	}

	var bad map[string]string
	if resp := getJSON(t, f.srv.URL+"/api/conversions?limit=abc", &bad); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}

	var status map[string]any
	resp = getJSON(t, f.srv.URL+"/api/status", &status)
	if resp.StatusCode != http.StatusOK || status["running"] != true {
		t.Fatalf("unexpected status %d %v", resp.StatusCode, status)
	}
}

func TestUnknownPathAndMethod(t *testing.T) {
	f := newFixture(t, okFetcher("x"))
	var body map[string]string
	if resp := getJSON(t, f.srv.URL+"/nope", &body); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp, err := http.Post(f.srv.URL+"/convert/audio?url=x", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, okFetcher("x"))
	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/convert/audio", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight %d %v", resp.StatusCode, resp.Header)
	}
}

func TestStartServesOnBoundAddress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	opts := server.OptionsFromConfig(cfg)
	s := server.New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	var body map[string]string
	resp := getJSON(t, "http://"+s.Addr()+"/", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
