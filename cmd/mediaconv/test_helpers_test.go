package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaconv/internal/config"
	"mediaconv/internal/services/ffmpeg"
	"mediaconv/internal/services/ytdlp"
	"mediaconv/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)...)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "mediaconv", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// runCLI executes the command tree. A nil ctx uses a fresh command context.
func runCLI(t *testing.T, ctx *commandContext, args []string, configPath string) (string, string, error) {
	t.Helper()
	if ctx == nil {
		ctx = newCommandContext()
	}
	cmd := buildRootCommand(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

type fetchFunc func(ctx context.Context, req ytdlp.Request) (ytdlp.Result, error)

func (f fetchFunc) Fetch(ctx context.Context, req ytdlp.Request) (ytdlp.Result, error) {
	return f(ctx, req)
}

type transcodeFunc func(ctx context.Context, req ffmpeg.Request) error

func (f transcodeFunc) Transcode(ctx context.Context, req ffmpeg.Request) error { return f(ctx, req) }

// stubContext returns a command context whose conversions never exec.
func stubContext(title string, fetchErr error) *commandContext {
	ctx := newCommandContext()
	ctx.fetcher = fetchFunc(func(_ context.Context, req ytdlp.Request) (ytdlp.Result, error) {
		if fetchErr != nil {
			return ytdlp.Result{}, fetchErr
		}
		if err := os.WriteFile(req.OutputPath, []byte("webm"), 0o644); err != nil {
			return ytdlp.Result{}, err
		}
		return ytdlp.Result{Title: title, Path: req.OutputPath}, nil
	})
	ctx.transcoder = transcodeFunc(func(_ context.Context, req ffmpeg.Request) error {
		return os.WriteFile(req.OutputPath, []byte("encoded"), 0o644)
	})
	return ctx
}

var errStubFetch = errors.New("ERROR: [generic] Unsupported URL")

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return addr
}
