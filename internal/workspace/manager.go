// Package workspace owns the output directory: it allocates per-conversion
// temp and output paths, resolves download names, and removes files.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mediaconv/internal/deps"
	"mediaconv/internal/logging"
	"mediaconv/internal/services"
)

const (
	// TempExtension is the container the fetcher writes intermediates in.
	TempExtension = ".webm"
	// PartialSuffix marks transcoder output that is still being written.
	PartialSuffix = ".part"
)

// Workspace is the set of paths owned by a single conversion. All paths share
// the same stem.
type Workspace struct {
	ID         string
	Kind       Kind
	TempPath   string
	OutputPath string
}

// FileName returns the base name of the output file.
func (w Workspace) FileName() string {
	return filepath.Base(w.OutputPath)
}

// PartialPath is where the transcoder writes before outputPath is renamed
// into place.
func PartialPath(outputPath string) string {
	return outputPath + PartialSuffix
}

// Manager allocates workspaces under one output directory.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// New prepares dir (creating it when missing) and verifies it is writable.
// Any failure is a configuration error.
func New(dir string, logger *slog.Logger) (*Manager, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "prepare output dir", "output directory not configured", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "prepare output dir", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "create output dir", abs, err)
	}
	if err := deps.CheckDirectory(abs); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "check output dir", "", err)
	}
	return &Manager{dir: abs, logger: logging.NewComponentLogger(logger, "workspace")}, nil
}

// Dir returns the absolute output directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Allocate reserves a fresh workspace for kind.
func (m *Manager) Allocate(kind Kind) (Workspace, error) {
	if !kind.Valid() {
		return Workspace{}, services.Wrap(services.ErrValidation, "workspace", "allocate", fmt.Sprintf("unsupported media kind %q", kind), nil)
	}
	id := uuid.New().String()
	return Workspace{
		ID:         id,
		Kind:       kind,
		TempPath:   filepath.Join(m.dir, id+TempExtension),
		OutputPath: filepath.Join(m.dir, id+kind.Extension()),
	}, nil
}

// Remove deletes path. A missing file is not an error; any other failure is
// logged and swallowed.
func (m *Manager) Remove(ctx context.Context, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "file removal failed; leaving it for the sweeper", "workspace_remove_failed",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check output_dir permissions"),
		logging.String(logging.FieldImpact, "file remains until the next retention sweep"),
	)
}

// Resolve maps a client-supplied file name to a regular file inside the
// output directory. Anything that is not a plain visible name of an existing
// file yields ErrNotFound.
func (m *Manager) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", services.Wrap(services.ErrNotFound, "workspace", "resolve", "invalid file name", nil)
	}
	if strings.HasSuffix(name, PartialSuffix) {
		return "", services.Wrap(services.ErrNotFound, "workspace", "resolve", "file is still being written", nil)
	}
	path := filepath.Join(m.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "workspace", "resolve", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrNotFound, "workspace", "resolve", "not a regular file", nil)
	}
	return path, nil
}
