package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mediaconv/internal/services"
	"mediaconv/internal/workspace"
)

// Status is the lifecycle state of a recorded conversion.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusExpired Status = "expired"
)

// Entry is one recorded conversion.
type Entry struct {
	ID              string         `json:"id"`
	SourceURL       string         `json:"source_url"`
	Kind            workspace.Kind `json:"kind"`
	Title           string         `json:"title,omitempty"`
	Status          Status         `json:"status"`
	FileName        string         `json:"file_name,omitempty"`
	Error           string         `json:"error,omitempty"`
	FailureCategory string         `json:"failure_category,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     time.Time      `json:"completed_at,omitzero"`
	DurationMS      int64          `json:"duration_ms,omitempty"`
}

// Completion is the terminal outcome of a conversion started with Begin.
type Completion struct {
	ID              string
	Status          Status
	Title           string
	FileName        string
	Error           string
	FailureCategory string
	CompletedAt     time.Time
}

const entryColumns = `id, source_url, kind, title, status, file_name, error, failure_category, created_at, completed_at, duration_ms`

// Begin records a conversion as running.
func (s *Store) Begin(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return errors.New("history: entry id is required")
	}
	if entry.Status == "" {
		entry.Status = StatusRunning
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx, `INSERT INTO conversions (
            id, source_url, kind, title, status, file_name, error, failure_category, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.SourceURL,
		string(entry.Kind),
		entry.Title,
		string(entry.Status),
		entry.FileName,
		entry.Error,
		entry.FailureCategory,
		entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

// Finish stores the terminal outcome of a conversion.
func (s *Store) Finish(ctx context.Context, done Completion) error {
	if done.CompletedAt.IsZero() {
		done.CompletedAt = time.Now()
	}
	completed := done.CompletedAt.UnixMilli()
	res, err := s.exec(ctx, `UPDATE conversions
        SET status = ?, title = ?, file_name = ?, error = ?, failure_category = ?,
            completed_at = ?, duration_ms = ? - created_at
        WHERE id = ?`,
		string(done.Status),
		done.Title,
		done.FileName,
		done.Error,
		done.FailureCategory,
		completed,
		completed,
		done.ID,
	)
	if err != nil {
		return fmt.Errorf("update conversion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "history", "finish", fmt.Sprintf("conversion %s not recorded", done.ID), nil)
	}
	return nil
}

// List returns the most recent conversions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), s.rebind(`SELECT `+entryColumns+`
        FROM conversions ORDER BY created_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return entries, nil
}

// Get returns a conversion by id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), s.rebind(`SELECT `+entryColumns+`
        FROM conversions WHERE id = ?`), id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, "history", "get", fmt.Sprintf("conversion %s not recorded", id), nil)
	}
	return entry, err
}

// LookupByFile returns the newest successful conversion that produced fileName.
func (s *Store) LookupByFile(ctx context.Context, fileName string) (Entry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), s.rebind(`SELECT `+entryColumns+`
        FROM conversions WHERE file_name = ? AND status = ?
        ORDER BY created_at DESC LIMIT 1`), fileName, string(StatusSuccess))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, services.Wrap(services.ErrNotFound, "history", "lookup", fmt.Sprintf("no conversion produced %s", fileName), nil)
	}
	return entry, err
}

// MarkExpired flags successful conversions whose output file was removed.
func (s *Store) MarkExpired(ctx context.Context, fileName string) (int64, error) {
	res, err := s.exec(ctx, `UPDATE conversions SET status = ? WHERE file_name = ? AND status = ?`,
		string(StatusExpired), fileName, string(StatusSuccess))
	if err != nil {
		return 0, fmt.Errorf("expire conversions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire conversions: %w", err)
	}
	return n, nil
}

// ResetRunning fails conversions left running by a previous process.
func (s *Store) ResetRunning(ctx context.Context, now time.Time) (int64, error) {
	completed := now.UnixMilli()
	res, err := s.exec(ctx, `UPDATE conversions
        SET status = ?, error = ?, failure_category = ?, completed_at = ?, duration_ms = ? - created_at
        WHERE status = ?`,
		string(StatusFailure),
		"interrupted by daemon restart",
		services.FailureInternal,
		completed,
		completed,
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running conversions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset running conversions: %w", err)
	}
	return n, nil
}

// Counts returns the number of recorded conversions per status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(*) FROM conversions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count conversions: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry              Entry
		kind, status       string
		created, completed int64
	)
	if err := row.Scan(
		&entry.ID,
		&entry.SourceURL,
		&kind,
		&entry.Title,
		&status,
		&entry.FileName,
		&entry.Error,
		&entry.FailureCategory,
		&created,
		&completed,
		&entry.DurationMS,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan conversion: %w", err)
	}
	entry.Kind = workspace.Kind(kind)
	entry.Status = Status(status)
	entry.CreatedAt = time.UnixMilli(created)
	if completed > 0 {
		entry.CompletedAt = time.UnixMilli(completed)
	}
	return entry, nil
}
