package conversion

import (
	"context"

	"mediaconv/internal/history"
	"mediaconv/internal/resultcache"
	"mediaconv/internal/services/ffmpeg"
	"mediaconv/internal/services/ytdlp"
	"mediaconv/internal/workspace"
)

// Request asks for one source URL to be converted to kind.
type Request struct {
	SourceURL string
	Kind      workspace.Kind
}

// Status is the outcome of a conversion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result describes a finished conversion. On failure only Status, ID, Kind,
// Error and Err are set.
type Result struct {
	Status   Status         `json:"status"`
	ID       string         `json:"id,omitempty"`
	Kind     workspace.Kind `json:"kind,omitempty"`
	Title    string         `json:"title,omitempty"`
	URL      string         `json:"url,omitempty"`
	FileName string         `json:"file_name,omitempty"`
	Error    string         `json:"error,omitempty"`
	Cached   bool           `json:"cached,omitempty"`
	Err      error          `json:"-"`
}

// Succeeded reports whether the conversion produced a servable file.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Fetcher downloads source media into a workspace temp path.
type Fetcher interface {
	Fetch(ctx context.Context, req ytdlp.Request) (ytdlp.Result, error)
}

// Transcoder converts the fetched intermediate into the final output.
type Transcoder interface {
	Transcode(ctx context.Context, req ffmpeg.Request) error
}

// Recorder persists conversion history.
type Recorder interface {
	Begin(ctx context.Context, entry history.Entry) error
	Finish(ctx context.Context, done history.Completion) error
}

// ResultCache remembers finished conversions by source URL.
type ResultCache interface {
	Lookup(ctx context.Context, kind workspace.Kind, sourceURL string) (resultcache.Entry, bool)
	Store(ctx context.Context, kind workspace.Kind, sourceURL string, entry resultcache.Entry)
}

// Mirror copies finished outputs to remote storage.
type Mirror interface {
	Upload(ctx context.Context, localPath string, kind workspace.Kind) (string, error)
}

// Converter runs a single conversion to completion.
type Converter interface {
	Convert(ctx context.Context, req Request) Result
}
