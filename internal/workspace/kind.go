package workspace

import (
	"fmt"
	"strings"

	"mediaconv/internal/services"
)

// Kind selects the fetch profile and output container of a conversion.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind accepts "audio" or "video" (case-insensitive).
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindAudio:
		return KindAudio, nil
	case KindVideo:
		return KindVideo, nil
	default:
		return "", services.Wrap(services.ErrValidation, "request", "parse kind", fmt.Sprintf("unsupported media kind %q", value), nil)
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// Extension returns the output file extension, including the dot.
func (k Kind) Extension() string {
	switch k {
	case KindAudio:
		return ".mp3"
	case KindVideo:
		return ".mp4"
	default:
		return ""
	}
}

// DefaultTitle is used when the fetcher reports no title.
func (k Kind) DefaultTitle() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

func (k Kind) String() string { return string(k) }
