package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrFetch         = errors.New("fetch error")
	ErrTranscode     = errors.New("transcode error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timed out")
	ErrExternalTool  = errors.New("external tool error")
)

// Failure categories reported in history records and logs.
const (
	FailureConfiguration = "configuration"
	FailureValidation    = "validation"
	FailureFetch         = "fetch"
	FailureTranscode     = "transcode"
	FailureNotFound      = "not_found"
	FailureInternal      = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Timeout wraps a deadline failure so that the stage marker, ErrTimeout, and
// the cause all match with errors.Is.
func Timeout(marker error, stage, operation string, limit time.Duration, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	detail := buildDetail(stage, operation, "")
	if err == nil {
		return fmt.Errorf("%w: %s: %w after %s", marker, detail, ErrTimeout, limit)
	}
	return fmt.Errorf("%w: %s: %w after %s: %w", marker, detail, ErrTimeout, limit, err)
}

// FailureCategory maps an error to the category recorded for a failed conversion.
func FailureCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return FailureConfiguration
	case errors.Is(err, ErrValidation):
		return FailureValidation
	case errors.Is(err, ErrFetch):
		return FailureFetch
	case errors.Is(err, ErrTranscode):
		return FailureTranscode
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	default:
		return FailureInternal
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
