package services

import "context"

type contextKey int

const (
	conversionIDKey contextKey = iota
	stageKey
	requestIDKey
)

// WithConversionID tags ctx with the conversion (workspace) id.
func WithConversionID(ctx context.Context, id string) context.Context {
	return withString(ctx, conversionIDKey, id)
}

// ConversionIDFromContext returns the conversion id, if any.
func ConversionIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, conversionIDKey)
}

// WithStage tags ctx with the pipeline stage (fetch, transcode, cleanup).
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithRequestID tags ctx with the HTTP correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

// Empty values leave ctx untouched so a blank id never masks an outer one.
func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	return value, ok && value != ""
}
