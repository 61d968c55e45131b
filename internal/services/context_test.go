package services_test

import (
	"context"
	"testing"

	"mediaconv/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithConversionID(ctx, "0b6f")
	ctx = services.WithStage(ctx, "transcode")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ConversionIDFromContext(ctx); !ok || id != "0b6f" {
		t.Fatalf("unexpected conversion id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcode" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithConversionID(ctx, "")
	ctx = services.WithRequestID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.ConversionIDFromContext(ctx); ok {
		t.Fatal("expected no conversion id")
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id")
	}
}

func TestBlankValueKeepsOuterID(t *testing.T) {
	ctx := services.WithRequestID(context.Background(), "outer")
	ctx = services.WithRequestID(ctx, "")
	if rid, _ := services.RequestIDFromContext(ctx); rid != "outer" {
		t.Fatalf("expected outer request id, got %q", rid)
	}
}
