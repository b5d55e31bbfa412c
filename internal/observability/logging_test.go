package observability

import (
	"context"
	"testing"
)

func TestContextFieldsAccumulate(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-1")
	ctx = WithSlug(ctx, "my_experiment")
	ctx = WithStage(ctx, "render")

	lc := extractLogContext(ctx)
	if lc.RunID != "run-1" || lc.Slug != "my_experiment" || lc.Stage != "render" {
		t.Errorf("unexpected log context: %+v", lc)
	}
}

func TestContextFieldsOverwrite(t *testing.T) {
	ctx := WithStage(context.Background(), "fetch")
	ctx = WithStage(ctx, "render")
	if got := extractLogContext(ctx).Stage; got != "render" {
		t.Errorf("stage = %q, want render", got)
	}
}

func TestGetLogAttrsSkipsEmpty(t *testing.T) {
	ctx := WithSlug(context.Background(), "x")
	attrs := getLogAttrs(ctx)
	if len(attrs) != 1 {
		t.Errorf("expected 1 attr, got %d", len(attrs))
	}
}
