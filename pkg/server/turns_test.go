package server

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestJoinText(t *testing.T) {
	if got := joinText(nil); got != "" {
		t.Errorf("empty slice: got %q", got)
	}
	if got := joinText([]string{"a"}); got != "a" {
		t.Errorf("single: got %q", got)
	}
	if got := joinText([]string{"a", "b"}); got != "a\n\nb" {
		t.Errorf("multi: got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("under limit: got %q", got)
	}
	if got := truncate("0123456789extra", 10); got != "0123456789" {
		t.Errorf("over limit: got %q", got)
	}
}

func TestTurnManager_GetOrCreateReusesSameTrace(t *testing.T) {
	m := NewTurnManager()
	tracer := otel.Tracer("test")

	ctx1, span1 := m.GetOrCreate(context.Background(), tracer, "trace-1", "sess-1", "hi")
	ctx2, span2 := m.GetOrCreate(context.Background(), tracer, "trace-1", "sess-1", "hi")

	if span1 != span2 {
		t.Error("expected the same span to be reused for the same trace_id")
	}
	if ctx1 != ctx2 {
		t.Error("expected the same context to be reused for the same trace_id")
	}
}

func TestTurnManager_AddSpanResultAndFinalizeClearsTrace(t *testing.T) {
	m := NewTurnManager()
	tracer := otel.Tracer("test")

	m.GetOrCreate(context.Background(), tracer, "trace-2", "sess-2", "hi")
	m.AddSpanResult("trace-2", "partial output", 10, 5)
	m.AddSpanResult("trace-2", "more output", 2, 1)

	m.mu.Lock()
	turn := m.active["trace-2"]
	m.mu.Unlock()
	if turn == nil {
		t.Fatal("expected an active turn before finalize")
	}
	if turn.totalInputTokens != 12 || turn.totalOutputTokens != 6 {
		t.Errorf("unexpected totals: in=%d out=%d", turn.totalInputTokens, turn.totalOutputTokens)
	}

	m.Finalize("trace-2")

	m.mu.Lock()
	_, stillActive := m.active["trace-2"]
	m.mu.Unlock()
	if stillActive {
		t.Error("expected trace to be removed after Finalize")
	}

	// Finalizing an unknown trace_id is a no-op, not a panic.
	m.Finalize("never-seen")
}
