package server

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// activeTurn groups multiple upstream calls sharing one trace_id under a
// single parent "turn" span, accumulating token counts and output text
// until the turn is finalized (the response carries no tool_use).
type activeTurn struct {
	span              trace.Span
	ctx               context.Context
	sessionID         string
	prompt            string
	spanCount         int
	totalInputTokens  int
	totalOutputTokens int
	accumulatedText   []string
}

// TurnManager tracks in-progress turns by trace_id.
type TurnManager struct {
	mu     sync.Mutex
	active map[string]*activeTurn
}

// NewTurnManager builds an empty manager.
func NewTurnManager() *TurnManager {
	return &TurnManager{active: make(map[string]*activeTurn)}
}

// GetOrCreate returns the context to use for a child span: either the
// existing turn's parent context (if trace_id is already tracked), or a
// freshly-created "turn" span's context.
func (m *TurnManager) GetOrCreate(ctx context.Context, tracer trace.Tracer, traceID, sessionID, prompt string) (context.Context, trace.Span) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.active[traceID]; ok {
		return t.ctx, t.span
	}

	spanCtx, span := tracer.Start(ctx, "turn", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("openinference.span.kind", "CHAIN"),
		attribute.String("session.id", sessionID),
		attribute.String("input.mime_type", "text/plain"),
	)

	m.active[traceID] = &activeTurn{span: span, ctx: spanCtx, sessionID: sessionID, prompt: prompt}
	return spanCtx, span
}

// AddSpanResult records one upstream call's contribution to the turn.
func (m *TurnManager) AddSpanResult(traceID, textOutput string, inputTokens, outputTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[traceID]
	if !ok {
		return
	}
	t.spanCount++
	t.totalInputTokens += inputTokens
	t.totalOutputTokens += outputTokens
	if textOutput != "" {
		t.accumulatedText = append(t.accumulatedText, textOutput)
	}
}

// Finalize ends the turn's parent span, recording accumulated output and
// token totals, and stops tracking the trace_id.
func (m *TurnManager) Finalize(traceID string) {
	m.mu.Lock()
	t, ok := m.active[traceID]
	if ok {
		delete(m.active, traceID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	fullOutput := joinText(t.accumulatedText)
	if fullOutput != "" {
		t.span.SetAttributes(
			attribute.String("output.value", truncate(fullOutput, 4000)),
			attribute.String("output.mime_type", "text/plain"),
		)
	}
	t.span.SetAttributes(
		attribute.Int("llm.token_count.prompt", t.totalInputTokens),
		attribute.Int("llm.token_count.completion", t.totalOutputTokens),
		attribute.Int("llm.token_count.total", t.totalInputTokens+t.totalOutputTokens),
	)
	t.span.End()
}

func joinText(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
