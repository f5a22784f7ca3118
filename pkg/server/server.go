// Package server is the HTTP entrypoint: a single catch-all handler that
// runs the selected pattern (which owns compaction rewriting, scrubbing,
// and metadata extraction), forwards upstream, and streams the response
// back, branching on content type for the post-stream pattern.Response
// hook.
package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pondside-labs/loom/pkg/pattern"
	"github.com/pondside-labs/loom/pkg/proxy"
	"github.com/pondside-labs/loom/pkg/quota"
	"github.com/pondside-labs/loom/pkg/telemetry"
	"github.com/pondside-labs/loom/pkg/types"
	"github.com/pondside-labs/loom/pkg/watcher"
)

// Server wires the full request pipeline.
type Server struct {
	Patterns   *pattern.Registry
	Proxy      *proxy.Engine
	Quota      *quota.Logger
	Metrics    *telemetry.RequestMetrics
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator
	Turns      *TurnManager

	// Watchers and DataDir back the transcript-tailing side task (L15).
	// Left nil, ensuring a watcher is simply skipped.
	Watchers *watcher.Registry
	DataDir  string

	// IdentityCommit surfaces in the /health payload.
	IdentityCommit string
}

// serveHealth answers GET /health on the same surface the proxy route is
// served on, per spec.md's "same HTTP surface" requirement.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "application/json")
	activeWatchers := 0
	if s.Watchers != nil {
		activeWatchers = len(s.Watchers.Active())
	}
	w.Write([]byte(`{"status":"ok","service":"loom","identity_commit":"` + s.IdentityCommit +
		`","active_watchers":` + strconv.Itoa(activeWatchers) + `}`))
}

// transcriptPath derives a session's transcript file location from the
// configured data directory, the naming convention Claude Code itself
// uses for session transcripts.
func (s *Server) transcriptPath(sessionID string) string {
	if s.DataDir == "" || sessionID == "" {
		return ""
	}
	return filepath.Join(s.DataDir, sessionID+".jsonl")
}

// ServeHTTP implements GET /health plus the catch-all proxy route.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/health" {
		s.serveHealth(w, r)
		return
	}

	start := time.Now()

	ctx := s.Propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var span trace.Span
	if s.Tracer != nil {
		ctx, span = s.Tracer.Start(ctx, "request", trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(attribute.String("http.method", r.Method), attribute.String("http.target", r.URL.Path))
		defer span.End()
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		recordSpanError(span, err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	isMessagesEndpoint := r.Method == http.MethodPost && strings.Contains(r.URL.Path, "messages")

	patternName := r.Header.Get("x-loom-pattern")
	p := s.Patterns.FromRequest(r.Header)

	meta := &types.MetadataEnvelope{}
	var body types.RequestBody
	forwardBody := bodyBytes
	var traceID string

	sessionIDHeader := r.Header.Get("x-session-id")
	if s.Watchers != nil {
		if path := s.transcriptPath(sessionIDHeader); path != "" {
			s.Watchers.Ensure(sessionIDHeader, path)
		}
	}

	if isMessagesEndpoint && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			s.Logger.Warn("failed to parse request body as JSON, forwarding unmodified", "err", err)
		} else {
			// The pattern owns compaction rewriting, noise scrubbing, and
			// metadata extraction internally (spec's L7->L8->L6 order);
			// it merges whatever it extracts into meta in place.
			if err := p.Request(ctx, r.Header, &body, meta); err != nil {
				s.Logger.Warn("pattern request hook failed", "pattern", patternName, "err", err)
			}

			traceID = meta.TraceID
			if s.Tracer != nil && traceID != "" && s.Turns != nil {
				var turnSpan trace.Span
				ctx, turnSpan = s.Turns.GetOrCreate(ctx, s.Tracer, traceID, meta.SessionID, meta.Prompt)
				_ = turnSpan
			}

			encoded, err := json.Marshal(&body)
			if err == nil {
				forwardBody = encoded
			}
		}
	}

	outHeaders := propagation.HeaderCarrier(http.Header{})
	s.Propagator.Inject(ctx, outHeaders)

	upstreamHeaders := r.Header.Clone()
	for k := range outHeaders {
		upstreamHeaders.Set(k, outHeaders.Get(k))
	}

	resp, err := s.Proxy.Forward(ctx, r.Method, r.URL.Path, r.URL.RawQuery, upstreamHeaders, bytes.NewReader(forwardBody))
	if err != nil {
		recordSpanError(span, err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if s.Quota != nil {
		requestID := resp.Header.Get("request-id")
		if requestID == "" {
			// The vendor doesn't always echo a request-id (e.g. on some
			// error paths); mint one so the quota log entry still has a
			// stable correlation key.
			requestID = uuid.NewString()
		}
		_ = s.Quota.Log(ctx, resp.Header, requestID)
	}

	for k, v := range proxy.FilterResponseHeaders(resp.Header) {
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}
	w.WriteHeader(resp.StatusCode)

	contentType := resp.Header.Get("content-type")
	if strings.Contains(contentType, "text/event-stream") {
		var captured bytes.Buffer
		_ = proxy.StreamSSE(w, resp.Body, func(chunk []byte) { captured.Write(chunk) })
		if err := p.Response(ctx, resp.Header, captured.Bytes()); err != nil {
			s.Logger.Warn("pattern response hook failed", "pattern", patternName, "err", err)
		}
		if traceID != "" && s.Turns != nil {
			result := parseSSECapture(captured.Bytes())
			s.Turns.AddSpanResult(traceID, result.Text, result.InputTokens, result.OutputTokens)
			if !result.HasToolUse {
				s.Turns.Finalize(traceID)
			}
		}
	} else {
		respBody, _ := io.ReadAll(resp.Body)
		w.Write(respBody)
		if err := p.Response(ctx, resp.Header, respBody); err != nil {
			s.Logger.Warn("pattern response hook failed", "pattern", patternName, "err", err)
		}
		if traceID != "" && s.Turns != nil {
			var msg types.BetaMessageLike
			if json.Unmarshal(respBody, &msg) == nil {
				s.Turns.AddSpanResult(traceID, msg.TextContent(), msg.Usage.InputTokens, msg.Usage.OutputTokens)
				if !msg.HasToolUse() {
					s.Turns.Finalize(traceID)
				}
			}
		}
	}

	statusClass := statusClassOf(resp.StatusCode)
	if span != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode >= 500 {
			span.SetStatus(codes.Error, "upstream 5xx")
		}
	}

	if s.Metrics != nil {
		s.Metrics.Observe(patternName, statusClass, time.Since(start))
	}
}

func statusClassOf(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// recordSpanError records err on span and marks it failed, a no-op when
// span is nil (no tracer configured).
func recordSpanError(span trace.Span, err error) {
	if span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// NewTracer returns the global otel tracer named for this service.
func NewTracer() trace.Tracer {
	return otel.Tracer("github.com/pondside-labs/loom")
}
