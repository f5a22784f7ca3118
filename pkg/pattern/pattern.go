// Package pattern defines the Pattern interface and the registry that
// selects one per request via the x-loom-pattern header, falling back to
// passthrough for unknown names.
package pattern

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pondside-labs/loom/pkg/types"
)

// Pattern transforms a request before it is forwarded upstream, and
// optionally inspects the response after the upstream call completes.
type Pattern interface {
	Request(ctx context.Context, headers http.Header, body *types.RequestBody, meta *types.MetadataEnvelope) error
	Response(ctx context.Context, headers http.Header, body []byte) error
}

// DefaultPattern is used when no x-loom-pattern header is present, or when
// the requested name is not registered.
const DefaultPattern = "passthrough"

// Registry holds the known patterns by name, built once at startup and
// read-only thereafter (safe for concurrent use without a lock, per the
// single-writer-at-init convention).
type Registry struct {
	patterns map[string]Pattern
	logger   *slog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{patterns: make(map[string]Pattern), logger: logger}
}

// Register adds a pattern under name.
func (r *Registry) Register(name string, p Pattern) {
	r.patterns[name] = p
}

// Get returns the named pattern. An empty name selects DefaultPattern
// silently; an unregistered name falls back to DefaultPattern with a
// warning log.
func (r *Registry) Get(name string) Pattern {
	if name == "" {
		name = DefaultPattern
	}
	if p, ok := r.patterns[name]; ok {
		return p
	}
	r.logger.Warn("unknown pattern requested, falling back to passthrough", "requested", name)
	return r.patterns[DefaultPattern]
}

// FromRequest selects a pattern from the x-loom-pattern header.
func (r *Registry) FromRequest(headers http.Header) Pattern {
	return r.Get(headers.Get("x-loom-pattern"))
}
