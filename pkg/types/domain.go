package types

import "time"

// Memory is one stored memory surfaced into a prompt, carried inside a
// metadata envelope's "memories" array.
type Memory struct {
	ID        int64
	Content   string
	CreatedAt time.Time
	Score     *float64 // nil when the retrieval had no relevance score
	Query     string   // the retrieval query that surfaced this memory, if any
}

// HUD is the heads-up-display data fetched from the KV store. Any field may
// be nil: a per-key failure yields a nil field, a connection failure
// yields an all-nil HUD.
type HUD struct {
	Weather       *string
	Calendar      *string
	Todos         *string
	TodaySoFar    *string
	TodaySoFarAt  *string
	ToSelf        *string
	ToSelfAt      *string
}

// Summary is one stored period summary row.
type Summary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Text        string
}

// ContextFile is one discovered dynamic context document.
type ContextFile struct {
	RelPath  string
	Autoload string // "all" | "when" | "no"
	When     string
	Content  string
}

// MetadataEnvelope is the out-of-band envelope smuggled inside a user
// message's text content, carrying fields the hook layer wants the proxy
// to see without disturbing the visible conversation.
type MetadataEnvelope struct {
	Prompt    string         `json:"prompt"`
	SessionID string         `json:"session_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Pattern   string         `json:"pattern,omitempty"`
	SentAt    string         `json:"sent_at,omitempty"`
	Memories  []Memory       `json:"-"`
	Family    CanaryFamily   `json:"-"`
}

// CanaryFamily distinguishes which metadata-envelope convention matched.
type CanaryFamily int

const (
	CanaryNone CanaryFamily = iota
	CanaryAlpha
	CanaryDeliverator
)
