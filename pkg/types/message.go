package types

import "encoding/json"

// Message is one entry of a request body's "messages" array. Content is
// either a plain string or a []ContentBlock, mirroring the Anthropic
// Messages API's own union shape.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content any    `json:"content"`
}

// Blocks returns the message content normalized to a block slice,
// regardless of whether it was sent as a bare string.
func (m Message) Blocks() []ContentBlock {
	switch c := m.Content.(type) {
	case string:
		return []ContentBlock{{Type: "text", Text: c}}
	case []ContentBlock:
		return c
	case []any:
		return NormalizeBlockList(c)
	default:
		return nil
	}
}

// IsToolResultOnly reports whether every block in the message is a
// tool_result block (used to suppress synthetic memorables injection).
func (m Message) IsToolResultOnly() bool {
	blocks := m.Blocks()
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if b.Type != "tool_result" {
			return false
		}
	}
	return true
}

// SystemEntry is one element of the request body's top-level "system"
// array form. System may also arrive as a bare string.
type SystemEntry struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// RequestBody is the decoded Anthropic Messages API request envelope, the
// unit every pipeline stage (scrub, metadata, compact, pattern) mutates.
type RequestBody struct {
	Model     string       `json:"model"`
	Messages  []Message    `json:"messages"`
	System    any          `json:"system,omitempty"` // string | []SystemEntry
	MaxTokens int          `json:"max_tokens,omitempty"`
	Metadata  *RequestMeta `json:"metadata,omitempty"`
	Tools     []ToolDef    `json:"tools,omitempty"`
	Stream    bool         `json:"stream,omitempty"`
}

// ToolDef is a tool definition as sent upstream; passed through unchanged.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// RequestMeta is the Anthropic "metadata" request field, distinct from the
// pipeline's own envelope (pkg/metadata) that rides inside a content block.
type RequestMeta struct {
	UserID string `json:"user_id,omitempty"`
}

// SystemBlocks normalizes RequestBody.System to a slice, preserving a bare
// string as a single entry at index 0.
func (r *RequestBody) SystemBlocks() []SystemEntry {
	switch s := r.System.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []SystemEntry{{Type: "text", Text: s}}
	case []SystemEntry:
		return s
	case []any:
		out := make([]SystemEntry, 0, len(s))
		for _, raw := range s {
			data, err := json.Marshal(raw)
			if err != nil {
				continue
			}
			var e SystemEntry
			if json.Unmarshal(data, &e) == nil {
				out = append(out, e)
			}
		}
		return out
	default:
		return nil
	}
}

// SetSystemBlocks replaces the system field with the given slice.
func (r *RequestBody) SetSystemBlocks(blocks []SystemEntry) {
	r.System = blocks
}
