// Package types defines the wire shapes of the Anthropic Messages API as
// seen by the proxy: request bodies, response bodies, and the content-block
// union both carry.
package types

import "encoding/json"

// CacheControl marks a block or system entry as an ephemeral prompt-cache
// boundary.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// ContentBlock is a discriminated union for message content.
//
// Invariants:
//   - type="text":        Text is set
//   - type="tool_use":    ID, Name, Input are set
//   - type="tool_result":  ToolUseID is set, Content holds string or []ContentBlock
//   - type="thinking":    Thinking is set
type ContentBlock struct {
	Type string `json:"type"`

	// type="text"
	Text string `json:"text,omitempty"`

	// type="tool_use"
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// type="tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"` // string | []ContentBlock
	IsError   bool   `json:"is_error,omitempty"`

	// type="thinking"
	Thinking string `json:"thinking,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// MarshalJSON produces a clean JSON representation with only fields relevant
// to the block type, matching how the Anthropic API emits each variant.
func (cb ContentBlock) MarshalJSON() ([]byte, error) {
	switch cb.Type {
	case "text":
		return json.Marshal(struct {
			Type         string        `json:"type"`
			Text         string        `json:"text"`
			CacheControl *CacheControl `json:"cache_control,omitempty"`
		}{Type: "text", Text: cb.Text, CacheControl: cb.CacheControl})

	case "tool_use":
		return json.Marshal(struct {
			Type         string         `json:"type"`
			ID           string         `json:"id"`
			Name         string         `json:"name"`
			Input        map[string]any `json:"input"`
			CacheControl *CacheControl  `json:"cache_control,omitempty"`
		}{Type: "tool_use", ID: cb.ID, Name: cb.Name, Input: cb.Input, CacheControl: cb.CacheControl})

	case "tool_result":
		return json.Marshal(struct {
			Type      string        `json:"type"`
			ToolUseID string        `json:"tool_use_id"`
			Content   any           `json:"content,omitempty"`
			IsError   bool          `json:"is_error,omitempty"`
			CC        *CacheControl `json:"cache_control,omitempty"`
		}{Type: "tool_result", ToolUseID: cb.ToolUseID, Content: cb.Content, IsError: cb.IsError, CC: cb.CacheControl})

	case "thinking":
		return json.Marshal(struct {
			Type     string `json:"type"`
			Thinking string `json:"thinking"`
		}{Type: "thinking", Thinking: cb.Thinking})

	default:
		type Alias ContentBlock
		return json.Marshal(Alias(cb))
	}
}

// DecodeBlock converts a raw JSON-decoded value — typically a
// map[string]any produced by unmarshaling an array element into an `any`
// field — into a typed ContentBlock by round-tripping through JSON.
func DecodeBlock(raw any) (ContentBlock, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return ContentBlock{}, err
	}
	var b ContentBlock
	if err := json.Unmarshal(data, &b); err != nil {
		return ContentBlock{}, err
	}
	return b, nil
}

// NormalizeBlockList converts an `any`-typed field holding either a typed
// []ContentBlock (set by in-process mutation) or the raw []any that
// encoding/json produces when it decodes a JSON array into an `any` field
// (as tool_result's nested Content does) into a []ContentBlock. Returns
// nil for any other underlying shape (e.g. a bare string).
func NormalizeBlockList(content any) []ContentBlock {
	switch c := content.(type) {
	case []ContentBlock:
		return c
	case []any:
		out := make([]ContentBlock, 0, len(c))
		for _, raw := range c {
			b, err := DecodeBlock(raw)
			if err == nil {
				out = append(out, b)
			}
		}
		return out
	default:
		return nil
	}
}

// BetaUsage mirrors Anthropic's usage object, including cache token fields.
type BetaUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}
