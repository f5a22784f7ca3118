// Package metadata extracts the out-of-band metadata envelope that the hook
// layer smuggles inside a user message's text content, then rewrites that
// block in place so the visible conversation never shows the raw envelope.
//
// Two independent canary families are supported, matching both conventions
// observed in the hook-generated traffic: the alpha family (JSON occupies
// the entire text block, replaced by its prompt plus any formatted
// memories) and the deliverator family (JSON is embedded inside a larger
// block, located via brace-matching, gated by a literal anti-spoof prefix,
// and replaced by a short sent-at stamp).
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pondside-labs/loom/pkg/types"
)

const (
	alphaCanary       = "ALPHA_METADATA_UlVCQkVSRFVDSw"
	deliveratorCanary = "EAVESDROP_METADATA_BLOCK_UlVCQkVSRFVDSw"
	antiSpoofPrefix   = "UserPromptSubmit hook additional context:"
)

// timeNow is overridden in tests so relative-time memory formatting is
// deterministic.
var timeNow = time.Now

// Extract scans every user message, both string and list content forms,
// for either canary family. Every matched block is rewritten in place
// (alpha: prompt plus formatted memories; deliverator: a sent-at stamp, or
// removed entirely with no stamp); the metadata returned is from the LAST
// match across the whole conversation, though earlier matches are still
// cleaned.
//
// Iterating forward and keeping the last match, rather than stopping at
// the first, matches the convention that later hook invocations in a
// multi-turn conversation supersede earlier ones.
func Extract(body *types.RequestBody) *types.MetadataEnvelope {
	var found *types.MetadataEnvelope
	now := timeNow()

	messages := make([]types.Message, 0, len(body.Messages))
	for _, msg := range body.Messages {
		if msg.Role != "user" {
			messages = append(messages, msg)
			continue
		}

		switch content := msg.Content.(type) {
		case string:
			env, replacement, matched := rewriteIfMatch(content, now)
			if !matched {
				messages = append(messages, msg)
				continue
			}
			found = env
			if replacement == "" {
				continue // drop the whole message
			}
			messages = append(messages, types.Message{Role: msg.Role, Content: replacement})

		default:
			blocks := msg.Blocks()
			out := make([]types.ContentBlock, 0, len(blocks))
			for _, b := range blocks {
				if b.Type != "text" {
					out = append(out, b)
					continue
				}
				env, replacement, matched := rewriteIfMatch(b.Text, now)
				if !matched {
					out = append(out, b)
					continue
				}
				found = env
				if replacement == "" {
					continue // drop this block entirely
				}
				out = append(out, types.ContentBlock{Type: "text", Text: replacement})
			}
			messages = append(messages, types.Message{Role: msg.Role, Content: out})
		}
	}

	body.Messages = messages
	return found
}

// rewriteIfMatch applies both canary families to one text blob, returning
// the matched envelope and the text that should replace the block (empty
// string means "remove the block"). matched is false if neither family
// applies, in which case the text is left untouched by the caller.
func rewriteIfMatch(text string, now time.Time) (env *types.MetadataEnvelope, replacement string, matched bool) {
	if e, ok := tryAlpha(text); ok {
		repl := e.Prompt
		if len(e.Memories) > 0 {
			repl += "\n\n" + formatMemories(e.Memories, now)
		}
		return e, repl, true
	}
	if e, ok := tryDeliverator(text); ok {
		if e.SentAt == "" {
			return e, "", true
		}
		return e, "[Sent " + e.SentAt + "]", true
	}
	return nil, "", false
}

// tryAlpha requires the ENTIRE text to be one JSON object carrying the
// alpha canary and a string "prompt" field (which may be empty). This is the six-defense
// validation: must parse as JSON, must be an object, must carry the exact
// canary string, must carry a prompt field, canary field must be a string,
// prompt field must be a string.
func tryAlpha(text string) (*types.MetadataEnvelope, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}
	canary, ok := raw["canary"].(string)
	if !ok || canary != alphaCanary {
		return nil, false
	}
	prompt, ok := raw["prompt"].(string)
	if !ok {
		return nil, false
	}
	env := &types.MetadataEnvelope{Prompt: prompt, Family: types.CanaryAlpha}
	fillOptional(env, raw)
	return env, true
}

// tryDeliverator requires the literal anti-spoof prefix to be present
// somewhere in the surrounding text (proof the block was hook-generated,
// not user-supplied), then locates the canary via a substring scan and
// extracts the smallest enclosing {..} JSON object around it.
func tryDeliverator(text string) (*types.MetadataEnvelope, bool) {
	if !strings.Contains(text, antiSpoofPrefix) {
		return nil, false
	}
	canaryIdx := strings.Index(text, deliveratorCanary)
	if canaryIdx < 0 {
		return nil, false
	}

	start := strings.LastIndex(text[:canaryIdx], "{")
	if start < 0 {
		return nil, false
	}
	end := strings.Index(text[canaryIdx:], "}")
	if end < 0 {
		return nil, false
	}
	end = canaryIdx + end + 1

	candidate := text[start:end]
	var raw map[string]any
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, false
	}
	canary, ok := raw["canary"].(string)
	if !ok || canary != deliveratorCanary {
		return nil, false
	}
	prompt, _ := raw["prompt"].(string)
	env := &types.MetadataEnvelope{Prompt: prompt, Family: types.CanaryDeliverator}
	fillOptional(env, raw)
	return env, true
}

func fillOptional(env *types.MetadataEnvelope, raw map[string]any) {
	if v, ok := raw["session_id"].(string); ok {
		env.SessionID = v
	}
	if v, ok := raw["trace_id"].(string); ok {
		env.TraceID = v
	}
	if v, ok := raw["pattern"].(string); ok {
		env.Pattern = v
	}
	if v, ok := raw["sent_at"].(string); ok {
		env.SentAt = v
	}
	if raw["memories"] != nil {
		env.Memories = parseMemories(raw["memories"])
	}
}

// rawMemory mirrors the GLOSSARY's Memory shape for JSON decoding.
type rawMemory struct {
	ID        int64    `json:"id"`
	CreatedAt string   `json:"created_at"`
	Content   string   `json:"content"`
	Score     *float64 `json:"score"`
	Query     string   `json:"query"`
}

func parseMemories(v any) []types.Memory {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var raws []rawMemory
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil
	}
	out := make([]types.Memory, 0, len(raws))
	for _, r := range raws {
		createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
		out = append(out, types.Memory{
			ID:        r.ID,
			Content:   r.Content,
			CreatedAt: createdAt,
			Score:     r.Score,
			Query:     r.Query,
		})
	}
	return out
}

// formatRelativeTime buckets a timestamp into the literal relative labels
// the spec names: "today at h:mm A", "yesterday at h:mm A", "<N> days ago"
// (2-6), "<N> week(s) ago" (1-4), else an absolute "ddd MMM D YYYY" date.
func formatRelativeTime(t, now time.Time) string {
	t = t.In(now.Location())
	clock := t.Format("3:04 PM")

	midnight := func(x time.Time) time.Time {
		return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, x.Location())
	}
	days := int(midnight(now).Sub(midnight(t)).Hours() / 24)

	switch {
	case days == 0:
		return "today at " + clock
	case days == 1:
		return "yesterday at " + clock
	case days >= 2 && days <= 6:
		return fmt.Sprintf("%d days ago", days)
	}

	if weeks := days / 7; weeks >= 1 && weeks <= 4 {
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	}

	return t.Format("Mon Jan 2 2006")
}

// formatMemoryBlock renders one memory using the literal format:
// "Memory #<id> (<relative_time>[, score <s.ss>]):\n<content>"
func formatMemoryBlock(m types.Memory, now time.Time) string {
	header := fmt.Sprintf("Memory #%d (%s", m.ID, formatRelativeTime(m.CreatedAt, now))
	if m.Score != nil {
		header += fmt.Sprintf(", score %.2f", *m.Score)
	}
	header += "):"
	return header + "\n" + m.Content
}

// formatMemories joins every memory block with a blank line.
func formatMemories(memories []types.Memory, now time.Time) string {
	var out string
	for i, m := range memories {
		if i > 0 {
			out += "\n\n"
		}
		out += formatMemoryBlock(m, now)
	}
	return out
}
