// Package memorables reads pending "inner voice" memorables for a session
// from the KV store and formats them into the block that is appended as a
// new final user message before forwarding.
package memorables

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Reader fetches raw memorables from Redis.
type Reader struct {
	Client *redis.Client
}

func key(sessionID string) string {
	return "intro:memorables:" + sessionID
}

// Get returns the full memorables list for a session. An empty session ID
// or any Redis error yields an empty slice, never an error.
func (r *Reader) Get(ctx context.Context, sessionID string) []string {
	if sessionID == "" {
		return nil
	}
	vals, err := r.Client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil
	}
	return vals
}

// Clean trims whitespace and surrounding backticks from each memorable,
// dropping any that end up empty or equal to a single backtick pair.
func Clean(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		item = strings.Trim(item, "`")
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// FormatBlock renders the cleaned memorables into the literal wrapper text
// spliced onto the conversation. Returns "" if there is nothing to show.
func FormatBlock(memorables []string) string {
	cleaned := Clean(memorables)
	if len(cleaned) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Alpha, this is your inner voice. Store these now:\n")
	for _, item := range cleaned {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
