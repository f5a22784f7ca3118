// Package tokencount runs a fire-and-forget token-count call against the
// upstream API and stashes the result in the KV store for later
// consumption (e.g. quota dashboards).
package tokencount

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pondside-labs/loom/pkg/types"
)

const stashTTL = time.Hour

func stashKey(sessionID string) string {
	return "duckpond:context:" + sessionID
}

// Stasher counts tokens for a request body and stashes the result.
type Stasher struct {
	APIKey       string
	APIURL       string // e.g. "https://api.anthropic.com/v1/messages/count_tokens"
	AnthropicVer string
	Redis        *redis.Client
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

type countRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	System   any             `json:"system,omitempty"`
	Tools    []types.ToolDef `json:"tools,omitempty"`
}

type countResponse struct {
	InputTokens int `json:"input_tokens"`
}

// CountAndStash runs synchronously; callers wanting fire-and-forget
// semantics should invoke it via `go`. Early-returns with no error if the
// API key or session ID is missing, matching the original's "nothing to
// do" behavior rather than treating it as a failure.
func (s *Stasher) CountAndStash(ctx context.Context, body *types.RequestBody, sessionID string) error {
	if s.APIKey == "" || sessionID == "" {
		return nil
	}

	reqBody := countRequest{
		Model:    body.Model,
		Messages: body.Messages,
		System:   body.System,
		Tools:    body.Tools,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("tokencount: marshal: %w", err)
	}

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("tokencount: request: %w", err)
	}
	req.Header.Set("x-api-key", s.APIKey)
	req.Header.Set("anthropic-version", s.AnthropicVer)
	req.Header.Set("content-type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		s.logger().Warn("token count request failed", "err", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger().Warn("token count non-200 response", "status", resp.StatusCode)
		return nil
	}

	var cr countResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		s.logger().Warn("token count decode failed", "err", err)
		return nil
	}

	return s.stash(ctx, sessionID, cr.InputTokens)
}

func (s *Stasher) stash(ctx context.Context, sessionID string, inputTokens int) error {
	payload, err := json.Marshal(map[string]any{
		"input_tokens": inputTokens,
	})
	if err != nil {
		return fmt.Errorf("tokencount: marshal stash: %w", err)
	}
	return s.Redis.Set(ctx, stashKey(sessionID), payload, stashTTL).Err()
}

func (s *Stasher) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
