package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// capturedTurnResult is what parseSSECapture extracts from a fully-drained
// SSE response body: the accumulated assistant text, token usage, and
// whether any tool_use block appeared (a turn is only "complete" once a
// response carries no tool_use).
type capturedTurnResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	HasToolUse   bool
}

// parseSSECapture walks the captured `event: ...\ndata: ...` stream and
// reconstructs usage/content/tool-use state, grounded on the original
// proxy's own SSE-event bookkeeping (message_start, content_block_delta,
// content_block_start, message_delta).
func parseSSECapture(raw []byte) capturedTurnResult {
	var result capturedTurnResult
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var textBuilder strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}

		switch event["type"] {
		case "message_start":
			if msg, ok := event["message"].(map[string]any); ok {
				if usage, ok := msg["usage"].(map[string]any); ok {
					result.InputTokens += intOf(usage["input_tokens"])
				}
			}
		case "content_block_start":
			if block, ok := event["content_block"].(map[string]any); ok {
				if block["type"] == "tool_use" {
					result.HasToolUse = true
				}
			}
		case "content_block_delta":
			if delta, ok := event["delta"].(map[string]any); ok {
				if text, ok := delta["text"].(string); ok {
					textBuilder.WriteString(text)
				}
			}
		case "message_delta":
			if usage, ok := event["usage"].(map[string]any); ok {
				result.OutputTokens += intOf(usage["output_tokens"])
			}
		}
	}

	result.Text = textBuilder.String()
	return result
}

func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
