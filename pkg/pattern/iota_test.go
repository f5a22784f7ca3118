package pattern

import (
	"testing"

	"github.com/pondside-labs/loom/pkg/compact"
	"github.com/pondside-labs/loom/pkg/types"
)

func TestRewriteContinuationOnly_StringContent(t *testing.T) {
	body := &types.RequestBody{
		Messages: []types.Message{
			{Role: "user", Content: "Please continue the conversation from where we left it off without asking the user any further questions."},
		},
	}
	cfg := compact.Config{ContinuationReplacement: "Pick up where you left off."}
	rewriteContinuationOnly(cfg, body)

	got, ok := body.Messages[0].Content.(string)
	if !ok {
		t.Fatalf("expected string content, got %T", body.Messages[0].Content)
	}
	if got != "Pick up where you left off." {
		t.Errorf("got %q", got)
	}
}

func TestRewriteContinuationOnly_BlockListContent(t *testing.T) {
	body := &types.RequestBody{
		Messages: []types.Message{
			{
				Role: "user",
				Content: []types.ContentBlock{
					{Type: "text", Text: "Please continue the conversation from where we left it off without asking the user any further questions."},
					{Type: "tool_result", ToolUseID: "1", Content: "unrelated"},
				},
			},
		},
	}
	cfg := compact.Config{ContinuationReplacement: "Pick up where you left off."}
	rewriteContinuationOnly(cfg, body)

	blocks, ok := body.Messages[0].Content.([]types.ContentBlock)
	if !ok {
		t.Fatalf("expected block-list content, got %T", body.Messages[0].Content)
	}
	if blocks[0].Text != "Pick up where you left off." {
		t.Errorf("text block not rewritten: %q", blocks[0].Text)
	}
	if blocks[1].Type != "tool_result" || blocks[1].Content != "unrelated" {
		t.Errorf("non-text block mutated: %+v", blocks[1])
	}
}
