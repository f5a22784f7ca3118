package pattern

import (
	"strings"
	"testing"

	"github.com/pondside-labs/loom/pkg/identity"
	"github.com/pondside-labs/loom/pkg/types"
)

func TestIdentityBlock_InterpolatesName(t *testing.T) {
	loader := &identity.Loader{Name: "Iota", SoulDoc: "You are Iota."}
	got := identityBlock(loader)
	want := "# Iota\n\nYou are Iota."
	if got != want {
		t.Errorf("identityBlock = %q, want %q", got, want)
	}
}

func TestIdentityBlock_EmptySoulDocYieldsEmptyBlock(t *testing.T) {
	loader := &identity.Loader{Name: "Iota"}
	if got := identityBlock(loader); got != "" {
		t.Errorf("identityBlock = %q, want empty", got)
	}
}

func TestLastUserMessageIsToolResultOnly(t *testing.T) {
	cases := []struct {
		name     string
		messages []types.Message
		want     bool
	}{
		{
			name: "last user message is plain text",
			messages: []types.Message{
				{Role: "user", Content: "first question"},
				{Role: "assistant", Content: "answer"},
				{Role: "user", Content: "follow up"},
			},
			want: false,
		},
		{
			name: "last user message is tool-result-only",
			messages: []types.Message{
				{Role: "user", Content: "first question"},
				{Role: "assistant", Content: "answer"},
				{Role: "user", Content: []types.ContentBlock{{Type: "tool_result", ToolUseID: "1"}}},
			},
			want: true,
		},
		{
			name: "no user message at all",
			messages: []types.Message{
				{Role: "assistant", Content: "answer"},
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lastUserMessageIsToolResultOnly(tc.messages); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSplitContextFiles_AllAndWhen(t *testing.T) {
	files := []types.ContextFile{
		{RelPath: "notes/a.md", Autoload: "all", Content: "full content"},
		{RelPath: "notes/b.md", Autoload: "when", When: "discussing deploys"},
		{RelPath: "notes/c.md", Autoload: "no", Content: "should be ignored"},
		{RelPath: "notes/d.md", Autoload: "when", When: ""},
	}

	full, hints := splitContextFiles(files)
	if len(full) != 1 || full[0].RelPath != "notes/a.md" {
		t.Fatalf("expected exactly one full-include file, got %+v", full)
	}
	if len(hints) != 1 || hints[0].RelPath != "notes/b.md" {
		t.Fatalf("expected exactly one hint file (empty-when dropped), got %+v", hints)
	}

	block := contextAvailableBlock(hints)
	if !strings.Contains(block, "Read(notes/b.md) when discussing deploys") {
		t.Errorf("expected hint line in context-available block, got %q", block)
	}
}
