package pattern

import (
	"testing"

	"github.com/pondside-labs/loom/pkg/types"
)

func TestSpliceSystem_PreservesElementZero(t *testing.T) {
	existing := []types.SystemEntry{
		{Type: "text", Text: "base prompt"},
		{Type: "text", Text: "old compact summary"},
	}

	out := spliceSystem(existing, []string{"hud block", "context block"})

	if out[0].Text != "base prompt" {
		t.Errorf("element 0 should be preserved, got %q", out[0].Text)
	}
	if len(out) != 3 {
		t.Fatalf("expected element 0 plus 2 inserts, got %+v", out)
	}
	if out[1].Text != "hud block" || out[2].Text != "context block" {
		t.Errorf("inserts should follow element 0, got %+v", out[1:])
	}
}

func TestSpliceSystem_ReplacesEverythingPastElementZero(t *testing.T) {
	existing := []types.SystemEntry{
		{Type: "text", Text: "base prompt"},
		{Type: "text", Text: "stale"},
		{Type: "text", Text: "also stale"},
	}
	out := spliceSystem(existing, []string{"fresh"})
	if len(out) != 2 {
		t.Fatalf("expected element 0 plus 1 fresh insert, got %+v", out)
	}
	if out[1].Text != "fresh" {
		t.Errorf("element 1 should be the fresh insert, got %q", out[1].Text)
	}
}

func TestSpliceSystem_NoPriorSystemArray(t *testing.T) {
	out := spliceSystem(nil, []string{"only block"})
	if len(out) != 1 || out[0].Text != "only block" {
		t.Errorf("expected the inserts to become the entire array, got %+v", out)
	}
}

func TestAttachCacheControl_MarksOnlyLastEntry(t *testing.T) {
	entries := []types.SystemEntry{{Text: "a"}, {Text: "b"}}
	attachCacheControl(entries)
	if entries[0].CacheControl != nil {
		t.Error("first entry should not carry cache_control")
	}
	if entries[1].CacheControl == nil || entries[1].CacheControl.Type != "ephemeral" {
		t.Error("last entry should carry an ephemeral cache_control")
	}
}
