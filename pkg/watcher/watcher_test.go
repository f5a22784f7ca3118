package watcher

import "testing"

func TestClassifyLine_ExtractsTypeRoleAndContentTypes(t *testing.T) {
	line := `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"hi"},{"type":"tool_use","id":"1"}]}}`
	got := classifyLine("sess-1", line)

	if got.SessionID != "sess-1" {
		t.Errorf("session_id = %q", got.SessionID)
	}
	if got.Type != "user" {
		t.Errorf("type = %q", got.Type)
	}
	if got.Role != "user" {
		t.Errorf("role = %q", got.Role)
	}
	if len(got.ContentTypes) != 2 || got.ContentTypes[0] != "text" || got.ContentTypes[1] != "tool_use" {
		t.Errorf("content_types = %+v", got.ContentTypes)
	}
}

func TestClassifyLine_StringContentYieldsTextOnly(t *testing.T) {
	line := `{"type":"assistant","message":{"role":"assistant","content":"plain text"}}`
	got := classifyLine("sess-2", line)
	if len(got.ContentTypes) != 1 || got.ContentTypes[0] != "text" {
		t.Errorf("content_types = %+v", got.ContentTypes)
	}
}

func TestClassifyLine_UnparseableLineDoesNotPanic(t *testing.T) {
	got := classifyLine("sess-3", "not json at all")
	if got.Raw != "not json at all" {
		t.Errorf("raw = %q", got.Raw)
	}
}

func TestTailFile_MissingFileLeavesPosUnchanged(t *testing.T) {
	// A file that cannot be opened yields no lines and leaves the offset
	// where it was.
	newPos, lines := tailFile("/nonexistent/path/for/test", 100)
	if lines != nil {
		t.Errorf("expected no lines for a missing file, got %+v", lines)
	}
	if newPos != 100 {
		t.Errorf("expected pos to be unchanged on open failure, got %d", newPos)
	}
}
