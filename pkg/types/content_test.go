package types

import (
	"encoding/json"
	"testing"
)

func TestContentBlock_MarshalJSON_Text(t *testing.T) {
	cb := ContentBlock{Type: "text", Text: "hello world"}
	data, err := json.Marshal(cb)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	json.Unmarshal(data, &m)

	if m["type"] != "text" {
		t.Errorf("type = %v", m["type"])
	}
	if m["text"] != "hello world" {
		t.Errorf("text = %v", m["text"])
	}
	if _, ok := m["tool_use_id"]; ok {
		t.Error("tool_use_id should not be present for text block")
	}
}

func TestContentBlock_MarshalJSON_ToolResult(t *testing.T) {
	cb := ContentBlock{Type: "tool_result", ToolUseID: "call_1", Content: "ok"}
	data, err := json.Marshal(cb)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	json.Unmarshal(data, &m)

	if m["type"] != "tool_result" {
		t.Errorf("type = %v", m["type"])
	}
	if m["tool_use_id"] != "call_1" {
		t.Errorf("tool_use_id = %v", m["tool_use_id"])
	}
	if m["content"] != "ok" {
		t.Errorf("content = %v", m["content"])
	}
}

func TestContentBlock_MarshalJSON_CacheControl(t *testing.T) {
	cb := ContentBlock{Type: "text", Text: "x", CacheControl: &CacheControl{Type: "ephemeral"}}
	data, _ := json.Marshal(cb)

	var m map[string]any
	json.Unmarshal(data, &m)

	cc, ok := m["cache_control"].(map[string]any)
	if !ok {
		t.Fatalf("expected cache_control object, got %v", m["cache_control"])
	}
	if cc["type"] != "ephemeral" {
		t.Errorf("cache_control.type = %v", cc["type"])
	}
}

func TestMessage_Blocks_StringContent(t *testing.T) {
	m := Message{Role: "user", Content: "hi there"}
	blocks := m.Blocks()
	if len(blocks) != 1 || blocks[0].Type != "text" || blocks[0].Text != "hi there" {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
}

func TestMessage_IsToolResultOnly(t *testing.T) {
	m := Message{Role: "user", Content: []ContentBlock{{Type: "tool_result", ToolUseID: "1"}}}
	if !m.IsToolResultOnly() {
		t.Error("expected tool-result-only message")
	}

	m2 := Message{Role: "user", Content: []ContentBlock{{Type: "text", Text: "hi"}}}
	if m2.IsToolResultOnly() {
		t.Error("expected non-tool-result message")
	}
}
