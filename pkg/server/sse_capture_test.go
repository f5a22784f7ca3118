package server

import "testing"

func TestParseSSECapture_AccumulatesTextAndUsage(t *testing.T) {
	raw := "" +
		"event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":12}}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"hel\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"lo\"}}\n\n" +
		"event: message_delta\n" +
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":3}}\n\n"

	got := parseSSECapture([]byte(raw))
	if got.Text != "hello" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.InputTokens != 12 {
		t.Errorf("InputTokens = %d", got.InputTokens)
	}
	if got.OutputTokens != 3 {
		t.Errorf("OutputTokens = %d", got.OutputTokens)
	}
	if got.HasToolUse {
		t.Error("HasToolUse should be false")
	}
}

func TestParseSSECapture_DetectsToolUse(t *testing.T) {
	raw := "data: {\"type\":\"content_block_start\",\"content_block\":{\"type\":\"tool_use\",\"id\":\"t1\"}}\n\n"
	got := parseSSECapture([]byte(raw))
	if !got.HasToolUse {
		t.Error("expected HasToolUse true")
	}
}

func TestParseSSECapture_IgnoresNonDataLinesAndBadJSON(t *testing.T) {
	raw := "event: ping\n: comment\ndata: not json\ndata: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":1}}\n\n"
	got := parseSSECapture([]byte(raw))
	if got.OutputTokens != 1 {
		t.Errorf("OutputTokens = %d", got.OutputTokens)
	}
}

func TestIntOf_CoercesFloat64AndInt(t *testing.T) {
	if intOf(float64(7)) != 7 {
		t.Error("float64 coercion failed")
	}
	if intOf(3) != 3 {
		t.Error("int passthrough failed")
	}
	if intOf("nope") != 0 {
		t.Error("unknown type should yield 0")
	}
}
