package compact

import "testing"

func TestRewritePhase1_ReplacesOnlyMatchingSystemBlock(t *testing.T) {
	cfg := Config{SummarizerPrompt: "You are Alpha, summarizing in character."}
	system := []string{
		"base identity block",
		AutoCompactSystemSignature,
		"trailing block",
	}

	out := rewritePhase1(cfg, system)

	if out[0] != "base identity block" {
		t.Errorf("block 0 should be untouched, got %q", out[0])
	}
	if out[1] != cfg.SummarizerPrompt {
		t.Errorf("block 1 should be replaced, got %q", out[1])
	}
	if out[2] != "trailing block" {
		t.Errorf("block 2 should be untouched, got %q", out[2])
	}
}

func TestRewritePhase2_OnlyLastUserMessage(t *testing.T) {
	cfg := Config{CustomCompactPrompt: "Summarize as Alpha would."}
	texts := []string{
		"first turn " + CompactInstructionsStart + " should not be touched",
		"last turn\n\n" + CompactInstructionsStart + " with details to drop",
	}

	out, n := rewritePhase2(cfg, texts)
	if n != 1 {
		t.Fatalf("expected exactly 1 replacement, got %d", n)
	}
	if out[0] != texts[0] {
		t.Errorf("first message should be untouched, got %q", out[0])
	}
	if out[1] != "last turn\n\nSummarize as Alpha would." {
		t.Errorf("unexpected phase 2 rewrite: %q", out[1])
	}
}

func TestRewritePhase3_PollutedCheckedBeforeOriginal(t *testing.T) {
	cfg := Config{ContinuationReplacement: "Picking back up, Alpha."}
	polluted := cfg.ContinuationReplacement + continuationSuffix
	texts := []string{
		"preamble " + polluted + " tail",
		"preamble " + continuationOriginal + continuationSuffix + " tail",
	}

	out, n := rewritePhase3(cfg, texts)
	if n != 2 {
		t.Fatalf("expected 2 replacements, got %d", n)
	}
	if out[0] != "preamble Picking back up, Alpha. tail" {
		t.Errorf("polluted variant not replaced correctly: %q", out[0])
	}
	if out[1] != "preamble Picking back up, Alpha. tail" {
		t.Errorf("original variant not replaced correctly: %q", out[1])
	}
}

func TestRewritePhase3_RunsUnconditionallyEveryCall(t *testing.T) {
	cfg := Config{ContinuationReplacement: "continuing"}
	texts := []string{"nothing to see here"}
	out, n := rewritePhase3(cfg, texts)
	if n != 0 {
		t.Errorf("expected no replacement, got %d", n)
	}
	if out[0] != texts[0] {
		t.Errorf("text should be unchanged, got %q", out[0])
	}
}
