// Package compact rewrites the SDK's auto-compaction scaffolding in place:
// the generic system-prompt summarizer, the generic compact instructions
// appended to the last user turn, and the generic continuation sentence
// that follows a compaction boundary — each replaced with an
// identity-flavored equivalent so the conversation stays in character
// across a compaction.
package compact

import "strings"

const (
	// AutoCompactSystemSignature is the literal system-prompt text the SDK
	// installs when it performs automatic compaction. Its presence in a
	// system block is what triggers phase 1.
	AutoCompactSystemSignature = "You are a helpful AI assistant tasked with summarizing conversations."

	// CompactInstructionsStart marks the beginning of the generic compact
	// instructions the SDK appends to the last user message before
	// summarizing. Phase 2 truncates at this marker.
	CompactInstructionsStart = "Your task is to create a detailed summary"

	continuationOriginal = "Please continue the conversation from where we left it off without asking the user any further questions."
	continuationSuffix   = ". Continue with the last task that you were asked to work on."
)

// Config holds the identity-flavored replacement text for each phase.
type Config struct {
	// SummarizerPrompt replaces the generic system prompt (phase 1).
	SummarizerPrompt string
	// CustomCompactPrompt replaces the generic compact instructions body
	// (phase 2), falling back to a plain instruction if empty.
	CustomCompactPrompt string
	// ContinuationReplacement replaces both continuation variants found
	// anywhere in user messages (phase 3).
	ContinuationReplacement string
}

const defaultCompactPrompt = "Summarize the conversation so far."

// Rewrite runs all three phases against a system-blocks slice and a
// messages slice, returning rewritten copies; the input slices are not
// modified. Phase 3 runs unconditionally on every call,
// regardless of whether phases 1 or 2 matched anything.
func Rewrite(cfg Config, systemTexts []string, userMessageTexts []string) (newSystem []string, newUser []string, replacements int) {
	system := rewritePhase1(cfg, systemTexts)
	user, p2 := rewritePhase2(cfg, userMessageTexts)
	user, p3 := rewritePhase3(cfg, user)
	return system, user, p2 + p3
}

// RewriteContinuationOnly runs only phase 3 (the continuation-instruction
// replacement) against every user message text, used by patterns that
// don't perform full auto-compact detection.
func RewriteContinuationOnly(cfg Config, userMessageTexts []string) ([]string, int) {
	return rewritePhase3(cfg, userMessageTexts)
}

// rewritePhase1 replaces every system block matching the auto-compact
// signature, preserving every other block and position.
func rewritePhase1(cfg Config, systemTexts []string) []string {
	out := make([]string, len(systemTexts))
	for i, text := range systemTexts {
		if strings.Contains(text, AutoCompactSystemSignature) {
			prompt := cfg.SummarizerPrompt
			if prompt == "" {
				prompt = text
			}
			out[i] = prompt
		} else {
			out[i] = text
		}
	}
	return out
}

// rewritePhase2 rewrites only the LAST user message, truncating at the
// compact-instructions marker and appending the custom prompt.
func rewritePhase2(cfg Config, userTexts []string) ([]string, int) {
	if len(userTexts) == 0 {
		return userTexts, 0
	}
	out := append([]string(nil), userTexts...)
	last := len(out) - 1
	idx := strings.Index(out[last], CompactInstructionsStart)
	if idx < 0 {
		return out, 0
	}
	prompt := cfg.CustomCompactPrompt
	if prompt == "" {
		prompt = defaultCompactPrompt
	}
	out[last] = strings.TrimRight(out[last][:idx], " \t\n") + "\n\n" + prompt
	return out, 1
}

// rewritePhase3 replaces the continuation sentence in EVERY user message,
// checking the polluted variant before the original (a message could in
// principle contain fragments resembling both; polluted is the more
// specific/more recently-seen variant and is checked first).
func rewritePhase3(cfg Config, userTexts []string) ([]string, int) {
	out := append([]string(nil), userTexts...)
	count := 0
	for i, text := range out {
		newText, replaced := replaceContinuation(cfg, text)
		if replaced {
			out[i] = newText
			count++
		}
	}
	return out, count
}

func replaceContinuation(cfg Config, text string) (string, bool) {
	replacement := cfg.ContinuationReplacement
	// The "polluted" variant is our own replacement text from a prior pass
	// concatenated with the literal tail; it must be checked before the
	// original SDK sentence since it is the more specific match.
	polluted := replacement + continuationSuffix
	if idx := strings.Index(text, polluted); idx >= 0 {
		return text[:idx] + replacement + text[idx+len(polluted):], true
	}
	if idx := strings.Index(text, continuationOriginal); idx >= 0 {
		end := idx + len(continuationOriginal)
		if strings.HasPrefix(text[end:], continuationSuffix) {
			end += len(continuationSuffix)
		}
		return text[:idx] + replacement + text[end:], true
	}
	return text, false
}
