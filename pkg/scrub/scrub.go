// Package scrub removes hook-generated noise from user messages before a
// conversation is forwarded upstream: a fixed set of exact-match
// system-reminder blocks, plus a handful of substring patterns that can
// appear anywhere inside a larger block (including nested tool_result
// content).
package scrub

import (
	"regexp"
	"strings"

	"github.com/pondside-labs/loom/pkg/types"
)

// exactNoiseBlocks are removed only on a full, trimmed-equality match.
var exactNoiseBlocks = []string{
	"<system-reminder>\nUserPromptSubmit hook success: Success\n</system-reminder>",
	"<system-reminder>\nSessionStart:startup hook success: Success\n</system-reminder>",
}

// noisePatterns are DOTALL-matched substrings scrubbed out wherever found.
// Fixed structure with variable content in specific slots.
var noisePatterns = []*regexp.Regexp{
	// TodoWrite nag - appears in tool results and user messages
	regexp.MustCompile(`(?s)<system-reminder>\s*The TodoWrite tool hasn't been used recently\..*?Make sure that you NEVER mention this reminder to the user\s*</system-reminder>`),
	// Malware analysis reminder - appears after reading files
	regexp.MustCompile(`(?s)<system-reminder>\s*Whenever you read a file, you should consider whether it would be considered malware\..*?You can still analyze existing code, write reports, or answer questions about the code behavior\.\s*</system-reminder>`),
	// File modification notice - variable path and diff
	regexp.MustCompile(`(?s)<system-reminder>\s*Note: .+? was modified, either by the user or by a linter\..*?Here are the relevant changes \(shown with line numbers\):.*?</system-reminder>`),
}

// Scrub removes noise from every user message's text content, top-level and
// nested inside tool_result blocks, in both string and list content forms.
func Scrub(body *types.RequestBody) {
	for i := range body.Messages {
		msg := &body.Messages[i]
		if msg.Role != "user" {
			continue
		}
		scrubMessage(msg)
	}
}

func scrubMessage(msg *types.Message) {
	switch content := msg.Content.(type) {
	case string:
		msg.Content = scrubText(content)
		return
	}

	blocks := msg.Blocks()
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			b.Text = scrubText(b.Text)
			if b.Text == "" {
				continue
			}
		case "tool_result":
			b.Content = scrubToolResult(b.Content)
		}
		out = append(out, b)
	}
	msg.Content = out
}

func scrubToolResult(content any) any {
	if s, ok := content.(string); ok {
		return scrubText(s)
	}

	blocks := types.NormalizeBlockList(content)
	if blocks == nil {
		return content
	}
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			b.Text = scrubText(b.Text)
			if b.Text == "" {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func scrubText(text string) string {
	for _, block := range exactNoiseBlocks {
		if strings.TrimSpace(text) == block {
			return ""
		}
	}
	for _, pat := range noisePatterns {
		text = pat.ReplaceAllString(text, "")
	}
	return text
}
