package compact

import "github.com/pondside-labs/loom/pkg/types"

// ApplyToBody runs the three-phase rewrite against a decoded request body's
// system array and user messages, writing the results back in place. It
// operates at text-block granularity, not whole-message granularity, so it
// also reaches user messages whose content arrived as a content-block list
// (images, tool_result, etc. alongside text) rather than a bare string.
func ApplyToBody(cfg Config, body *types.RequestBody) int {
	systemEntries := body.SystemBlocks()
	systemTexts := make([]string, len(systemEntries))
	for i, e := range systemEntries {
		systemTexts[i] = e.Text
	}
	newSystem := rewritePhase1(cfg, systemTexts)
	for i, text := range newSystem {
		systemEntries[i].Text = text
	}
	body.SetSystemBlocks(systemEntries)

	lastUserIdx := -1
	for i, m := range body.Messages {
		if m.Role == "user" {
			lastUserIdx = i
		}
	}

	replacements := 0
	for i := range body.Messages {
		msg := &body.Messages[i]
		if msg.Role != "user" {
			continue
		}

		if s, ok := msg.Content.(string); ok {
			text := s
			if i == lastUserIdx {
				if t, n := rewritePhase2(cfg, []string{text}); n > 0 {
					text = t[0]
					replacements += n
				}
			}
			if t, n := rewritePhase3(cfg, []string{text}); n > 0 {
				text = t[0]
				replacements += n
			}
			msg.Content = text
			continue
		}

		blocks := msg.Blocks()
		if blocks == nil {
			continue
		}
		changed := false
		for bi, b := range blocks {
			if b.Type != "text" {
				continue
			}
			text := b.Text
			if i == lastUserIdx {
				if t, n := rewritePhase2(cfg, []string{text}); n > 0 {
					text = t[0]
					replacements += n
					changed = true
				}
			}
			if t, n := rewritePhase3(cfg, []string{text}); n > 0 {
				text = t[0]
				replacements += n
				changed = true
			}
			blocks[bi].Text = text
		}
		if changed {
			msg.Content = blocks
		}
	}

	return replacements
}
