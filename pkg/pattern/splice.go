package pattern

import "github.com/pondside-labs/loom/pkg/types"

// spliceSystem preserves element 0 (the vendor/SDK-supplied preamble)
// unchanged when present, and replaces everything from element 1 onward
// with the freshly-built ordered insert list. If no prior system array
// exists, the inserts become the entire array.
func spliceSystem(existing []types.SystemEntry, inserts []string) []types.SystemEntry {
	out := make([]types.SystemEntry, 0, len(inserts)+1)

	if len(existing) > 0 {
		out = append(out, existing[0])
	}

	for _, text := range inserts {
		if text == "" {
			continue
		}
		out = append(out, types.SystemEntry{Type: "text", Text: text})
	}

	return out
}

// attachCacheControl marks the last entry as an ephemeral cache boundary.
func attachCacheControl(entries []types.SystemEntry) {
	if len(entries) == 0 {
		return
	}
	entries[len(entries)-1].CacheControl = &types.CacheControl{Type: "ephemeral"}
}

// appendSyntheticUserMessage appends a brand-new user message carrying a
// single text block, used for the memorables ("inner voice") block.
func appendSyntheticUserMessage(messages []types.Message, text string) []types.Message {
	return append(messages, types.Message{
		Role:    "user",
		Content: []types.ContentBlock{{Type: "text", Text: text}},
	})
}
