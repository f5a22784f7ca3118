package pattern

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/pondside-labs/loom/pkg/compact"
	"github.com/pondside-labs/loom/pkg/dynctx"
	"github.com/pondside-labs/loom/pkg/hud"
	"github.com/pondside-labs/loom/pkg/identity"
	"github.com/pondside-labs/loom/pkg/memorables"
	"github.com/pondside-labs/loom/pkg/metadata"
	"github.com/pondside-labs/loom/pkg/scrub"
	"github.com/pondside-labs/loom/pkg/summaries"
	"github.com/pondside-labs/loom/pkg/types"
)

// AlphaConfig wires every dependency the alpha pattern fans out to.
type AlphaConfig struct {
	Identity     *identity.Loader
	HUD          *hud.Fetcher
	Summaries    *summaries.Fetcher
	DynCtx       *dynctx.Loader
	Memorables   *memorables.Reader
	CompactCfg   compact.Config
	CacheControl bool // attach {type: ephemeral} to the last system block

	// OnSessionKnown is invoked once a session_id is known, used to kick
	// off the fire-and-forget token-count side task (L13).
	OnSessionKnown func(body *types.RequestBody, sessionID string)
}

// Alpha is the full pattern: auto-compact rewriting, noise scrubbing,
// metadata extraction, and an assembled identity-flavored prompt built
// from period summaries, HUD data, dynamic context, and injected
// memories, plus the memorables "inner voice" message. It composes
// L1-L8 in the fixed order spec.md's prompt assembler names.
type Alpha struct {
	cfg AlphaConfig
}

func NewAlpha(cfg AlphaConfig) *Alpha {
	return &Alpha{cfg: cfg}
}

// Request runs the full assembler pipeline in the fixed responsibility
// order: compaction rewrite, noise scrub, metadata extraction (merged
// into the meta argument, extractor wins on conflict), parallel
// HUD/summary/dynamic-context/memorables fan-out, system-block
// assembly, and memorables ("inner voice") injection.
func (a *Alpha) Request(ctx context.Context, headers http.Header, body *types.RequestBody, meta *types.MetadataEnvelope) error {
	compact.ApplyToBody(a.cfg.CompactCfg, body)
	scrub.Scrub(body)

	if extracted := metadata.Extract(body); extracted != nil && meta != nil {
		for _, f := range []struct{ dst, src *string }{
			{&meta.Prompt, &extracted.Prompt}, {&meta.SessionID, &extracted.SessionID},
			{&meta.TraceID, &extracted.TraceID}, {&meta.Pattern, &extracted.Pattern},
			{&meta.SentAt, &extracted.SentAt},
		} {
			if *f.src != "" {
				*f.dst = *f.src
			}
		}
		if extracted.Memories != nil {
			meta.Memories = extracted.Memories
		}
		meta.Family = extracted.Family
	}

	sessionID := headers.Get("x-session-id")
	if meta != nil && meta.SessionID != "" {
		sessionID = meta.SessionID
	}

	var hudData types.HUD
	var newerSummary, olderSummary *types.Summary
	var contextFiles []types.ContextFile
	var memorablesRaw []string

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); hudData = a.cfg.HUD.Fetch(ctx) }()
	go func() { defer wg.Done(); newerSummary, olderSummary = a.cfg.Summaries.FetchLatestTwo(ctx) }()
	go func() {
		defer wg.Done()
		if a.cfg.DynCtx != nil {
			contextFiles, _ = a.cfg.DynCtx.Load()
		}
	}()
	go func() { defer wg.Done(); memorablesRaw = a.cfg.Memorables.Get(ctx, sessionID) }()
	wg.Wait()

	inserts := []string{identityBlock(a.cfg.Identity)}
	if olderSummary != nil {
		inserts = append(inserts, olderSummary.Text)
	}
	if newerSummary != nil {
		inserts = append(inserts, newerSummary.Text)
	}
	if letter := letterFromLastNightBlock(hudData); letter != "" {
		inserts = append(inserts, letter)
	}
	if today := todaySoFarBlock(hudData); today != "" {
		inserts = append(inserts, today)
	}
	inserts = append(inserts, hereBlock(hudData, headers))

	full, hints := splitContextFiles(contextFiles)
	for _, f := range full {
		inserts = append(inserts, "Context: "+f.RelPath+"\n\n"+f.Content)
	}
	if hintBlock := contextAvailableBlock(hints); hintBlock != "" {
		inserts = append(inserts, hintBlock)
	}

	if events := eventsBlock(hudData); events != "" {
		inserts = append(inserts, events)
	}
	if todos := todosBlock(hudData); todos != "" {
		inserts = append(inserts, todos)
	}

	entries := body.SystemBlocks()
	entries = spliceSystem(entries, nonEmpty(inserts))
	if a.cfg.CacheControl {
		attachCacheControl(entries)
	}
	body.SetSystemBlocks(entries)

	if block := memorables.FormatBlock(memorablesRaw); block != "" && !lastUserMessageIsToolResultOnly(body.Messages) {
		body.Messages = appendSyntheticUserMessage(body.Messages, block)
	}

	if a.cfg.OnSessionKnown != nil && sessionID != "" {
		a.cfg.OnSessionKnown(body, sessionID)
	}

	return nil
}

func (a *Alpha) Response(ctx context.Context, headers http.Header, respBody []byte) error {
	return nil
}

func identityBlock(loader *identity.Loader) string {
	if loader == nil || loader.SoulDoc == "" {
		return ""
	}
	name := loader.Name
	if name == "" {
		name = "Identity"
	}
	return "# " + name + "\n\n" + loader.SoulDoc
}

// letterFromLastNightBlock renders HUD.ToSelf, header-stamped with its
// optional timestamp, or "" if there is no letter.
func letterFromLastNightBlock(h types.HUD) string {
	if h.ToSelf == nil || *h.ToSelf == "" {
		return ""
	}
	header := "## Letter from last night"
	if h.ToSelfAt != nil && *h.ToSelfAt != "" {
		header += " (" + *h.ToSelfAt + ")"
	}
	return header + "\n\n" + *h.ToSelf
}

// todaySoFarBlock renders HUD.TodaySoFar, header-stamped with its
// optional timestamp, or "" if there is nothing running yet.
func todaySoFarBlock(h types.HUD) string {
	if h.TodaySoFar == nil || *h.TodaySoFar == "" {
		return ""
	}
	header := "## Today so far"
	if h.TodaySoFarAt != nil && *h.TodaySoFarAt != "" {
		header += " (" + *h.TodaySoFarAt + ")"
	}
	return header + "\n\n" + *h.TodaySoFar
}

// hereBlock renders the client/machine/weather "Here" block. It always
// produces a block (even with every HUD field nil) so the prompt still
// carries machine identity when every store is unavailable.
func hereBlock(h types.HUD, headers http.Header) string {
	out := "## Here\n\n"
	if client := headers.Get("x-loom-client"); client != "" {
		out += fmt.Sprintf("Client: %s\n", client)
	}
	out += fmt.Sprintf("Machine: %s\n", valueOr(headers.Get("x-machine-name"), "unknown"))
	if h.Weather != nil && *h.Weather != "" {
		out += "Weather: " + *h.Weather + "\n"
	}
	return out
}

func eventsBlock(h types.HUD) string {
	if h.Calendar == nil || *h.Calendar == "" {
		return ""
	}
	return "## Events\n\n" + *h.Calendar
}

func todosBlock(h types.HUD) string {
	if h.Todos == nil || *h.Todos == "" {
		return ""
	}
	return "## Todos\n\n" + *h.Todos
}

// splitContextFiles partitions dynamic context files into full-include
// blocks and when-hint entries, dropping anything autoload="no" (or
// autoload="when" with an empty When).
func splitContextFiles(files []types.ContextFile) (full []types.ContextFile, hints []types.ContextFile) {
	for _, f := range files {
		switch f.Autoload {
		case "all":
			full = append(full, f)
		case "when":
			if f.When != "" {
				hints = append(hints, f)
			}
		}
	}
	return full, hints
}

func contextAvailableBlock(hints []types.ContextFile) string {
	if len(hints) == 0 {
		return ""
	}
	out := "## Context available\n\nThe following files contain additional context. Read them if relevant to the current task:\n\n"
	for _, f := range hints {
		out += "- " + dynctx.RenderHint(f) + "\n"
	}
	return out
}

// lastUserMessageIsToolResultOnly reports whether the most recent user
// message in the conversation is entirely tool_result blocks, the
// condition under which the memorables "inner voice" message must be
// suppressed rather than appended.
func lastUserMessageIsToolResultOnly(messages []types.Message) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		return messages[i].IsToolResultOnly()
	}
	return false
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
