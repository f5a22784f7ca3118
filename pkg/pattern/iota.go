package pattern

import (
	"context"
	"net/http"

	"github.com/pondside-labs/loom/pkg/compact"
	"github.com/pondside-labs/loom/pkg/dynctx"
	"github.com/pondside-labs/loom/pkg/types"
)

// IotaConfig wires the iota pattern's static orientation prompts and its
// own dynamic context loader (separate root/file name from alpha's).
type IotaConfig struct {
	StaticPrompt1 string
	StaticPrompt2 string
	DynCtx        *dynctx.Loader
	CompactCfg    compact.Config
}

// Iota splices two static orientation prompts, taken as text from
// IotaConfig (it reads no files for them itself; an empty prompt is
// skipped), followed by dynamic context on every request; it only runs
// phase 3 of compaction
// rewriting (continuation-instruction replacement), not the full
// auto-compact detection alpha performs.
type Iota struct {
	cfg IotaConfig
}

func NewIota(cfg IotaConfig) *Iota {
	return &Iota{cfg: cfg}
}

func (p *Iota) Request(ctx context.Context, headers http.Header, body *types.RequestBody, meta *types.MetadataEnvelope) error {
	rewriteContinuationOnly(p.cfg.CompactCfg, body)

	var files []types.ContextFile
	if p.cfg.DynCtx != nil {
		files, _ = p.cfg.DynCtx.Load()
	}

	var blocks []string
	if p.cfg.StaticPrompt1 != "" {
		blocks = append(blocks, p.cfg.StaticPrompt1)
	}
	if p.cfg.StaticPrompt2 != "" {
		blocks = append(blocks, p.cfg.StaticPrompt2)
	}

	full, hints := splitContextFiles(files)
	for _, f := range full {
		blocks = append(blocks, "Context: "+f.RelPath+"\n\n"+f.Content)
	}
	if hintBlock := contextAvailableBlock(hints); hintBlock != "" {
		blocks = append(blocks, hintBlock)
	}

	entries := body.SystemBlocks()
	entries = spliceSystem(entries, nonEmpty(blocks))
	body.SetSystemBlocks(entries)
	return nil
}

func (p *Iota) Response(ctx context.Context, headers http.Header, respBody []byte) error {
	return nil
}

// rewriteContinuationOnly runs just compact's phase 3 against every user
// message, matching the iota pattern's narrower continuation-only rewrite.
// It operates at text-block granularity like compact.ApplyToBody, so it
// also reaches user messages whose content arrived as a content-block list
// rather than a bare string.
func rewriteContinuationOnly(cfg compact.Config, body *types.RequestBody) {
	for i := range body.Messages {
		msg := &body.Messages[i]
		if msg.Role != "user" {
			continue
		}

		if s, ok := msg.Content.(string); ok {
			newUser, _ := compact.RewriteContinuationOnly(cfg, []string{s})
			msg.Content = newUser[0]
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
			newText, n := compact.RewriteContinuationOnly(cfg, []string{b.Text})
			if n > 0 {
				blocks[bi].Text = newText[0]
				changed = true
			}
		}
		if changed {
			msg.Content = blocks
		}
	}
}
