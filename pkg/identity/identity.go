// Package identity loads the two documents that give a pattern its voice:
// the soul document (system prompt identity) and the compaction-recovery
// document (the prompt used when summarizing a conversation). Both are
// read from a git repository at startup via `git show <ref>:<path>` and
// cached for the life of the process.
package identity

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrFatalInit is returned when the soul document cannot be loaded. The
// caller must treat this as a startup-abort condition, never a
// request-time error.
var ErrFatalInit = fmt.Errorf("identity: soul document could not be loaded")

const fallbackCompactPrompt = "Summarize the conversation so far."
const fallbackIdentityName = "Alpha"

// Config locates the git repository and the refs/paths of each document.
type Config struct {
	RepoPath    string // local clone path
	SoulRef     string // git ref, e.g. "HEAD" or "main"
	SoulPath    string // path within the repo, e.g. "system-prompt.md"
	CompactRef  string // defaults to SoulRef if empty
	CompactPath string // path within the repo, e.g. "compact-prompt.md"

	// Name is interpolated into the assembled identity block's header
	// ("# <Name>\n\n<soul doc>"). Falls back to "Alpha" if empty.
	Name string
}

// Loader holds the loaded documents and the commit hash they were read at.
type Loader struct {
	Name       string
	SoulDoc    string
	CompactDoc string
	CommitHash string
}

// Load reads both documents once. A missing soul document is fatal
// (ErrFatalInit); a missing compaction document degrades to a fixed
// fallback string with a logged warning and no error.
func Load(ctx context.Context, cfg Config) (*Loader, error) {
	compactRef := cfg.CompactRef
	if compactRef == "" {
		compactRef = cfg.SoulRef
	}

	commitHash, err := gitShow(ctx, cfg.RepoPath, cfg.SoulRef, "")
	if err != nil {
		commitHash = cfg.SoulRef
	} else {
		commitHash = strings.TrimSpace(commitHash)
	}

	soul, err := gitShow(ctx, cfg.RepoPath, cfg.SoulRef, cfg.SoulPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s:%s: %v", ErrFatalInit, cfg.SoulRef, cfg.SoulPath, err)
	}

	compact, err := gitShow(ctx, cfg.RepoPath, compactRef, cfg.CompactPath)
	if err != nil {
		slog.Warn("identity: compaction document unavailable, using fallback", "ref", compactRef, "path", cfg.CompactPath, "err", err)
		compact = fallbackCompactPrompt
	}

	name := cfg.Name
	if name == "" {
		name = fallbackIdentityName
	}

	return &Loader{
		Name:       name,
		SoulDoc:    soul,
		CompactDoc: compact,
		CommitHash: commitHash,
	}, nil
}

// gitShow runs `git show <ref>[:<path>]` in repoPath and returns stdout.
// When path is empty it resolves the ref's commit hash instead.
func gitShow(ctx context.Context, repoPath, ref, path string) (string, error) {
	var cmd *exec.Cmd
	if path == "" {
		cmd = exec.CommandContext(ctx, "git", "-C", repoPath, "rev-parse", ref)
	} else {
		cmd = exec.CommandContext(ctx, "git", "-C", repoPath, "show", ref+":"+path)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%v: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
