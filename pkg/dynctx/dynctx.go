// Package dynctx discovers and loads dynamic context files (fixed file
// name, YAML frontmatter controlling autoload behavior) underneath a root
// directory, in path-sorted order.
package dynctx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/pondside-labs/loom/pkg/types"
)

// Loader discovers and parses context files named FileName underneath Root.
type Loader struct {
	Root     string
	FileName string // e.g. "ALPHA.md"
}

type frontmatter struct {
	Autoload string `yaml:"autoload"`
	When     string `yaml:"when"`
}

// Load finds every FileName under Root, in path-sorted order, parses its
// frontmatter, and returns the successfully-parsed files. A file that fails
// to parse is skipped, not fatal to the whole load.
func (l *Loader) Load() ([]types.ContextFile, []error) {
	pattern := filepath.Join(l.Root, "**", l.FileName)
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, []error{fmt.Errorf("dynctx: glob: %w", err)}
	}
	sort.Strings(matches)

	var out []types.ContextFile
	var errs []error
	for _, path := range matches {
		cf, err := l.loadOne(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("dynctx: %s: %w", path, err))
			continue
		}
		out = append(out, cf)
	}
	return out, errs
}

func (l *Loader) loadOne(path string) (types.ContextFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ContextFile{}, err
	}

	fm, body := splitFrontmatter(string(data))

	var meta frontmatter
	if fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return types.ContextFile{}, err
		}
	}
	if meta.Autoload == "" {
		meta.Autoload = "no"
	}

	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		rel = path
	}

	return types.ContextFile{
		RelPath:  rel,
		Autoload: meta.Autoload,
		When:     meta.When,
		Content:  strings.TrimSpace(body),
	}, nil
}

// splitFrontmatter splits a leading "---\n...\n---\n" YAML block from the
// rest of the document. No frontmatter-parsing library exists anywhere in
// the retrieval pack, so the fence itself is split by hand; only the
// resulting header slice is handed to yaml.v3.
func splitFrontmatter(doc string) (frontmatterYAML, body string) {
	const fence = "---"
	if !strings.HasPrefix(doc, fence) {
		return "", doc
	}
	rest := doc[len(fence):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n"+fence)
	if idx < 0 {
		return "", doc
	}
	header := rest[:idx]
	remainder := rest[idx+1+len(fence):]
	remainder = strings.TrimPrefix(remainder, "\r\n")
	remainder = strings.TrimPrefix(remainder, "\n")
	return header, remainder
}

// RenderHint formats a "when" entry's hint-list line.
func RenderHint(cf types.ContextFile) string {
	return fmt.Sprintf("Read(%s) when %s", cf.RelPath, cf.When)
}
