package patch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mcp-sandbox-server/pkg/sandbox"
)

// FileChange describes the effect of one applied section.
type FileChange struct {
	Path         string `json:"path"`
	Created      bool   `json:"created"`
	LinesAdded   int    `json:"linesAdded"`
	LinesRemoved int    `json:"linesRemoved"`
}

// Result lists the files written, in the order sections were applied.
type Result struct {
	Updated []string
	Files   []FileChange
}

// Applier writes parsed patches beneath a sandbox root.
type Applier struct {
	Root *sandbox.Root
}

// NewApplier creates an Applier confined to root.
func NewApplier(root *sandbox.Root) *Applier {
	return &Applier{Root: root}
}

type target struct {
	abs     string
	section Section
}

// Apply parses text and overwrites each named file with its section
// content. Parsing and path resolution finish before the first write, so a
// malformed patch or a path outside the root leaves the filesystem untouched.
// Later sections for the same path win.
func (a *Applier) Apply(text string) (Result, error) {
	blocks, err := Parse(text)
	if err != nil {
		return Result{}, err
	}

	var targets []target
	for _, block := range blocks {
		for _, section := range block.Sections {
			abs, err := a.Root.Resolve(section.Path)
			if err != nil {
				return Result{}, fmt.Errorf("%s: %w", section.Path, err)
			}
			if info, err := os.Stat(abs); err == nil && info.IsDir() {
				return Result{}, fmt.Errorf("%s: cannot overwrite a directory", section.Path)
			}
			targets = append(targets, target{abs: abs, section: section})
		}
	}

	res := Result{Updated: []string{}, Files: []FileChange{}}
	for _, t := range targets {
		previous, readErr := os.ReadFile(t.abs)
		created := errors.Is(readErr, os.ErrNotExist)

		if err := os.MkdirAll(filepath.Dir(t.abs), 0755); err != nil {
			return res, fmt.Errorf("failed to create parent directories for %s: %w", t.section.Path, err)
		}
		if err := os.WriteFile(t.abs, []byte(t.section.Content), 0644); err != nil {
			return res, fmt.Errorf("failed to write %s: %w", t.section.Path, err)
		}

		rel := a.Root.Rel(t.abs)
		added, removed := lineDelta(string(previous), t.section.Content)
		res.Updated = append(res.Updated, rel)
		res.Files = append(res.Files, FileChange{
			Path:         rel,
			Created:      created,
			LinesAdded:   added,
			LinesRemoved: removed,
		})
		slog.Debug("Applied patch section", "path", rel, "created", created)
	}
	return res, nil
}
