package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrNoCurrent = errors.New("no knowledge base built yet")

const (
	currentPointer = "CURRENT"
	buildsDir      = "builds"
	stagingDir     = "staging"
)

// KnowledgeBase is the root directory holding a staging layout that runs
// build into and immutable promoted builds. CURRENT names the build being
// served; a failed run never touches it.
type KnowledgeBase struct {
	Root string
	// Keep is how many promoted builds survive pruning, including the
	// current one.
	Keep int
}

func (kb KnowledgeBase) Staging() Layout {
	return Layout{Dir: filepath.Join(kb.Root, stagingDir)}
}

// Current returns the layout of the promoted build.
func (kb KnowledgeBase) Current() (Layout, error) {
	data, err := os.ReadFile(filepath.Join(kb.Root, currentPointer))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Layout{}, ErrNoCurrent
		}
		return Layout{}, err
	}

	name := strings.TrimSpace(string(data))
	if name == "" || strings.ContainsAny(name, `/\`) {
		return Layout{}, fmt.Errorf("%w: bad %s pointer %q", ErrCorrupt, currentPointer, name)
	}
	return Layout{Dir: filepath.Join(kb.Root, buildsDir, name)}, nil
}

// Promote moves the staging layout into a new build and points CURRENT at
// it. The pointer is swapped with a rename, so readers see either the old
// build or the new one.
func (kb KnowledgeBase) Promote() (Layout, error) {
	staging := kb.Staging()
	if _, err := os.Stat(staging.Dir); err != nil {
		return Layout{}, fmt.Errorf("nothing staged: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(kb.Root, buildsDir), 0o755); err != nil {
		return Layout{}, err
	}

	name := time.Now().UTC().Format("20060102T150405.000000000Z")
	build := Layout{Dir: filepath.Join(kb.Root, buildsDir, name)}
	if err := os.Rename(staging.Dir, build.Dir); err != nil {
		return Layout{}, fmt.Errorf("move staging to build: %w", err)
	}

	tmp := filepath.Join(kb.Root, currentPointer+".tmp")
	if err := os.WriteFile(tmp, []byte(name+"\n"), 0o644); err != nil {
		return Layout{}, err
	}
	if err := os.Rename(tmp, filepath.Join(kb.Root, currentPointer)); err != nil {
		return Layout{}, fmt.Errorf("swap %s pointer: %w", currentPointer, err)
	}

	slog.Info("promoted knowledge base build", slog.String("build", name))
	kb.prune(name)
	return build, nil
}

func (kb KnowledgeBase) prune(current string) {
	keep := kb.Keep
	if keep < 1 {
		keep = 2
	}

	entries, err := os.ReadDir(filepath.Join(kb.Root, buildsDir))
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != current {
			names = append(names, e.Name())
		}
	}
	// build names sort chronologically
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for i, name := range names {
		if i < keep-1 {
			continue
		}
		dir := filepath.Join(kb.Root, buildsDir, name)
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to prune old build", slog.String("dir", dir), slog.Any("err", err))
		}
	}
}
