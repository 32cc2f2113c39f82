package affected

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/monorel/pkg/manifest"
)

// ErrResolve marks a per-path resolution failure (unreadable or malformed manifest).
var ErrResolve = errors.New("resolve package")

// ManifestReader reads the manifest located directly in a directory.
// It must return an error matching manifest.ErrNotFound when there is none.
type ManifestReader interface {
	Read(dir string) (*manifest.Manifest, error)
}

// Resolver finds the package owning a changed path.
type Resolver struct {
	root      string
	manifests ManifestReader
}

// NewResolver creates a Resolver for the repository rooted at root.
func NewResolver(root string, manifests ManifestReader) (*Resolver, error) {
	canonical, err := canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalize repository root %s: %w", root, err)
	}

	return &Resolver{root: canonical, manifests: manifests}, nil
}

// Root returns the canonical absolute repository root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the package owning changedPath, or nil when no manifest is
// found between the path and the repository root. Relative paths are taken
// relative to the repository root.
func (r *Resolver) Resolve(changedPath string) (*Package, error) {
	abs := changedPath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, changedPath)
	}

	start, err := canonicalize(startDir(abs))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResolve, changedPath, err)
	}

	// Each iteration strictly shortens dir, so the walk ends at the root or
	// at the filesystem root even on malformed trees.
	for dir := start; ; {
		rel, inside := relativeTo(r.root, dir)
		if !inside {
			return nil, nil //nolint:nilnil // outside the repository.
		}

		m, readErr := r.manifests.Read(dir)

		switch {
		case readErr == nil:
			return &Package{Name: m.Name, RootPath: rel, Version: m.Version}, nil
		case !errors.Is(readErr, manifest.ErrNotFound):
			return nil, fmt.Errorf("%w: %s: %w", ErrResolve, changedPath, readErr)
		}

		parent := filepath.Dir(dir)
		if dir == r.root || parent == dir {
			return nil, nil //nolint:nilnil // no owning package.
		}

		dir = parent
	}
}

// startDir is the directory a walk begins in: the path itself for an
// existing directory, otherwise its parent. Deleted files do not exist on
// disk, so only an existing directory is treated as one.
func startDir(abs string) string {
	info, err := os.Stat(abs)
	if err == nil && info.IsDir() {
		return abs
	}

	return filepath.Dir(abs)
}

// canonicalize returns the absolute, symlink-free form of path. Trailing
// components that do not exist (a deleted package directory) are kept as is
// on top of the deepest existing ancestor.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var missing []string

	current := abs

	for {
		resolved, evalErr := filepath.EvalSymlinks(current)
		if evalErr == nil {
			parts := append([]string{resolved}, reverse(missing)...)

			return filepath.Join(parts...), nil
		}

		if !errors.Is(evalErr, os.ErrNotExist) {
			return "", evalErr
		}

		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}

		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

func reverse(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}

	return out
}

// relativeTo reports dir relative to root in slash form, and whether dir is
// inside root.
func relativeTo(root, dir string) (string, bool) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", false
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return filepath.ToSlash(rel), true
}
