package affected

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrPathSource marks a failure to enumerate changed paths. It is fatal for a run
// and is added by Builder.Collect.
var ErrPathSource = errors.New("cannot enumerate changed paths")

// PathSource produces the batch of changed file paths a run works on.
// Paths are relative to the repository root.
type PathSource interface {
	ChangedPaths(ctx context.Context) ([]string, error)
}

// Differ lists the paths that differ between two revisions.
type Differ interface {
	ChangedPaths(ctx context.Context, head, base string) ([]string, error)
}

// DefaultBase is the base revision used when none is configured: the parent of head.
const DefaultBase = "HEAD~1"

// DiffSource lists the paths changed between Head and Base.
type DiffSource struct {
	Differ Differ
	Head   string
	Base   string
}

// ChangedPaths implements PathSource.
func (s DiffSource) ChangedPaths(ctx context.Context) ([]string, error) {
	head := s.Head
	if head == "" {
		head = "HEAD"
	}

	base := s.Base
	if base == "" {
		base = DefaultBase
	}

	paths, err := s.Differ.ChangedPaths(ctx, head, base)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", base, head, err)
	}

	return paths, nil
}

// StaticSource is a pre-supplied list of paths, e.g. the output of a previous step.
type StaticSource []string

// ChangedPaths implements PathSource.
func (s StaticSource) ChangedPaths(_ context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)

	return out, nil
}

// FilteredSource keeps only the paths of the wrapped source that match Pattern.
type FilteredSource struct {
	Source  PathSource
	Pattern *regexp.Regexp
}

// ChangedPaths implements PathSource.
func (s FilteredSource) ChangedPaths(ctx context.Context) ([]string, error) {
	paths, err := s.Source.ChangedPaths(ctx)
	if err != nil || s.Pattern == nil {
		return paths, err
	}

	kept := make([]string, 0, len(paths))

	for _, p := range paths {
		if s.Pattern.MatchString(p) {
			kept = append(kept, p)
		}
	}

	return kept, nil
}
