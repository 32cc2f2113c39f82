package gitlib

import (
	"context"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Change is a single file-level change between two trees. From is empty
// for added files and To is empty for deleted ones.
type Change struct {
	From string
	To   string
}

// Paths returns the distinct paths touched by the change.
func (c Change) Paths() []string {
	switch {
	case c.From == "":
		return []string{c.To}
	case c.To == "" || c.To == c.From:
		return []string{c.From}
	default:
		return []string{c.From, c.To}
	}
}

// treeDiff computes the file changes between two trees.
// Skips diff when both tree OIDs are equal.
func treeDiff(repo *Repository, oldTree, newTree *Tree) ([]Change, error) {
	if oldTree != nil && newTree != nil && oldTree.Hash() == newTree.Hash() {
		return nil, nil
	}

	diff, err := repo.diffTreeToTree(oldTree, newTree)
	if err != nil {
		return nil, err
	}
	defer diff.Free()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("get num deltas: %w", err)
	}

	changes := make([]Change, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, fmt.Errorf("read delta %d: %w", i, deltaErr)
		}

		switch delta.Status {
		case git2go.DeltaAdded:
			changes = append(changes, Change{To: delta.NewFile.Path})
		case git2go.DeltaDeleted:
			changes = append(changes, Change{From: delta.OldFile.Path})
		case git2go.DeltaModified, git2go.DeltaRenamed, git2go.DeltaCopied, git2go.DeltaTypeChange:
			changes = append(changes, Change{From: delta.OldFile.Path, To: delta.NewFile.Path})
		case git2go.DeltaUnmodified, git2go.DeltaIgnored, git2go.DeltaUntracked,
			git2go.DeltaUnreadable, git2go.DeltaConflicted:
			continue
		}
	}

	return changes, nil
}

// ChangedPaths lists the repository-relative paths that differ between two
// revisions, like `git diff-tree --no-commit-id --name-only -r head base`.
// Each path appears once, in diff order.
func (r *Repository) ChangedPaths(ctx context.Context, head, base string) ([]string, error) {
	headCommit, err := r.ResolveCommit(ctx, head)
	if err != nil {
		return nil, err
	}
	defer headCommit.Free()

	baseCommit, err := r.ResolveCommit(ctx, base)
	if err != nil {
		return nil, err
	}
	defer baseCommit.Free()

	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, err
	}
	defer headTree.Free()

	baseTree, err := baseCommit.Tree()
	if err != nil {
		return nil, err
	}
	defer baseTree.Free()

	changes, err := treeDiff(r, baseTree, headTree)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(changes))
	paths := make([]string, 0, len(changes))

	for _, change := range changes {
		for _, path := range change.Paths() {
			if _, dup := seen[path]; dup {
				continue
			}

			seen[path] = struct{}{}
			paths = append(paths, path)
		}
	}

	return paths, nil
}
