package gitlib

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrNotCommit is returned when a revision does not peel to a commit.
var ErrNotCommit = errors.New("revision does not point to a commit")

// Repository wraps a libgit2 repository.
type Repository struct {
	repo *git2go.Repository
	path string
}

// OpenRepository opens a git repository at the given path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Workdir returns the absolute working directory of the repository.
// Bare repositories fall back to the path the repository was opened with.
func (r *Repository) Workdir() string {
	workdir := r.repo.Workdir()
	if workdir == "" {
		workdir = r.path
	}

	abs, err := filepath.Abs(workdir)
	if err != nil {
		return filepath.Clean(workdir)
	}

	return abs
}

// Free releases the repository resources.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// Head returns the HEAD reference target.
func (r *Repository) Head() (Hash, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return Hash{}, fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return HashFromOid(ref.Target()), nil
}

// ResolveCommit resolves a revision expression (sha, branch, tag, "HEAD~1") to a commit.
func (r *Repository) ResolveCommit(_ context.Context, rev string) (*Commit, error) {
	obj, err := r.repo.RevparseSingle(rev)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", rev, err)
	}
	defer obj.Free()

	peeled, err := obj.Peel(git2go.ObjectCommit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCommit, rev)
	}
	defer peeled.Free()

	commit, err := peeled.AsCommit()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCommit, rev)
	}

	return &Commit{commit: commit}, nil
}

// diffTreeToTree computes the diff between two trees.
func (r *Repository) diffTreeToTree(oldTree, newTree *Tree) (*git2go.Diff, error) {
	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("get diff options: %w", err)
	}

	var oldT, newT *git2go.Tree
	if oldTree != nil {
		oldT = oldTree.tree
	}

	if newTree != nil {
		newT = newTree.tree
	}

	diff, err := r.repo.DiffTreeToTree(oldT, newT, &opts)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	return diff, nil
}

// CommitMessage returns the full message of the commit a revision points to.
func (r *Repository) CommitMessage(ctx context.Context, rev string) (string, error) {
	commit, err := r.ResolveCommit(ctx, rev)
	if err != nil {
		return "", err
	}
	defer commit.Free()

	return commit.Message(), nil
}
