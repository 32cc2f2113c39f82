package gitlib

import (
	"context"
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

const tagRefPrefix = "refs/tags/"

// TagRef returns the fully qualified reference name for a tag.
func TagRef(tag string) string {
	if strings.HasPrefix(tag, tagRefPrefix) {
		return tag
	}

	return tagRefPrefix + tag
}

// TagExists reports whether refs/tags/<tag> exists in the repository.
func (r *Repository) TagExists(_ context.Context, tag string) (bool, error) {
	ref, err := r.repo.References.Lookup(TagRef(tag))
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("lookup %s: %w", TagRef(tag), err)
	}

	ref.Free()

	return true, nil
}

// CreateTag creates a lightweight tag pointing at the commit the target revision resolves to.
// It returns false without error when the tag already exists.
func (r *Repository) CreateTag(ctx context.Context, tag, target string) (bool, error) {
	commit, err := r.ResolveCommit(ctx, target)
	if err != nil {
		return false, err
	}
	defer commit.Free()

	ref, err := r.repo.References.Create(TagRef(tag), commit.Hash().ToOid(), false, "monorel: create tag "+tag)
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeExists) {
			return false, nil
		}

		return false, fmt.Errorf("create %s: %w", TagRef(tag), err)
	}

	ref.Free()

	return true, nil
}
