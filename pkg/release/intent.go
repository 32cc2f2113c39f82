package release

import (
	"context"
	"errors"
)

// ErrNoCommit is returned by CommitIntent when no revision is configured.
var ErrNoCommit = errors.New("no commit to read the intent from")

// StaticIntent is an intent given up front, such as a pull request title.
type StaticIntent string

// Intent returns the text.
func (s StaticIntent) Intent(_ context.Context) (string, error) {
	return string(s), nil
}

// CommitMessenger reads commit messages. Both the hosted client and the
// local repository implement it.
type CommitMessenger interface {
	CommitMessage(ctx context.Context, rev string) (string, error)
}

// CommitIntent uses the message of one commit as the intent.
type CommitIntent struct {
	Commits CommitMessenger
	Rev     string
}

// Intent returns the commit message of Rev.
func (c CommitIntent) Intent(ctx context.Context) (string, error) {
	if c.Rev == "" {
		return "", ErrNoCommit
	}

	return c.Commits.CommitMessage(ctx, c.Rev)
}
