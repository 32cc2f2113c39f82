// Package hosted talks to the hosted repository (GitHub REST API): commit
// messages, tag refs, pull request search and creation.
//
// A Client is built once per run from a single token and passed to every
// component that needs it.
package hosted

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// Sentinel errors.
var (
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = errors.New("hosted repository token is required")
	// ErrInvalidRepository is returned for a repository slug that is not owner/name.
	ErrInvalidRepository = errors.New("repository must be in owner/name form")
)

const (
	tagRefPrefix = "refs/tags/"
	tagRefShort  = "tags/"
)

// Repo identifies a hosted repository.
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses an "owner/name" slug such as GITHUB_REPOSITORY.
func ParseRepo(slug string) (Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(slug), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("%w: %q", ErrInvalidRepository, slug)
	}

	return Repo{Owner: owner, Name: name}, nil
}

// String returns the owner/name slug.
func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// PullRequest is the payload of a new pull request.
type PullRequest struct {
	Head  string
	Base  string
	Title string
	Body  string
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithBaseURL points the client at another API root (GitHub Enterprise, tests).
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) { o.baseURL = baseURL }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = httpClient }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// Client is an authenticated hosted repository client bound to one repository.
type Client struct {
	gh     *github.Client
	repo   Repo
	logger *slog.Logger
}

// NewClient creates a Client authenticated with token.
func NewClient(token string, repo Repo, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	var options clientOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.logger == nil {
		options.logger = slog.Default()
	}

	gh := github.NewClient(options.httpClient).WithAuthToken(token)

	if options.baseURL != "" {
		base, err := url.Parse(options.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}

		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}

		gh.BaseURL = base
	}

	return &Client{gh: gh, repo: repo, logger: options.logger}, nil
}

// Repo returns the repository the client is bound to.
func (c *Client) Repo() Repo {
	return c.repo
}

// CommitMessage returns the message of the commit sha.
func (c *Client) CommitMessage(ctx context.Context, sha string) (string, error) {
	commit, _, err := c.gh.Git.GetCommit(ctx, c.repo.Owner, c.repo.Name, sha)
	if err != nil {
		return "", fmt.Errorf("get commit %s: %w", sha, err)
	}

	return commit.GetMessage(), nil
}

// TagExists reports whether refs/tags/<tag> exists.
func (c *Client) TagExists(ctx context.Context, tag string) (bool, error) {
	_, resp, err := c.gh.Git.GetRef(ctx, c.repo.Owner, c.repo.Name, tagRefShort+tag)
	if err != nil {
		if statusIs(resp, http.StatusNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("get ref tags/%s: %w", tag, err)
	}

	return true, nil
}

// CreateTag creates refs/tags/<tag> pointing at sha. It returns false without
// error when the ref already exists.
func (c *Client) CreateTag(ctx context.Context, tag, sha string) (bool, error) {
	ref := &github.Reference{
		Ref:    github.String(tagRefPrefix + tag),
		Object: &github.GitObject{SHA: github.String(sha)},
	}

	c.logger.DebugContext(ctx, "hosted: creating ref", "ref", ref.GetRef(), "sha", sha)

	_, resp, err := c.gh.Git.CreateRef(ctx, c.repo.Owner, c.repo.Name, ref)
	if err != nil {
		if statusIs(resp, http.StatusUnprocessableEntity) && strings.Contains(err.Error(), "already exists") {
			return false, nil
		}

		return false, fmt.Errorf("create ref %s: %w", ref.GetRef(), err)
	}

	return true, nil
}

// OpenPullRequestExists reports whether an open pull request from head into base exists.
func (c *Client) OpenPullRequestExists(ctx context.Context, head, base string) (bool, error) {
	query := fmt.Sprintf("repo:%s is:pr is:open head:%s base:%s", c.repo, head, base)

	c.logger.DebugContext(ctx, "hosted: searching pull requests", "query", query)

	result, _, err := c.gh.Search.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return false, fmt.Errorf("search pull requests: %w", err)
	}

	return result.GetTotal() > 0, nil
}

// CreatePullRequest opens a pull request and returns its number.
func (c *Client) CreatePullRequest(ctx context.Context, pr PullRequest) (int, error) {
	created, _, err := c.gh.PullRequests.Create(ctx, c.repo.Owner, c.repo.Name, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		return 0, fmt.Errorf("create pull request %s -> %s: %w", pr.Head, pr.Base, err)
	}

	return created.GetNumber(), nil
}

func statusIs(resp *github.Response, status int) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == status
}
