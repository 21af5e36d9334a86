// Package githubtree lists and fetches repository blobs from the GitHub API.
//
// It is the remote tree collaborator for indexing runs: resolving the head
// revision, listing blob entries in stable order, and fetching blob text
// through a size cap and an encoding-detection ladder.
package githubtree

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/braind/internal/config"
)

// DefaultTimeout is the default HTTP request timeout for GitHub API calls.
const DefaultTimeout = 20 * time.Second

// RepoMeta is repository metadata from the remote host.
type RepoMeta struct {
	GitHubID      int64  `json:"github_id"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// BlobEntry is one blob in a repository tree.
type BlobEntry struct {
	Path string
	SHA  string
	Size int
}

// Config holds tree lister configuration.
type Config struct {
	// Token authenticates API calls.
	Token config.Secret
	// Timeout applies to each outbound API call.
	Timeout time.Duration
	// MaxBlobBytes caps the size of a fetched blob; larger blobs are
	// reported as not text.
	MaxBlobBytes int
}

// Client wraps the go-github client with the tree-listing surface indexing
// runs need.
type Client struct {
	gh           *github.Client
	maxBlobBytes int
}

// NewClient creates an authenticated GitHub client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = timeout

	return &Client{
		gh:           github.NewClient(tc),
		maxBlobBytes: cfg.MaxBlobBytes,
	}, nil
}

// RepoInfo fetches repository metadata.
func (c *Client) RepoInfo(ctx context.Context, owner, name string) (*RepoMeta, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
	}
	return &RepoMeta{
		GitHubID:      repo.GetID(),
		Owner:         owner,
		Name:          name,
		DefaultBranch: repo.GetDefaultBranch(),
	}, nil
}

// ResolveHead returns (branch, head revision) for the repository. If the
// named default branch does not exist, it falls back to the first listed
// branch.
func (c *Client) ResolveHead(ctx context.Context, owner, name, defaultBranch string) (string, string, error) {
	branch, _, err := c.gh.Repositories.GetBranch(ctx, owner, name, defaultBranch, 1)
	if err == nil {
		return branch.GetName(), branch.GetCommit().GetSHA(), nil
	}
	if !IsNotFound(err) {
		return "", "", fmt.Errorf("resolving branch %s: %w", defaultBranch, err)
	}

	branches, _, err := c.gh.Repositories.ListBranches(ctx, owner, name, &github.BranchListOptions{})
	if err != nil {
		return "", "", fmt.Errorf("listing branches for %s/%s: %w", owner, name, err)
	}
	if len(branches) == 0 {
		return "", "", fmt.Errorf("no branches found in %s/%s", owner, name)
	}
	first := branches[0]
	return first.GetName(), first.GetCommit().GetSHA(), nil
}

// ListBlobs returns the blob entries of the tree at headSHA, recursively,
// sorted by path for stable processing order.
func (c *Client) ListBlobs(ctx context.Context, owner, name, headSHA string) ([]BlobEntry, error) {
	tree, _, err := c.gh.Git.GetTree(ctx, owner, name, headSHA, true)
	if err != nil {
		return nil, fmt.Errorf("getting tree %s: %w", headSHA, err)
	}

	entries := make([]BlobEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, BlobEntry{
			Path: e.GetPath(),
			SHA:  e.GetSHA(),
			Size: e.GetSize(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// FetchText fetches a blob and returns its decoded text. ok is false when the
// blob is oversized, not base64-encoded, or does not decode as text; that is
// a skip, not an error.
func (c *Client) FetchText(ctx context.Context, owner, name, blobSHA string, size int) (string, bool, error) {
	if c.maxBlobBytes > 0 && size > c.maxBlobBytes {
		return "", false, nil
	}

	blob, _, err := c.gh.Git.GetBlob(ctx, owner, name, blobSHA)
	if err != nil {
		return "", false, fmt.Errorf("getting blob %s: %w", blobSHA, err)
	}
	if blob.GetEncoding() != "base64" {
		return "", false, nil
	}

	// GitHub returns base64 broken by newlines.
	raw, err := base64.StdEncoding.DecodeString(stripWhitespace(blob.GetContent()))
	if err != nil {
		return "", false, fmt.Errorf("decoding blob %s: %w", blobSHA, err)
	}
	if c.maxBlobBytes > 0 && len(raw) > c.maxBlobBytes {
		return "", false, nil
	}

	text, ok := DecodeText(raw)
	return text, ok, nil
}

func stripWhitespace(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n', '\r', ' ', '\t':
		default:
			b = append(b, s[i])
		}
	}
	return string(b)
}

// IsNotFound reports whether err is a GitHub API 404.
func IsNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
