package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// NewGitHubClient returns an API client, authenticated when token is
// non-empty. Unauthenticated access works but may hit rate limits.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// PullRequestFiles lists every file changed in a pull request, paginating
// through the API. Paths are repository-root-relative, the same shape as
// git diff --name-only output.
func PullRequestFiles(ctx context.Context, client *github.Client, owner, repo string, number int) ([]string, error) {
	opt := &github.ListOptions{PerPage: 100}
	var files []string
	for {
		page, resp, err := client.PullRequests.ListFiles(ctx, owner, repo, number, opt)
		if err != nil {
			var rlErr *github.RateLimitError
			if errors.As(err, &rlErr) {
				return nil, fmt.Errorf("GitHub rate limit hit, resets at %v: %w", rlErr.Rate.Reset.Time, err)
			}
			return nil, fmt.Errorf("listing files for %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, f := range page {
			if name := f.GetFilename(); name != "" {
				files = append(files, name)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return files, nil
}

// SplitRepo parses an OWNER/NAME repository argument.
func SplitRepo(s string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q, expected OWNER/NAME", s)
	}
	return owner, name, nil
}
