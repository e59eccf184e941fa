// Package remote asks the hosting service for a branch head so that an
// up-to-date repository can be skipped without fetching it.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

// Prober reports the head revision of a remote branch
type Prober interface {
	// BranchHead returns the head sha of branch. supported is false when the
	// address is not hosted where the prober can look.
	BranchHead(ctx context.Context, address, branch string) (sha string, supported bool, err error)
}

// githubProber implements Prober using the GitHub API
type githubProber struct {
	client      *github.Client
	rateLimiter RateLimiter
	logger      *slog.Logger
}

// NewGitHubProber creates a prober; an empty token makes unauthenticated calls
func NewGitHubProber(token string, logger *slog.Logger) Prober {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	return NewGitHubProberWithClient(github.NewClient(hc), logger)
}

// NewGitHubProberWithClient creates a prober around an existing client
func NewGitHubProberWithClient(client *github.Client, logger *slog.Logger) Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &githubProber{
		client:      client,
		rateLimiter: NewRateLimiter(logger),
		logger:      logger,
	}
}

// BranchHead retrieves the sha the branch points at
func (p *githubProber) BranchHead(ctx context.Context, address, branch string) (string, bool, error) {
	owner, repo, ok := ParseGitHubAddress(address)
	if !ok {
		return "", false, nil
	}
	if branch == "" {
		branch = "HEAD"
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return "", true, err
	}

	sha, resp, err := p.client.Repositories.GetCommitSHA1(ctx, owner, repo, branch, "")
	p.updateRateLimitFromResponse(resp)
	if err != nil {
		return "", true, fmt.Errorf("failed to get head of %s/%s@%s: %w", owner, repo, branch, err)
	}

	p.logger.Debug("remote branch head", "owner", owner, "repo", repo, "branch", branch, "sha", sha)
	return sha, true, nil
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (p *githubProber) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 {
		p.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}

// ParseGitHubAddress extracts owner and repository name from an https or scp-style github.com address
func ParseGitHubAddress(address string) (owner, repo string, ok bool) {
	address = strings.TrimSpace(address)
	var path string

	switch {
	case strings.HasPrefix(address, "git@github.com:"):
		path = strings.TrimPrefix(address, "git@github.com:")
	default:
		u, err := url.Parse(address)
		if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
			return "", "", false
		}
		path = u.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
