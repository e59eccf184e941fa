// Package git reads repository history by shelling out to the git CLI.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kurihiro0119/docsync/internal/domain"
)

var (
	// ErrGitNotInstalled is returned when the git binary cannot be found
	ErrGitNotInstalled = errors.New("git is not installed")
	// ErrUnknownRevision is returned when a revision marker is not in the local history
	ErrUnknownRevision = errors.New("unknown revision")
)

// DefaultTimeout bounds a single git invocation
const DefaultTimeout = 10 * time.Minute

const (
	usernameEnv = "DOCSYNC_GIT_USERNAME"
	passwordEnv = "DOCSYNC_GIT_PASSWORD"
)

// credentialHelper answers git's credential requests from the environment of
// the invocation. Secrets never reach argv or .git/config.
const credentialHelper = `!f() { test "$1" = get || exit 0; echo "username=${` + usernameEnv + `}"; echo "password=${` + passwordEnv + `}"; }; f`

// Client runs git commands against local working copies
type Client struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a git client
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{timeout: DefaultTimeout, logger: logger}
}

// Available reports whether the git binary is on PATH
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Pull brings the working copy at path up to date with branch of address,
// cloning it first when missing. It returns the commits after marker
// (oldest first) and the new head revision. An empty marker returns the
// whole history.
func (c *Client) Pull(ctx context.Context, path, address, marker, branch string, creds *domain.Credentials) ([]*domain.Commit, string, error) {
	if !Available() {
		return nil, "", ErrGitNotInstalled
	}

	a := newAuth(address, creds)

	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		if err := c.clone(ctx, path, address, branch, a); err != nil {
			return nil, "", err
		}
	} else if err := c.update(ctx, path, address, branch, a); err != nil {
		return nil, "", err
	}

	head, err := c.Head(ctx, path)
	if err != nil {
		return nil, "", err
	}

	commits, err := c.CommitsSince(ctx, path, marker)
	if err != nil {
		return nil, "", err
	}

	c.logger.Info("pulled repository", "path", path, "branch", branch, "head", head, "new_commits", len(commits))
	return commits, head, nil
}

func (c *Client) clone(ctx context.Context, path, address, branch string, a auth) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}
	args := []string{"clone", "--quiet"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, address, path)

	if _, err := c.runAuth(ctx, "", a, args...); err != nil {
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}

func (c *Client) update(ctx context.Context, path, address, branch string, a auth) error {
	// also rewrites origin urls that still embed credentials
	if _, err := c.run(ctx, path, "remote", "set-url", "origin", address); err != nil {
		return fmt.Errorf("git remote set-url failed: %w", err)
	}

	if branch == "" {
		current, err := c.run(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return fmt.Errorf("failed to resolve current branch: %w", err)
		}
		branch = strings.TrimSpace(string(current))
	}

	if _, err := c.runAuth(ctx, path, a, "fetch", "--quiet", "origin", branch); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	if _, err := c.run(ctx, path, "reset", "--quiet", "--hard", "origin/"+branch); err != nil {
		return fmt.Errorf("git reset failed: %w", err)
	}
	return nil
}

// Head returns the revision HEAD points at
func (c *Client) Head(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CommitsSince lists commits reachable from HEAD but not from marker, oldest first
func (c *Client) CommitsSince(ctx context.Context, path, marker string) ([]*domain.Commit, error) {
	rangeArg := "HEAD"
	if marker != "" {
		if _, err := c.run(ctx, path, "cat-file", "-e", marker+"^{commit}"); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRevision, marker)
		}
		rangeArg = marker + "..HEAD"
	}

	out, err := c.run(ctx, path, "log", "--reverse", "--format="+logFormat, rangeArg)
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}
	return parseLog(out)
}

// ListCommits lists commits on HEAD committed strictly after since, oldest
// first. A zero since lists the whole history.
func (c *Client) ListCommits(ctx context.Context, path string, since time.Time) ([]*domain.Commit, error) {
	args := []string{"log", "--reverse", "--format=" + logFormat}
	if !since.IsZero() {
		// --since is inclusive at second granularity, the exact cut happens below
		args = append(args, "--since="+since.Add(-time.Second).UTC().Format(time.RFC3339))
	}
	args = append(args, "HEAD")

	out, err := c.run(ctx, path, args...)
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}
	commits, err := parseLog(out)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return commits, nil
	}

	filtered := commits[:0]
	for _, commit := range commits {
		if commit.CommittedAt.After(since) {
			filtered = append(filtered, commit)
		}
	}
	return filtered, nil
}

// ListFiles lists tracked files of the working copy
func (c *Client) ListFiles(ctx context.Context, path string) ([]string, error) {
	out, err := c.run(ctx, path, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}
	return parseLines(out), nil
}

// run executes git in dir and returns stdout. stderr is folded into the error.
func (c *Client) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return c.runAuth(ctx, dir, auth{}, args...)
}

func (c *Client) runAuth(ctx context.Context, dir string, a auth, args ...string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", append(a.args, args...)...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Env = append(cmd.Env, a.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, redact(strings.TrimSpace(stderr.String())))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// auth is the per-invocation credential setup of a git command
type auth struct {
	args []string
	env  []string
}

// newAuth configures basic credentials for http(s) addresses. Inherited
// helpers are reset so that none of them stores the secret.
func newAuth(address string, creds *domain.Credentials) auth {
	if creds == nil || creds.Username == "" {
		return auth{}
	}
	if !strings.HasPrefix(address, "https://") && !strings.HasPrefix(address, "http://") {
		return auth{}
	}
	return auth{
		args: []string{"-c", "credential.helper=", "-c", "credential.helper=" + credentialHelper},
		env:  []string{usernameEnv + "=" + creds.Username, passwordEnv + "=" + creds.Password},
	}
}

// redact strips userinfo from URLs echoed back by git
func redact(msg string) string {
	for _, scheme := range []string{"https://", "http://"} {
		start := strings.Index(msg, scheme)
		if start < 0 {
			continue
		}
		rest := msg[start+len(scheme):]
		at := strings.Index(rest, "@")
		slash := strings.Index(rest, "/")
		if at >= 0 && (slash < 0 || at < slash) {
			msg = msg[:start+len(scheme)] + "***" + rest[at:]
		}
	}
	return msg
}

func parseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}
	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}
	return result
}
