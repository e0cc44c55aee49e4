// Package git wraps the git and gh binaries for the orchestrator's branch
// and commit discipline. The coordinator never retries a failed git command:
// a retry could mask repository corruption, so failures surface to the caller
// with the literal command and its captured output.
package git

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Context runs git commands against one working directory. Operations are
// synchronous relative to each other; the orchestrator is the single writer.
type Context struct {
	workDir string
	runner  CommandRunner
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithRunner injects a command runner, primarily for tests.
func WithRunner(r CommandRunner) ContextOption {
	return func(c *Context) { c.runner = r }
}

// NewContext creates a git context for the repository at workDir and
// validates that it actually is one.
func NewContext(workDir string, opts ...ContextOption) (*Context, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	c := &Context{workDir: abs, runner: NewExecRunner()}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := c.run("rev-parse", "--git-dir"); err != nil {
		return nil, ErrNotGitRepo
	}
	return c, nil
}

// WorkDir returns the repository working directory.
func (c *Context) WorkDir() string {
	return c.workDir
}

func (c *Context) run(args ...string) (string, error) {
	return c.runner.Run(c.workDir, "git", args...)
}

// CurrentBranch returns the checked-out branch name.
func (c *Context) CurrentBranch() (string, error) {
	return c.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a local branch exists.
func (c *Context) BranchExists(name string) bool {
	_, err := c.run("rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// Checkout switches to the given ref.
func (c *Context) Checkout(ref string) error {
	_, err := c.run("checkout", ref)
	return err
}

// CreateBranch creates a branch at the given base and switches to it.
func (c *Context) CreateBranch(name, base string) error {
	_, err := c.run("checkout", "-b", name, base)
	return err
}

// StatusPorcelain returns `git status --porcelain` lines, one per change.
func (c *Context) StatusPorcelain() ([]string, error) {
	out, err := c.run("status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Stage adds the given paths to the index.
func (c *Context) Stage(paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := c.run(args...)
	return err
}

// StageAll stages the entire working tree.
func (c *Context) StageAll() error {
	_, err := c.run("add", "-A")
	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
func (c *Context) HasStagedChanges() (bool, error) {
	// diff --cached --quiet exits 1 when there are staged changes.
	_, err := c.run("diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	if cmdErr, ok := err.(*CommandError); ok && cmdErr.Stderr == "" {
		return true, nil
	}
	return false, err
}

// Commit commits the index with the given message. Returns ErrNothingToCommit
// when the index is empty and allowEmpty is false.
func (c *Context) Commit(message string, allowEmpty bool) error {
	args := []string{"commit", "-m", message}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	out, err := c.run(args...)
	if err != nil {
		if strings.Contains(out, "nothing to commit") ||
			strings.Contains(err.Error(), "nothing to commit") {
			return ErrNothingToCommit
		}
		return err
	}
	return nil
}

// HeadCommit returns the current HEAD SHA.
func (c *Context) HeadCommit() (string, error) {
	return c.run("rev-parse", "HEAD")
}

// CommitsAhead counts commits reachable from branch but not from base.
func (c *Context) CommitsAhead(base, branch string) (int, error) {
	out, err := c.run("rev-list", "--count", base+".."+branch)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(out, "%d", &n); err != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", out, err)
	}
	return n, nil
}

// Push pushes a branch to the remote with upstream tracking.
func (c *Context) Push(remote, branch string) error {
	_, err := c.run("push", "-u", remote, branch)
	return err
}

// DefaultBranch resolves the remote HEAD branch, falling back to main, then
// master, when the remote has no HEAD ref configured.
func (c *Context) DefaultBranch(remote string) string {
	if out, err := c.run("symbolic-ref", "refs/remotes/"+remote+"/HEAD"); err == nil {
		return strings.TrimPrefix(out, "refs/remotes/"+remote+"/")
	}
	if c.BranchExists("main") {
		return "main"
	}
	return "master"
}
