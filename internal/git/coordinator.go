package git

import (
	"fmt"
	"log/slog"
	"strings"
)

// Coordinator layers the orchestrator's branch and commit discipline over a
// raw git Context. It understands the artifact namespace: artifact-only
// changes never make a tree "dirty" for branch transitions, but they do count
// when deciding whether a commit is needed.
type Coordinator struct {
	ctx           *Context
	namespace     string // artifact namespace, relative to the repo root
	remote        string
	defaultBranch string
	logger        *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRemote sets the remote name (default "origin").
func WithRemote(remote string) CoordinatorOption {
	return func(c *Coordinator) { c.remote = remote }
}

// WithDefaultBranch pins the default branch instead of resolving it from the
// remote HEAD.
func WithDefaultBranch(branch string) CoordinatorOption {
	return func(c *Coordinator) { c.defaultBranch = branch }
}

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator for the repository behind ctx.
// namespace is the artifact directory relative to the repo root.
func NewCoordinator(ctx *Context, namespace string, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		ctx:       ctx,
		namespace: strings.TrimSuffix(namespace, "/"),
		remote:    "origin",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultBranch == "" {
		c.defaultBranch = ctx.DefaultBranch(c.remote)
	}
	return c
}

// Context exposes the underlying git context.
func (c *Coordinator) Context() *Context {
	return c.ctx
}

// DefaultBranch returns the resolved default branch.
func (c *Coordinator) DefaultBranch() string {
	return c.defaultBranch
}

// CurrentBranch returns the checked-out branch.
func (c *Coordinator) CurrentBranch() (string, error) {
	return c.ctx.CurrentBranch()
}

// inNamespace reports whether a porcelain status path is confined to the
// artifact namespace. Renames show as "old -> new"; both sides must match.
func (c *Coordinator) inNamespace(statusLine string) bool {
	if len(statusLine) < 4 {
		return false
	}
	for _, p := range strings.Split(statusLine[3:], " -> ") {
		p = strings.Trim(p, `"`)
		if p != c.namespace && !strings.HasPrefix(p, c.namespace+"/") {
			return false
		}
	}
	return true
}

// HasUncommittedChanges reports whether the working tree has uncommitted
// changes. When includeNamespace is false, changes confined to the artifact
// namespace are ignored — the "safe to switch branches" check. Commit-side
// checks pass true.
func (c *Coordinator) HasUncommittedChanges(includeNamespace bool) (bool, error) {
	lines, err := c.ctx.StatusPorcelain()
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if includeNamespace || !c.inNamespace(line) {
			return true, nil
		}
	}
	return false, nil
}

// EnsureOnDefaultBranch checks out the default branch. It fails with
// ErrDirtyWorkingTree when uncommitted changes exist outside the artifact
// namespace.
func (c *Coordinator) EnsureOnDefaultBranch() error {
	dirty, err := c.HasUncommittedChanges(false)
	if err != nil {
		return err
	}
	if dirty {
		return ErrDirtyWorkingTree
	}

	current, err := c.ctx.CurrentBranch()
	if err != nil {
		return err
	}
	if current == c.defaultBranch {
		return nil
	}
	return c.ctx.Checkout(c.defaultBranch)
}

// CreateOrReuseBranch switches to name if it exists (resuming prior work),
// otherwise creates it from base. Returns true when the branch was created.
func (c *Coordinator) CreateOrReuseBranch(name, base string) (bool, error) {
	if c.ctx.BranchExists(name) {
		c.logger.Debug("reusing existing branch", "branch", name)
		return false, c.ctx.Checkout(name)
	}
	if err := c.ctx.CreateBranch(name, base); err != nil {
		return false, err
	}
	c.logger.Debug("created branch", "branch", name, "base", base)
	return true, nil
}

// CreateUniqueBranch creates a branch named baseName, appending -1, -2, …
// until an unused name is found, and switches to it. Repeated runs therefore
// never silently reuse a stale sub-branch.
func (c *Coordinator) CreateUniqueBranch(baseName, base string) (string, error) {
	name := baseName
	for suffix := 1; c.ctx.BranchExists(name); suffix++ {
		name = fmt.Sprintf("%s-%d", baseName, suffix)
	}
	if err := c.ctx.CreateBranch(name, base); err != nil {
		return "", err
	}
	return name, nil
}

// CommitArtifacts stages only the artifact namespace and commits it.
// With nothing staged and allowEmpty false it reports (false, nil) rather
// than an error, so phase boundaries without artifact changes are cheap.
func (c *Coordinator) CommitArtifacts(message string, allowEmpty bool) (bool, error) {
	if err := c.ctx.Stage(c.namespace); err != nil {
		// Staging a namespace that does not exist yet is not a failure.
		if cmdErr, ok := err.(*CommandError); ok &&
			strings.Contains(cmdErr.Stderr, "did not match any files") {
			if !allowEmpty {
				return false, nil
			}
		} else {
			return false, err
		}
	}

	staged, err := c.ctx.HasStagedChanges()
	if err != nil {
		return false, err
	}
	if !staged && !allowEmpty {
		return false, nil
	}

	if err := c.ctx.Commit(message, allowEmpty); err != nil {
		if err == ErrNothingToCommit {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CommitAll stages the entire working tree and commits. "Nothing to commit"
// is reported as (false, nil), a distinguishable non-error result.
func (c *Coordinator) CommitAll(message string) (bool, error) {
	if err := c.ctx.StageAll(); err != nil {
		return false, err
	}
	if err := c.ctx.Commit(message, false); err != nil {
		if err == ErrNothingToCommit {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CommitsAhead counts commits on branch that base does not have.
func (c *Coordinator) CommitsAhead(base, branch string) (int, error) {
	return c.ctx.CommitsAhead(base, branch)
}
