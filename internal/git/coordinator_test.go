package git

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner scripts command results and records every call.
type fakeRunner struct {
	calls   []string
	handler func(call string) (string, error)
}

func (f *fakeRunner) Run(dir, name string, args ...string) (string, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if f.handler != nil {
		return f.handler(call)
	}
	return "", nil
}

func (f *fakeRunner) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func newTestCoordinator(t *testing.T, handler func(string) (string, error)) (*Coordinator, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{handler: handler}
	ctx, err := NewContext(t.TempDir(), WithRunner(runner))
	require.NoError(t, err)
	c := NewCoordinator(ctx, ".posthog", WithDefaultBranch("main"))
	runner.calls = nil
	return c, runner
}

func TestBranchNames(t *testing.T) {
	assert.Equal(t, "posthog/task-fix-login", TaskBranch("fix-login"))
	assert.Equal(t, "posthog/task-T1-planning", PlanningBranch("T1"))
	assert.Equal(t, "posthog/task-T1-implementation", ImplementationBranch("T1"))
}

func TestHasUncommittedChangesIgnoresNamespace(t *testing.T) {
	c, _ := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git status --porcelain") {
			return "?? .posthog/task-1/plan.md\n M .posthog/task-1/todos.json", nil
		}
		return "", nil
	})

	dirty, err := c.HasUncommittedChanges(false)
	require.NoError(t, err)
	assert.False(t, dirty)

	dirty, err = c.HasUncommittedChanges(true)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestHasUncommittedChangesRenameLeavingNamespace(t *testing.T) {
	c, _ := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git status --porcelain") {
			return "R  .posthog/task-1/plan.md -> docs/plan.md", nil
		}
		return "", nil
	})

	// One side of the rename escapes the namespace, so the tree is dirty.
	dirty, err := c.HasUncommittedChanges(false)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestEnsureOnDefaultBranchDirty(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git status --porcelain") {
			return " M main.go", nil
		}
		return "", nil
	})

	err := c.EnsureOnDefaultBranch()
	assert.ErrorIs(t, err, ErrDirtyWorkingTree)
	assert.False(t, runner.called("git checkout"))
}

func TestEnsureOnDefaultBranchAlreadyThere(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git rev-parse --abbrev-ref HEAD") {
			return "main", nil
		}
		return "", nil
	})

	require.NoError(t, c.EnsureOnDefaultBranch())
	assert.False(t, runner.called("git checkout"))
}

func TestCreateOrReuseBranch(t *testing.T) {
	existing := map[string]bool{"posthog/task-fix": true}
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git rev-parse --verify --quiet refs/heads/") {
			name := strings.TrimPrefix(call, "git rev-parse --verify --quiet refs/heads/")
			if existing[name] {
				return "abc123", nil
			}
			return "", &CommandError{Command: call, Err: assert.AnError}
		}
		return "", nil
	})

	created, err := c.CreateOrReuseBranch("posthog/task-fix", "main")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, runner.called("git checkout posthog/task-fix"))

	created, err = c.CreateOrReuseBranch("posthog/task-new", "main")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, runner.called("git checkout -b posthog/task-new main"))
}

func TestCreateUniqueBranchAppendsSuffix(t *testing.T) {
	existing := map[string]bool{
		"posthog/task-T1-planning":   true,
		"posthog/task-T1-planning-1": true,
	}
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git rev-parse --verify --quiet refs/heads/") {
			name := strings.TrimPrefix(call, "git rev-parse --verify --quiet refs/heads/")
			if existing[name] {
				return "abc123", nil
			}
			return "", &CommandError{Command: call, Err: assert.AnError}
		}
		return "", nil
	})

	name, err := c.CreateUniqueBranch("posthog/task-T1-planning", "posthog/task-t1")
	require.NoError(t, err)
	assert.Equal(t, "posthog/task-T1-planning-2", name)
	assert.True(t, runner.called("git checkout -b posthog/task-T1-planning-2"))
}

func TestCommitArtifactsNothingStaged(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		// diff --cached --quiet exiting 0 means nothing staged.
		return "", nil
	})

	committed, err := c.CommitArtifacts("task T1: research phase", false)
	require.NoError(t, err)
	assert.False(t, committed)
	assert.False(t, runner.called("git commit"))
}

func TestCommitArtifactsMissingNamespace(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git add") {
			return "", &CommandError{
				Command: call,
				Stderr:  "fatal: pathspec '.posthog' did not match any files",
				Err:     assert.AnError,
			}
		}
		return "", nil
	})

	committed, err := c.CommitArtifacts("task T1: research phase", false)
	require.NoError(t, err)
	assert.False(t, committed)
	assert.False(t, runner.called("git commit"))
}

func TestCommitArtifactsCommits(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git diff --cached --quiet") {
			// Exit 1 with no stderr: staged changes present.
			return "", &CommandError{Command: call, Err: assert.AnError}
		}
		return "", nil
	})

	committed, err := c.CommitArtifacts("task T1: plan phase", false)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.True(t, runner.called("git add -- .posthog"))
	assert.True(t, runner.called(`git commit -m task T1: plan phase`))
}

func TestCommitArtifactsAllowEmpty(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		return "", nil
	})

	committed, err := c.CommitArtifacts("task T1: research phase", true)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.True(t, runner.called("git commit -m task T1: research phase --allow-empty"))
}

func TestCommitAllNothingToCommit(t *testing.T) {
	c, _ := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git commit") {
			return "On branch main\nnothing to commit, working tree clean",
				&CommandError{Command: call, Err: assert.AnError}
		}
		return "", nil
	})

	committed, err := c.CommitAll("task T1: build phase")
	require.NoError(t, err)
	assert.False(t, committed)
}

func TestOpenChangeRequest(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "gh pr create") {
			return "Creating pull request...\nhttps://github.com/acme/repo/pull/42", nil
		}
		return "", nil
	})

	url, err := c.OpenChangeRequest(ChangeRequest{
		Branch: "posthog/task-fix",
		Title:  "Fix login",
		Body:   "plan body",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/repo/pull/42", url)
	assert.True(t, runner.called("git push -u origin posthog/task-fix"))
	assert.True(t, runner.called("gh pr create --head posthog/task-fix --base main"))
}

func TestOpenChangeRequestPushFails(t *testing.T) {
	c, runner := newTestCoordinator(t, func(call string) (string, error) {
		if strings.HasPrefix(call, "git push") {
			return "", &CommandError{Command: call, Stderr: "remote unreachable", Err: assert.AnError}
		}
		return "", nil
	})

	_, err := c.OpenChangeRequest(ChangeRequest{Branch: "posthog/task-fix", Title: "t"})
	var crErr *ChangeRequestError
	require.ErrorAs(t, err, &crErr)
	assert.Equal(t, "posthog/task-fix", crErr.Branch)
	assert.False(t, runner.called("gh pr create"))
}
