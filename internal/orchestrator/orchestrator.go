// Package orchestrator drives a task through the full workflow: branch
// preparation, ordered phase execution with halt-stop semantics, and
// finalization (artifact upload, cleanup, change request). The orchestrator
// owns run lifecycle; phases own their own streams and commits.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/posthog/taskagent/internal/artifacts"
	"github.com/posthog/taskagent/internal/events"
	"github.com/posthog/taskagent/internal/git"
	"github.com/posthog/taskagent/internal/progress"
	"github.com/posthog/taskagent/internal/remote"
	"github.com/posthog/taskagent/internal/stage"
	"github.com/posthog/taskagent/internal/task"
)

// TaskFetcher resolves a task record by ID. *remote.Client implements it.
type TaskFetcher interface {
	FetchTask(ctx context.Context, id string) (*task.Task, error)
}

// ArtifactUploader pushes finished artifacts to the remote store.
// *remote.Client implements it.
type ArtifactUploader interface {
	UploadArtifacts(ctx context.Context, taskID, runID string, items []remote.ArtifactUpload) ([]remote.ArtifactUploadResult, error)
}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Store     *artifacts.Store
	Git       *git.Coordinator
	Tasks     TaskFetcher      // nil when tasks are supplied pre-fetched
	Uploader  ArtifactUploader // nil disables finalize uploads
	Reporter  *progress.Reporter
	Executor  *stage.Executor
	Phases    []stage.Phase // nil means stage.DefaultPhases()
	Publisher events.Publisher
	Logger    *slog.Logger

	// Cloud allows empty branch-start commits so every run leaves a marker.
	Cloud bool
	// CreateChangeRequest opens a PR during finalize when the run produced
	// commits.
	CreateChangeRequest bool
}

// Orchestrator runs tasks end to end.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Phases == nil {
		cfg.Phases = stage.DefaultPhases()
	}
	return &Orchestrator{cfg: cfg}
}

func (o *Orchestrator) emit(ev events.Event) {
	o.cfg.Reporter.RecordEvent(ev)
	o.cfg.Publisher.Publish(ev)
}

func (o *Orchestrator) status(taskID, phase, msg string) {
	o.emit(events.New(events.KindStatus, taskID, phase, events.StatusData{Message: msg}))
}

// ExecuteByID fetches the task record and runs it.
func (o *Orchestrator) ExecuteByID(ctx context.Context, taskID string) error {
	if o.cfg.Tasks == nil {
		return fmt.Errorf("no task fetcher configured, cannot resolve task %s", taskID)
	}
	t, err := o.cfg.Tasks.FetchTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("fetch task %s: %w", taskID, err)
	}
	return o.Execute(ctx, t)
}

// Execute runs one task through every phase. The returned error is the fatal
// one; halts and skips are not errors. A completed workflow closes the run
// out; a halted one leaves the run in progress, awaiting external input.
func (o *Orchestrator) Execute(ctx context.Context, t *task.Task) (err error) {
	halted := false
	o.cfg.Reporter.Start(ctx, t.ID)
	defer func() {
		switch {
		case err != nil:
			o.cfg.Reporter.Fail(ctx, err)
		case halted:
			o.cfg.Reporter.Flush(ctx)
		default:
			o.cfg.Reporter.Complete(ctx)
		}
	}()

	o.status(t.ID, "", fmt.Sprintf("run started for task %s", t.ID))

	if err := o.prepareBranch(t); err != nil {
		return err
	}
	o.cfg.Reporter.MarkRunning(ctx)

	stepResults := make(map[string]*stage.Result)
	for _, ph := range o.cfg.Phases {
		if ph.Kind == stage.KindFinalize {
			res, ferr := o.finalize(ctx, t, stepResults)
			if ferr != nil {
				return ferr
			}
			stepResults[ph.ID] = res
			continue
		}

		if err := o.prepareSubBranch(t, ph); err != nil {
			return err
		}

		res, rerr := o.cfg.Executor.Run(ctx, t, ph)
		if rerr != nil {
			return fmt.Errorf("phase %s: %w", ph.ID, rerr)
		}
		stepResults[ph.ID] = res

		if res.Halt {
			halted = true
			o.status(t.ID, ph.ID, fmt.Sprintf("workflow halted at phase %s", ph.ID))
			return nil
		}
	}

	o.status(t.ID, "", fmt.Sprintf("run finished for task %s", t.ID))
	return nil
}

// prepareBranch puts the repository on the task's branch. Resuming an
// existing task branch is the common case; a fresh branch starts from the
// default branch and gets a marker commit.
func (o *Orchestrator) prepareBranch(t *task.Task) error {
	dirty, err := o.cfg.Git.HasUncommittedChanges(false)
	if err != nil {
		return err
	}
	if dirty {
		return git.ErrDirtyWorkingTree
	}

	branch := git.TaskBranch(t.EffectiveSlug())
	current, err := o.cfg.Git.CurrentBranch()
	if err != nil {
		return err
	}
	if current == branch {
		return nil
	}

	if err := o.cfg.Git.EnsureOnDefaultBranch(); err != nil {
		return err
	}
	created, err := o.cfg.Git.CreateOrReuseBranch(branch, o.cfg.Git.DefaultBranch())
	if err != nil {
		return err
	}
	if created {
		o.emit(events.New(events.KindStatus, t.ID, "",
			events.StatusData{Message: fmt.Sprintf("created branch %s", branch)}))
		msg := fmt.Sprintf("task %s: start", t.ID)
		if _, err := o.cfg.Git.CommitArtifacts(msg, o.cfg.Cloud); err != nil {
			return err
		}
	}
	return nil
}

// prepareSubBranch creates the phase's role branch (planning or
// implementation) off the current branch, but only when the phase will
// actually run — a skipped phase must not burn a branch name.
func (o *Orchestrator) prepareSubBranch(t *task.Task, ph stage.Phase) error {
	if ph.BranchRole == "" || !o.cfg.Executor.WillRun(t, ph) {
		return nil
	}

	var baseName string
	switch ph.BranchRole {
	case stage.BranchRolePlanning:
		baseName = git.PlanningBranch(t.ID)
	case stage.BranchRoleImplementation:
		baseName = git.ImplementationBranch(t.ID)
	default:
		return nil
	}

	current, err := o.cfg.Git.CurrentBranch()
	if err != nil {
		return err
	}
	name, err := o.cfg.Git.CreateUniqueBranch(baseName, current)
	if err != nil {
		return err
	}
	o.status(t.ID, ph.ID, fmt.Sprintf("created branch %s", name))
	return nil
}

// finalize uploads artifacts to the remote store, clears them from the
// working tree, and opens a change request when the run produced commits.
func (o *Orchestrator) finalize(ctx context.Context, t *task.Task, stepResults map[string]*stage.Result) (*stage.Result, error) {
	o.status(t.ID, "finalize", "finalize started")
	output := map[string]any{}

	// The plan becomes the change request body; read it before cleanup.
	// A plan-less run (all phases pre-skipped or plan removed) falls back
	// to the build phase's textual output.
	planContent, _, err := o.cfg.Store.Read(t.ID, artifacts.NamePlan)
	if err != nil {
		return nil, err
	}
	body := string(planContent)
	if body == "" {
		if res, ok := stepResults["build"]; ok && res != nil {
			if text, ok := res.Output["output"].(string); ok {
				body = text
			}
		}
	}

	if err := o.uploadArtifacts(ctx, t); err != nil {
		return nil, err
	}

	url, err := o.openChangeRequest(ctx, t, body, buildProducedCommit(stepResults["build"]))
	if err != nil {
		return nil, err
	}
	if url != "" {
		output["pull_request_url"] = url
		o.cfg.Reporter.AttachOutput(ctx, map[string]any{"pull_request_url": url})
	}

	o.status(t.ID, "finalize", "finalize completed")
	return &stage.Result{Status: stage.StateCompleted, Output: output}, nil
}

// uploadArtifacts pushes the task's artifacts, then removes them locally and
// commits the removal so the reviewable branch carries no scratch files.
func (o *Orchestrator) uploadArtifacts(ctx context.Context, t *task.Task) error {
	arts, err := o.cfg.Store.Collect(t.ID)
	if err != nil {
		return err
	}
	if len(arts) == 0 {
		return nil
	}

	run := o.cfg.Reporter.Run()
	if o.cfg.Uploader != nil && run != nil {
		items := make([]remote.ArtifactUpload, 0, len(arts))
		for _, a := range arts {
			items = append(items, remote.ArtifactUpload{
				Name:        a.Name,
				Type:        string(a.Type),
				Content:     string(a.Content),
				ContentType: a.ContentType,
			})
		}
		if _, err := o.cfg.Uploader.UploadArtifacts(ctx, t.ID, run.ID, items); err != nil {
			return fmt.Errorf("upload artifacts: %w", err)
		}
		o.status(t.ID, "finalize", fmt.Sprintf("uploaded %d artifacts", len(items)))
	} else {
		o.cfg.Logger.Warn("no run store for artifact upload, removing local artifacts anyway", "task", t.ID)
	}

	if err := o.cfg.Store.DeleteAll(t.ID); err != nil {
		return err
	}
	msg := fmt.Sprintf("task %s: remove working artifacts", t.ID)
	if _, err := o.cfg.Git.CommitArtifacts(msg, false); err != nil {
		return err
	}
	return nil
}

// buildProducedCommit reports whether the build phase ran to completion and
// its boundary commit landed. A resumed run whose build was pre-skipped must
// not reopen a change request for work committed by an earlier run.
func buildProducedCommit(res *stage.Result) bool {
	if res == nil || res.Status != stage.StateCompleted {
		return false
	}
	committed, _ := res.Output["committed"].(bool)
	return committed
}

// openChangeRequest opens a PR for the current branch. It is permissive:
// already-opened runs, disabled config, commit-less builds, and branches with
// no commits all skip with a status line instead of failing the run. Returns
// the PR URL, or "" when skipped.
func (o *Orchestrator) openChangeRequest(ctx context.Context, t *task.Task, body string, buildCommitted bool) (string, error) {
	if !o.cfg.CreateChangeRequest {
		o.status(t.ID, "finalize", "change request disabled, skipping")
		return "", nil
	}

	if run := o.cfg.Reporter.Run(); run != nil {
		if existing, ok := run.Output["pull_request_url"].(string); ok && existing != "" {
			o.status(t.ID, "finalize", fmt.Sprintf("change request already open: %s", existing))
			return "", nil
		}
	}

	if !buildCommitted {
		o.cfg.Logger.Warn("build phase produced no new commit, skipping change request", "task", t.ID)
		o.status(t.ID, "finalize", "no new build commit, skipping change request")
		return "", nil
	}

	branch, err := o.cfg.Git.CurrentBranch()
	if err != nil {
		return "", err
	}
	ahead, err := o.cfg.Git.CommitsAhead(o.cfg.Git.DefaultBranch(), branch)
	if err != nil {
		return "", err
	}
	if ahead == 0 {
		o.cfg.Logger.Warn("branch has no commits over default, skipping change request",
			"task", t.ID, "branch", branch)
		o.status(t.ID, "finalize", "no commits to propose, skipping change request")
		return "", nil
	}

	title := t.Title
	if title == "" {
		title = fmt.Sprintf("Task %s", t.ID)
	}
	url, err := o.cfg.Git.OpenChangeRequest(git.ChangeRequest{
		Branch: branch,
		Title:  title,
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	o.status(t.ID, "finalize", fmt.Sprintf("change request opened: %s", url))
	return url, nil
}
