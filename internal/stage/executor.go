package stage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/posthog/taskagent/internal/agent"
	"github.com/posthog/taskagent/internal/artifacts"
	"github.com/posthog/taskagent/internal/events"
	"github.com/posthog/taskagent/internal/git"
	"github.com/posthog/taskagent/internal/progress"
	"github.com/posthog/taskagent/internal/prompt"
	"github.com/posthog/taskagent/internal/task"
	"github.com/posthog/taskagent/internal/todos"
)

// Config wires an Executor's collaborators.
type Config struct {
	Store     *artifacts.Store
	Git       *git.Coordinator
	Reporter  *progress.Reporter
	Todos     *todos.Tracker
	Prompts   *prompt.Builder
	Runner    agent.Runner
	Publisher events.Publisher
	Logger    *slog.Logger

	// Cloud enables automated-mode behavior: empty phase-boundary commits
	// and broader build permissions.
	Cloud    bool
	Model    string
	MaxTurns int
	// AgentEnv is gateway configuration passed to the agent process as
	// explicit KEY=VALUE pairs.
	AgentEnv []string
}

// Executor runs single workflow phases.
type Executor struct {
	cfg Config
}

// NewExecutor creates a phase executor.
func NewExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	return &Executor{cfg: cfg}
}

// WillRun reports whether a phase would open an agent stream, used by the
// orchestrator to avoid creating sub-branches for phases that will skip.
func (e *Executor) WillRun(t *task.Task, ph Phase) bool {
	if ph.ManualOnly || ph.Kind == KindFinalize {
		return false
	}
	if ph.Output != "" && e.cfg.Store.Exists(t.ID, ph.Output) {
		return false
	}
	if !e.prerequisiteMet(t.ID, ph) {
		return false
	}
	return true
}

func (e *Executor) prerequisiteMet(taskID string, ph Phase) bool {
	if ph.Requires == "" {
		return true
	}
	content, ok, err := e.cfg.Store.Read(taskID, ph.Requires)
	if err != nil || !ok {
		return false
	}
	if ph.Requires == artifacts.NameResearch {
		return ResearchAnswered(content)
	}
	return true
}

func (e *Executor) emit(ev events.Event) {
	e.cfg.Reporter.RecordEvent(ev)
	e.cfg.Publisher.Publish(ev)
}

func (e *Executor) status(taskID, phase, msg string) {
	e.emit(events.New(events.KindStatus, taskID, phase, events.StatusData{Message: msg}))
}

// Run executes one phase against a task. A skipped phase is a valid result;
// errors are reserved for stream, git, and storage failures. Every phase
// ends with an artifact-namespace boundary commit, whether it ran, skipped,
// or halted the workflow.
func (e *Executor) Run(ctx context.Context, t *task.Task, ph Phase) (*Result, error) {
	taskID := t.ID
	result, runErr := e.dispatch(ctx, t, ph)

	// Phase boundaries are commits, success or not. Empty commits only in
	// cloud mode, so local resumes don't litter history.
	msg := fmt.Sprintf("task %s: %s phase", taskID, ph.ID)
	committed, commitErr := e.cfg.Git.CommitArtifacts(msg, e.cfg.Cloud)
	if commitErr != nil {
		e.cfg.Logger.Error("phase boundary commit failed", "task", taskID, "phase", ph.ID, "error", commitErr)
		if runErr == nil {
			runErr = commitErr
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	result.Output["committed"] = committed
	if result.Status == StateCompleted {
		e.status(taskID, ph.ID, fmt.Sprintf("phase %s completed", ph.ID))
	}
	return result, nil
}

// dispatch decides whether the phase skips, halts, or opens an agent stream.
func (e *Executor) dispatch(ctx context.Context, t *task.Task, ph Phase) (*Result, error) {
	taskID := t.ID

	if ph.ManualOnly {
		e.status(taskID, ph.ID, fmt.Sprintf("phase %s requires manual action", ph.ID))
		return &Result{Status: StateSkipped, Halt: true, Output: map[string]any{}}, nil
	}

	if ph.Output != "" && e.cfg.Store.Exists(taskID, ph.Output) {
		e.status(taskID, ph.ID, fmt.Sprintf("phase %s skipped: %s already exists", ph.ID, ph.Output))
		return &Result{Status: StateSkipped, Output: map[string]any{"artifact": ph.Output}}, nil
	}

	if !e.prerequisiteMet(taskID, ph) {
		e.status(taskID, ph.ID, fmt.Sprintf("phase %s waiting on %s", ph.ID, ph.Requires))
		return &Result{Status: StateSkipped, Halt: true, Output: map[string]any{}}, nil
	}

	e.status(taskID, ph.ID, fmt.Sprintf("phase %s started", ph.ID))
	return e.execute(ctx, t, ph)
}

// execute opens the agent stream for a phase and drains it.
func (e *Executor) execute(ctx context.Context, t *task.Task, ph Phase) (*Result, error) {
	taskID := t.ID

	promptText, err := e.cfg.Prompts.BuildPhasePrompt(ph.ID, t)
	if err != nil {
		return nil, err
	}

	mode := agent.PermissionPlan
	if ph.Kind == KindBuild {
		mode = agent.PermissionAcceptEdits
		if e.cfg.Cloud {
			mode = agent.PermissionBypass
		}
	}

	stream, err := e.cfg.Runner.Start(ctx, agent.Request{
		Prompt:         promptText,
		PermissionMode: mode,
		WorkDir:        e.cfg.Git.Context().WorkDir(),
		Model:          e.cfg.Model,
		MaxTurns:       e.cfg.MaxTurns,
		Env:            e.cfg.AgentEnv,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var text strings.Builder
	for {
		msg, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			e.emit(events.New(events.KindError, taskID, ph.ID,
				events.ErrorData{Message: err.Error(), Fatal: true}))
			return nil, fmt.Errorf("phase %s: %w", ph.ID, err)
		}

		e.emit(events.New(events.KindRaw, taskID, ph.ID, events.RawData{Message: msg.Raw}))

		for _, ev := range transform(taskID, ph.ID, msg) {
			e.emit(ev)
		}

		list, err := e.cfg.Todos.HandleMessage(taskID, msg)
		if err != nil {
			e.cfg.Logger.Warn("todo snapshot failed", "task", taskID, "error", err)
		} else if list != nil {
			e.emit(events.New(events.KindTodo, taskID, ph.ID, list))
		}

		text.WriteString(msg.AssistantText())
	}

	output := text.String()
	if ph.Output != "" && strings.TrimSpace(output) != "" {
		content := []byte(output)
		if err := e.cfg.Store.Write(taskID, ph.Output, content); err != nil {
			return nil, err
		}
		e.emit(events.New(events.KindArtifact, taskID, ph.ID, events.ArtifactData{
			Name: ph.Output,
			Type: string(artifacts.InferType(ph.Output)),
			Size: len(content),
		}))
	}

	e.emit(events.New(events.KindDone, taskID, ph.ID, events.DoneData{Status: StateCompleted}))
	return &Result{Status: StateCompleted, Output: map[string]any{"output": output}}, nil
}
