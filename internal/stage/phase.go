// Package stage executes one workflow phase: it builds the phase prompt,
// drains the agent stream into events, extracts the phase output, and
// records the phase boundary as a commit.
package stage

import (
	"encoding/json"

	"github.com/posthog/taskagent/internal/artifacts"
	"github.com/tidwall/gjson"
)

// Kind is the phase category.
type Kind string

const (
	KindResearch Kind = "research"
	KindPlan     Kind = "plan"
	KindBuild    Kind = "build"
	KindFinalize Kind = "finalize"
)

// Branch roles, used by the orchestrator to place a phase's output on its
// own sub-branch.
const (
	BranchRolePlanning       = "planning"
	BranchRoleImplementation = "implementation"
)

// Phase is one ordered step of the workflow. The list is static: no cycles,
// no runtime reordering.
type Phase struct {
	ID         string
	Kind       Kind
	ManualOnly bool
	// Output is the artifact representing this phase's final output.
	// If it already exists the phase is skipped — this is what makes
	// re-running a task safe after a crash.
	Output string
	// Requires is a prerequisite artifact. When absent the phase skips
	// with halt=true: a control-flow pause, not an error.
	Requires string
	// BranchRole selects the sub-branch the phase runs on, if any.
	BranchRole string
}

// Execution states of a phase.
const (
	StateNotStarted = "not-started"
	StateRunning    = "running"
	StateCompleted  = "completed"
	StateSkipped    = "skipped"
	StateHalted     = "halted"
)

// Result is the outcome of running one phase. Halt stops phase iteration
// without failing the run.
type Result struct {
	Status string // completed or skipped
	Halt   bool
	Output map[string]any
}

// DefaultPhases returns the workflow's fixed phase order.
func DefaultPhases() []Phase {
	return []Phase{
		{
			ID:     "research",
			Kind:   KindResearch,
			Output: artifacts.NameResearch,
		},
		{
			ID:         "plan",
			Kind:       KindPlan,
			Output:     artifacts.NamePlan,
			Requires:   artifacts.NameResearch,
			BranchRole: BranchRolePlanning,
		},
		{
			ID:         "build",
			Kind:       KindBuild,
			Output:     "output_build.md",
			Requires:   artifacts.NamePlan,
			BranchRole: BranchRoleImplementation,
		},
		{
			ID:   "finalize",
			Kind: KindFinalize,
		},
	}
}

// ResearchAnswered reports whether a research document has every question
// answered. A document with no questions counts as answered.
func ResearchAnswered(content []byte) bool {
	if !json.Valid(content) {
		return false
	}
	for _, q := range gjson.GetBytes(content, "questions").Array() {
		answer := q.Get("answer")
		if !answer.Exists() || answer.Type == gjson.Null || answer.String() == "" {
			return false
		}
	}
	return true
}
