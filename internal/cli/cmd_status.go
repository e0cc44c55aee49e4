package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/posthog/taskagent/internal/artifacts"
	"github.com/posthog/taskagent/internal/stage"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show per-phase progress for a task",
		Long: `Show the workflow state of a task, derived from its artifacts.

A phase is completed when its output artifact exists, pending when its
prerequisite is met, and blocked otherwise. This is the same check the
runner uses to decide what to skip on re-run, so status always agrees
with what "run" would do next.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			store := artifacts.NewStore(repoPath)

			fmt.Printf("Task %s\n", taskID)
			for _, ph := range stage.DefaultPhases() {
				if ph.Kind == stage.KindFinalize {
					continue
				}
				fmt.Printf("  %-10s %s\n", ph.ID, phaseState(store, taskID, ph))
			}

			names, err := store.List(taskID)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				fmt.Println("Artifacts:")
				for _, name := range names {
					fmt.Printf("  %s\n", name)
				}
			}
			return nil
		},
	}
}

func phaseState(store *artifacts.Store, taskID string, ph stage.Phase) string {
	done := ph.Output != "" && store.Exists(taskID, ph.Output)
	if !done {
		if ph.Requires != "" {
			content, ok, err := store.Read(taskID, ph.Requires)
			if err != nil || !ok {
				return mark(stage.StateNotStarted, "")
			}
			if ph.Requires == artifacts.NameResearch && !stage.ResearchAnswered(content) {
				return mark(stage.StateHalted, "research has unanswered questions")
			}
		}
		return mark(stage.StateNotStarted, "")
	}

	if ph.Output == artifacts.NameResearch {
		content, ok, _ := store.Read(taskID, ph.Output)
		if ok && !stage.ResearchAnswered(content) {
			return mark(stage.StateHalted, "awaiting answers")
		}
	}
	return mark(stage.StateCompleted, "")
}

func mark(state, note string) string {
	symbol := map[string]string{
		stage.StateCompleted:  "✓",
		stage.StateHalted:     "⏸",
		stage.StateNotStarted: "·",
	}[state]
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		symbol = ""
	}
	out := state
	if symbol != "" {
		out = symbol + " " + state
	}
	if note != "" {
		out += " (" + note + ")"
	}
	return out
}
