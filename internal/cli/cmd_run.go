package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/posthog/taskagent/internal/events"
	"github.com/posthog/taskagent/internal/task"
	"github.com/posthog/taskagent/internal/todos"
)

// newRunCmd creates the run command
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task-id>",
		Short: "Execute a task",
		Long: `Execute a task through its workflow phases.

Phases run in order: research, plan, build, finalize. Every phase
boundary is a commit, and a phase whose output artifact already exists
is skipped, so re-running the same task resumes where it left off.

With an API configured the task record is fetched remotely; otherwise
supply --title (and optionally --description) to run locally.

Example:
  taskagent run TASK-123
  taskagent run TASK-123 --cloud
  taskagent run local-1 --title "Fix login redirect"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			ov := runtimeOverrides{}
			if cmd.Flags().Changed("cloud") {
				v, _ := cmd.Flags().GetBool("cloud")
				ov.cloud = &v
			}
			if cmd.Flags().Changed("create-pr") {
				v, _ := cmd.Flags().GetBool("create-pr")
				ov.createPR = &v
			}

			rt, err := newRuntime(ov)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "\ninterrupt received, stopping after current phase output")
				cancel()
			}()

			sub := rt.publisher.Subscribe(id)
			done := make(chan struct{})
			go printEvents(sub, done)
			defer func() {
				rt.publisher.Unsubscribe(id, sub)
				<-done
			}()

			title, _ := cmd.Flags().GetString("title")
			if title != "" {
				desc, _ := cmd.Flags().GetString("description")
				t := &task.Task{ID: id, Title: title, Description: desc}
				return rt.orch.Execute(ctx, t)
			}
			return rt.orch.ExecuteByID(ctx, id)
		},
	}

	cmd.Flags().Bool("cloud", false, "automated mode: empty checkpoint commits, bypass agent permissions")
	cmd.Flags().Bool("create-pr", false, "open a change request during finalize")
	cmd.Flags().String("title", "", "run a local task with this title instead of fetching it")
	cmd.Flags().String("description", "", "description for a local task")
	return cmd
}

// printEvents renders the live event stream to stdout. Token deltas stream
// inline only on a TTY; status lines print everywhere unless --quiet.
func printEvents(ch <-chan events.Event, done chan<- struct{}) {
	defer close(done)
	tty := isatty.IsTerminal(os.Stdout.Fd())
	streaming := false
	for ev := range ch {
		switch ev.Kind {
		case events.KindToken:
			if tty && !quiet {
				if data, ok := ev.Data.(events.TokenData); ok {
					fmt.Print(data.Text)
					streaming = true
				}
			}
		case events.KindStatus:
			if quiet {
				continue
			}
			if streaming {
				fmt.Println()
				streaming = false
			}
			if data, ok := ev.Data.(events.StatusData); ok {
				fmt.Printf("[%s] %s\n", ev.Phase, data.Message)
			}
		case events.KindError:
			if streaming {
				fmt.Println()
				streaming = false
			}
			if data, ok := ev.Data.(events.ErrorData); ok {
				fmt.Fprintf(os.Stderr, "error: %s\n", data.Message)
			}
		case events.KindArtifact:
			if quiet {
				continue
			}
			if data, ok := ev.Data.(events.ArtifactData); ok {
				fmt.Printf("[%s] wrote %s (%d bytes)\n", ev.Phase, data.Name, data.Size)
			}
		case events.KindTodo:
			if quiet || !tty {
				continue
			}
			if list, ok := ev.Data.(*todos.List); ok {
				if streaming {
					fmt.Println()
					streaming = false
				}
				m := list.Metadata
				fmt.Printf("[%s] todos: %d/%d done, %d in progress\n",
					ev.Phase, m.Completed, m.Total, m.InProgress)
			}
		}
	}
	if streaming {
		fmt.Println()
	}
}
