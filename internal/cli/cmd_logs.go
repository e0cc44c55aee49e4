package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/posthog/taskagent/internal/events"
)

// newLogsCmd creates the logs command
func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <task-id>",
		Short: "Show a task's journaled events",
		Long: `Print events from the local journal for a task, oldest first.

The journal mirrors everything the run reported remotely, plus raw
provider messages, so it is the place to look when a run misbehaved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			limit, _ := cmd.Flags().GetInt("limit")
			kind, _ := cmd.Flags().GetString("kind")

			j, err := openJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.List(taskID, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if kind != "" && e.Kind != kind {
					continue
				}
				if e.Kind == string(events.KindRaw) && !verbose {
					continue
				}
				line := fmt.Sprintf("%s  %-20s %s", e.CreatedAt.Format("15:04:05"), e.Kind, e.Phase)
				if e.Data != "" {
					line += "  " + e.Data
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 200, "maximum number of events (0 for all)")
	cmd.Flags().String("kind", "", "only show events of this kind")
	return cmd
}
