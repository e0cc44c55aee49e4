package git

// Branch name construction. Names are fixed-format so the remote side can
// correlate branches with tasks:
//
//	posthog/task-<slug>                  top-level task branch
//	posthog/task-<id>-planning[-N]       planning sub-branch
//	posthog/task-<id>-implementation[-N] implementation sub-branch
const branchPrefix = "posthog/task-"

// TaskBranch returns the top-level branch for a task slug.
func TaskBranch(slug string) string {
	return branchPrefix + slug
}

// PlanningBranch returns the base name for a task's planning sub-branch.
func PlanningBranch(taskID string) string {
	return branchPrefix + taskID + "-planning"
}

// ImplementationBranch returns the base name for a task's implementation
// sub-branch.
func ImplementationBranch(taskID string) string {
	return branchPrefix + taskID + "-implementation"
}
