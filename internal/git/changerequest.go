package git

import (
	"strings"
)

// ChangeRequest describes a reviewable proposal to open against the default
// branch.
type ChangeRequest struct {
	Branch string
	Title  string
	Body   string
	Base   string // empty means the repository default branch
}

// OpenChangeRequest pushes the branch and opens a pull request via the gh
// CLI, returning its URL. Any non-zero exit is wrapped in a
// *ChangeRequestError carrying the failing command's output.
func (c *Coordinator) OpenChangeRequest(cr ChangeRequest) (string, error) {
	if err := c.ctx.Push(c.remote, cr.Branch); err != nil {
		return "", &ChangeRequestError{Branch: cr.Branch, Err: err}
	}

	base := cr.Base
	if base == "" {
		base = c.defaultBranch
	}

	out, err := c.ctx.runner.Run(c.ctx.workDir, "gh", "pr", "create",
		"--head", cr.Branch,
		"--base", base,
		"--title", cr.Title,
		"--body", cr.Body,
	)
	if err != nil {
		return "", &ChangeRequestError{Branch: cr.Branch, Err: err}
	}

	// gh prints the PR URL as the last output line.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	url := strings.TrimSpace(lines[len(lines)-1])
	c.logger.Info("change request opened", "branch", cr.Branch, "url", url)
	return url, nil
}
