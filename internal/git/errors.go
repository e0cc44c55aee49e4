package git

import (
	"errors"
	"fmt"
)

// ErrNotGitRepo is returned when the working directory is not a repository.
var ErrNotGitRepo = errors.New("not a git repository")

// ErrDirtyWorkingTree blocks branch transitions while uncommitted changes
// exist outside the artifact namespace. Fatal; never retried.
var ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")

// ErrNothingToCommit reports an empty staging area. Callers that tolerate
// phase boundaries with no changes treat this as a non-error result.
var ErrNothingToCommit = errors.New("nothing to commit")

// ChangeRequestError wraps a failed change-request creation.
type ChangeRequestError struct {
	Branch string
	Err    error
}

func (e *ChangeRequestError) Error() string {
	return fmt.Sprintf("create change request for %s: %v", e.Branch, e.Err)
}

func (e *ChangeRequestError) Unwrap() error {
	return e.Err
}
