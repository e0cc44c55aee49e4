package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external command in a directory and returns its
// trimmed stdout. Injected so tests can run without a real git binary.
type CommandRunner interface {
	Run(dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec, capturing both output streams.
type ExecRunner struct{}

// NewExecRunner returns the production command runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and returns trimmed stdout. On a non-zero exit it
// returns a *CommandError carrying the literal command line plus captured
// stderr and stdout.
func (r *ExecRunner) Run(dir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return strings.TrimSpace(stdout.String()), &CommandError{
			Command: name + " " + strings.Join(args, " "),
			Stdout:  strings.TrimSpace(stdout.String()),
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CommandError wraps a failed external command with everything needed to
// diagnose it: the command line and both captured streams.
type CommandError struct {
	Command string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Stdout != "" {
		msg += ": " + e.Stdout
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
