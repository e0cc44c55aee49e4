package agent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// PermissionMode controls how much the agent may touch. Research and
// planning phases run read-only; build runs with edits enabled.
type PermissionMode string

const (
	PermissionPlan        PermissionMode = "plan"
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionBypass      PermissionMode = "bypassPermissions"
)

// Request describes one agent invocation. Env carries gateway configuration
// explicitly instead of mutating the process environment.
type Request struct {
	Prompt         string
	SystemPrompt   string
	PermissionMode PermissionMode
	WorkDir        string
	Model          string
	MaxTurns       int
	Env            []string // KEY=VALUE pairs appended to the child env
}

// Stream is a lazy, finite, non-restartable sequence of provider messages.
// Next returns io.EOF after the final message.
type Stream interface {
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// Runner opens agent streams. The production implementation shells out to
// the claude CLI; tests substitute fakes.
type Runner interface {
	Start(ctx context.Context, req Request) (Stream, error)
}

// StreamError is a fatal failure of the agent stream. It fails the phase and
// the whole run.
type StreamError struct {
	Stderr string
	Err    error
}

func (e *StreamError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("agent stream failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("agent stream failed: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// CLIRunner launches the claude CLI in headless stream-json mode.
type CLIRunner struct {
	path   string
	logger *slog.Logger
}

// CLIOption configures a CLIRunner.
type CLIOption func(*CLIRunner)

// WithPath sets the agent binary path (default "claude").
func WithPath(path string) CLIOption {
	return func(r *CLIRunner) { r.path = path }
}

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) CLIOption {
	return func(r *CLIRunner) { r.logger = l }
}

// NewCLIRunner creates a CLI-backed runner.
func NewCLIRunner(opts ...CLIOption) *CLIRunner {
	r := &CLIRunner{path: "claude", logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the agent process and returns a pull-based stream over its
// stream-json output.
func (r *CLIRunner) Start(ctx context.Context, req Request) (Stream, error) {
	args := []string{
		"-p", req.Prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", string(req.PermissionMode))
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}

	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(os.Environ(), req.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &StreamError{Err: fmt.Errorf("start %s: %w", r.path, err)}
	}
	r.logger.Debug("agent stream started", "workdir", req.WorkDir, "mode", req.PermissionMode)

	s := &cliStream{
		cmd:    cmd,
		stderr: &stderr,
		lines:  make(chan []byte, 64),
	}
	s.group, _ = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		defer close(s.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			s.lines <- line
		}
		return scanner.Err()
	})
	return s, nil
}

type cliStream struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	lines  chan []byte
	group  *errgroup.Group
	done   bool
}

// Next blocks until the next message, ctx cancellation, or stream end.
func (s *cliStream) Next(ctx context.Context) (*Message, error) {
	if s.done {
		return nil, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			s.done = true
			return nil, s.finish()
		}
		return ParseMessage(line)
	}
}

// finish reaps the process and folds its exit status into the stream result.
func (s *cliStream) finish() error {
	scanErr := s.group.Wait()
	waitErr := s.cmd.Wait()
	if waitErr != nil {
		return &StreamError{Stderr: s.stderr.String(), Err: waitErr}
	}
	if scanErr != nil {
		return &StreamError{Stderr: s.stderr.String(), Err: scanErr}
	}
	return io.EOF
}

// Close terminates the agent process if it is still running. The line pump
// may be parked on a send into a full buffer when the consumer stopped early
// (parse error, cancellation), so the channel is drained until the pump
// closes it; only then is waiting on the pump safe.
func (s *cliStream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	go func() {
		for range s.lines {
		}
	}()
	_ = s.cmd.Wait()
	_ = s.group.Wait()
	return nil
}
