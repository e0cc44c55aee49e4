// Package progress reports execution events to the remote run store.
//
// The reporter owns exactly one active run. Token events are batched; every
// other event is appended individually through a single-consumer queue that
// preserves RecordEvent order even though each append is a network call. A
// reporting failure is never allowed to abort orchestration: appends are
// retried with backoff and then dropped with a warning, and when the run
// store is unreachable at start the whole reporter degrades to no-ops.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posthog/taskagent/internal/events"
	"github.com/posthog/taskagent/internal/journal"
	"github.com/posthog/taskagent/internal/remote"
)

const (
	// tokenBatchSize triggers an immediate flush of buffered tokens.
	tokenBatchSize = 100
	// tokenFlushInterval flushes a partial token buffer.
	tokenFlushInterval = 1000 * time.Millisecond
	// appendAttempts bounds retries for one log append.
	appendAttempts = 3
	// appendBackoffBase is the first retry delay; it doubles per attempt.
	appendBackoffBase = 200 * time.Millisecond
	// appendTimeout bounds a single append attempt.
	appendTimeout = 15 * time.Second
)

// RunStore is the remote run surface the reporter needs. *remote.Client
// implements it; tests substitute fakes.
type RunStore interface {
	CreateRun(ctx context.Context, taskID, status string) (*remote.Run, error)
	UpdateRun(ctx context.Context, taskID, runID string, patch remote.RunPatch) (*remote.Run, error)
	AppendRunLog(ctx context.Context, taskID, runID string, entries []remote.LogEntry) error
}

// Reporter streams execution events to the run store.
type Reporter struct {
	store   RunStore
	journal *journal.Journal
	logger  *slog.Logger

	batchSize     int
	flushInterval time.Duration
	backoffBase   time.Duration

	mu         sync.Mutex
	cond       *sync.Cond
	run        *remote.Run
	taskID     string
	queue      []remote.LogEntry
	inFlight   bool
	terminal   bool
	stopped    bool
	tokenBuf   []string
	timer      *time.Timer
	timerArmed bool
	lastStatus string
	wg         sync.WaitGroup
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithJournal mirrors every event into a local journal.
func WithJournal(j *journal.Journal) Option {
	return func(r *Reporter) { r.journal = j }
}

// WithLogger sets the reporter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithBatching overrides the token batch size and flush interval.
func WithBatching(size int, interval time.Duration) Option {
	return func(r *Reporter) {
		r.batchSize = size
		r.flushInterval = interval
	}
}

// WithBackoffBase overrides the append retry base delay.
func WithBackoffBase(d time.Duration) Option {
	return func(r *Reporter) { r.backoffBase = d }
}

// New creates a reporter. store may be nil, in which case every operation is
// a local-only no-op.
func New(store RunStore, opts ...Option) *Reporter {
	r := &Reporter{
		store:         store,
		logger:        slog.Default(),
		batchSize:     tokenBatchSize,
		flushInterval: tokenFlushInterval,
		backoffBase:   appendBackoffBase,
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start creates the remote run. When the store is unavailable the reporter
// logs a warning and degrades: the run stays unset and every subsequent
// operation is a no-op rather than a failure.
func (r *Reporter) Start(ctx context.Context, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskID = taskID
	if r.store == nil {
		return
	}

	run, err := r.store.CreateRun(ctx, taskID, remote.RunStatusStarted)
	if err != nil {
		r.logger.Warn("run store unavailable, progress reporting disabled",
			"task", taskID, "error", err)
		return
	}
	r.run = run
	r.wg.Add(1)
	go r.worker()
}

// Run returns the active run, or nil when reporting is disabled.
func (r *Reporter) Run() *remote.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

// RecordEvent routes one event. Token events are buffered and flushed in
// batches; everything else is appended individually, in call order. Safe to
// call after Complete/Fail (no-op once the run handle is cleared).
func (r *Reporter) RecordEvent(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.journalLocked(ev)

	if r.run == nil || r.terminal {
		return
	}

	switch ev.Kind {
	case events.KindRaw:
		// Raw provider messages are debug-only; the journal has them.
		return
	case events.KindToken:
		if data, ok := ev.Data.(events.TokenData); ok {
			r.tokenBuf = append(r.tokenBuf, data.Text)
		}
		if len(r.tokenBuf) >= r.batchSize {
			r.flushTokensLocked()
		} else if !r.timerArmed {
			r.timerArmed = true
			r.timer = time.AfterFunc(r.flushInterval, r.flushTokens)
		}
		return
	case events.KindStatus:
		// Suppress a status line identical to the immediately preceding
		// one; phase retries otherwise spam duplicates.
		if data, ok := ev.Data.(events.StatusData); ok {
			if data.Message == r.lastStatus {
				return
			}
			r.lastStatus = data.Message
		}
	}

	r.enqueueLocked(toLogEntry(ev))
}

func (r *Reporter) journalLocked(ev events.Event) {
	if r.journal == nil {
		return
	}
	runID := ""
	if r.run != nil {
		runID = r.run.ID
	}
	if err := r.journal.Append(runID, ev); err != nil {
		r.logger.Debug("journal append failed", "error", err)
	}
}

func toLogEntry(ev events.Event) remote.LogEntry {
	payload, _ := json.Marshal(ev)
	return remote.LogEntry{
		ID:        uuid.NewString(),
		Type:      string(ev.Kind),
		Payload:   payload,
		Timestamp: ev.Time,
	}
}

// flushTokens is the timer callback.
func (r *Reporter) flushTokens() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushTokensLocked()
}

// flushTokensLocked drains the token buffer into one batched log entry.
func (r *Reporter) flushTokensLocked() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timerArmed = false
	if len(r.tokenBuf) == 0 {
		return
	}

	var text string
	for _, t := range r.tokenBuf {
		text += t
	}
	count := len(r.tokenBuf)
	r.tokenBuf = nil

	payload, _ := json.Marshal(map[string]any{"text": text, "count": count})
	r.enqueueLocked(remote.LogEntry{
		ID:        uuid.NewString(),
		Type:      string(events.KindToken),
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (r *Reporter) enqueueLocked(entry remote.LogEntry) {
	r.queue = append(r.queue, entry)
	r.cond.Broadcast()
}

// worker is the single consumer of the append queue. It issues log appends
// strictly one at a time, in enqueue order, so a slow or retried write never
// lets a later write overtake it.
func (r *Reporter) worker() {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.stopped {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.stopped {
			r.mu.Unlock()
			return
		}
		entry := r.queue[0]
		r.queue = r.queue[1:]
		r.inFlight = true
		taskID, runID := r.taskID, r.run.ID
		r.mu.Unlock()

		r.send(taskID, runID, entry)

		r.mu.Lock()
		r.inFlight = false
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// send appends one entry with bounded retries. A final failure is dropped
// with a warning; log loss is never escalated to a phase failure.
func (r *Reporter) send(taskID, runID string, entry remote.LogEntry) {
	delay := r.backoffBase
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := r.store.AppendRunLog(ctx, taskID, runID, []remote.LogEntry{entry})
		cancel()
		if err == nil {
			return
		}
		if attempt == appendAttempts {
			r.logger.Warn("dropping run log entry after retries",
				"task", taskID, "type", entry.Type, "attempts", attempt, "error", err)
			return
		}
		time.Sleep(delay)
		delay *= 2
	}
}

// Flush drains buffered tokens and pending appends without ending the run.
// Used when a workflow halts: the run stays in progress, awaiting input.
func (r *Reporter) Flush(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil || r.terminal {
		return
	}
	r.flushTokensLocked()
	for len(r.queue) > 0 || r.inFlight {
		r.cond.Wait()
	}
}

// Complete flushes buffered tokens, drains the queue, and marks the run
// completed. Terminal: later RecordEvent calls become no-ops.
func (r *Reporter) Complete(ctx context.Context) {
	r.finish(ctx, remote.RunStatusCompleted, "")
}

// Fail flushes and drains like Complete, then marks the run failed with the
// error message.
func (r *Reporter) Fail(ctx context.Context, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.finish(ctx, remote.RunStatusFailed, msg)
}

func (r *Reporter) finish(ctx context.Context, status, errMsg string) {
	r.mu.Lock()
	if r.run == nil || r.terminal {
		r.mu.Unlock()
		return
	}
	r.terminal = true
	r.flushTokensLocked()

	// Drain: wait for the worker to clear the queue and finish any
	// in-flight append.
	for len(r.queue) > 0 || r.inFlight {
		r.cond.Wait()
	}
	r.stopped = true
	r.cond.Broadcast()
	run := r.run
	taskID := r.taskID
	r.run = nil
	r.mu.Unlock()

	r.wg.Wait()

	patch := remote.RunPatch{Status: &status}
	if errMsg != "" {
		patch.ErrorMessage = &errMsg
	}
	if _, err := r.store.UpdateRun(ctx, taskID, run.ID, patch); err != nil {
		r.logger.Warn("failed to update run status", "task", taskID, "status", status, "error", err)
	}
}

// MarkRunning moves the run to in_progress once phase execution begins.
// No-op when reporting is disabled.
func (r *Reporter) MarkRunning(ctx context.Context) {
	r.mu.Lock()
	run := r.run
	taskID := r.taskID
	r.mu.Unlock()
	if run == nil {
		return
	}
	status := remote.RunStatusInProgress
	if _, err := r.store.UpdateRun(ctx, taskID, run.ID, remote.RunPatch{Status: &status}); err != nil {
		r.logger.Warn("failed to mark run in progress", "task", taskID, "error", err)
	}
}

// AttachOutput merges values into the run's output map (e.g. the change
// request URL). No-op when reporting is disabled.
func (r *Reporter) AttachOutput(ctx context.Context, output map[string]any) {
	r.mu.Lock()
	run := r.run
	taskID := r.taskID
	r.mu.Unlock()
	if run == nil {
		return
	}
	if _, err := r.store.UpdateRun(ctx, taskID, run.ID, remote.RunPatch{Output: output}); err != nil {
		r.logger.Warn("failed to attach run output", "task", taskID, "error", err)
	}
}
