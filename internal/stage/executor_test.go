package stage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posthog/taskagent/internal/agent"
	"github.com/posthog/taskagent/internal/artifacts"
	"github.com/posthog/taskagent/internal/events"
	"github.com/posthog/taskagent/internal/git"
	"github.com/posthog/taskagent/internal/progress"
	"github.com/posthog/taskagent/internal/prompt"
	"github.com/posthog/taskagent/internal/task"
	"github.com/posthog/taskagent/internal/todos"
)

// fakeAgent replays a canned transcript for every phase.
type fakeAgent struct {
	transcript string
	startErr   error
	requests   []agent.Request
}

func (f *fakeAgent) Start(ctx context.Context, req agent.Request) (agent.Stream, error) {
	f.requests = append(f.requests, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return agent.NewReaderStream(strings.NewReader(f.transcript)), nil
}

// fakeGitRunner answers every git command successfully and pretends the
// index always has staged changes, so phase-boundary commits go through.
// Set nothingStaged to model a clean index instead.
type fakeGitRunner struct {
	calls         []string
	nothingStaged bool
}

func (f *fakeGitRunner) Run(dir, name string, args ...string) (string, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if strings.HasPrefix(call, "git diff --cached --quiet") && !f.nothingStaged {
		return "", &git.CommandError{Command: call, Err: errors.New("exit 1")}
	}
	return "", nil
}

func (f *fakeGitRunner) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

const answeredTranscript = `{"type":"system","subtype":"init"}
{"type":"assistant","message":{"content":[{"type":"text","text":"{\"questions\":[]}"}]}}
{"type":"result","result":"ok","usage":{"input_tokens":3,"output_tokens":5}}
`

type executorFixture struct {
	store    *artifacts.Store
	agent    *fakeAgent
	gitCalls *fakeGitRunner
	exec     *Executor
}

func newFixture(t *testing.T, transcript string) *executorFixture {
	t.Helper()
	dir := t.TempDir()
	runner := &fakeGitRunner{}
	gctx, err := git.NewContext(dir, git.WithRunner(runner))
	require.NoError(t, err)

	store := artifacts.NewStore(dir)
	fa := &fakeAgent{transcript: transcript}
	exec := NewExecutor(Config{
		Store:    store,
		Git:      git.NewCoordinator(gctx, artifacts.Namespace, git.WithDefaultBranch("main")),
		Reporter: progress.New(nil),
		Todos:    todos.NewTracker(store),
		Prompts:  prompt.NewBuilder(dir),
		Runner:   fa,
	})
	return &executorFixture{store: store, agent: fa, gitCalls: runner, exec: exec}
}

func researchPhase() Phase { return DefaultPhases()[0] }
func planPhase() Phase     { return DefaultPhases()[1] }
func buildPhase() Phase    { return DefaultPhases()[2] }

func testTask() *task.Task {
	return &task.Task{ID: "T1", Title: "Fix login", Description: "desc"}
}

func TestRunPersistsPhaseOutput(t *testing.T) {
	f := newFixture(t, answeredTranscript)

	res, err := f.exec.Run(context.Background(), testTask(), researchPhase())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.Status)
	assert.False(t, res.Halt)
	assert.Equal(t, `{"questions":[]}`, res.Output["output"])
	assert.Equal(t, true, res.Output["committed"])

	data, ok, err := f.store.Read("T1", artifacts.NameResearch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"questions":[]}`, string(data))

	// Every phase boundary is a commit.
	assert.True(t, f.gitCalls.called("git commit -m task T1: research phase"))
	require.Len(t, f.agent.requests, 1)
	assert.Equal(t, agent.PermissionPlan, f.agent.requests[0].PermissionMode)
}

func TestRunSkipsWhenOutputExists(t *testing.T) {
	f := newFixture(t, answeredTranscript)
	require.NoError(t, f.store.Write("T1", artifacts.NameResearch, []byte(`{"questions":[]}`)))

	res, err := f.exec.Run(context.Background(), testTask(), researchPhase())
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, res.Status)
	assert.False(t, res.Halt)
	assert.Empty(t, f.agent.requests)
	// A skipped phase still closes with its boundary commit.
	assert.Equal(t, true, res.Output["committed"])
	assert.True(t, f.gitCalls.called("git commit -m task T1: research phase"))
}

func TestRunHaltsOnMissingPrerequisite(t *testing.T) {
	f := newFixture(t, answeredTranscript)

	res, err := f.exec.Run(context.Background(), testTask(), planPhase())
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, res.Status)
	assert.True(t, res.Halt)
	assert.Empty(t, f.agent.requests)
	assert.True(t, f.gitCalls.called("git commit -m task T1: plan phase"))
}

func TestRunHaltsOnUnansweredResearch(t *testing.T) {
	f := newFixture(t, answeredTranscript)
	require.NoError(t, f.store.Write("T1", artifacts.NameResearch,
		[]byte(`{"questions":[{"question":"which DB?","answer":null}]}`)))

	res, err := f.exec.Run(context.Background(), testTask(), planPhase())
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, res.Status)
	assert.True(t, res.Halt)
	assert.Empty(t, f.agent.requests)
}

func TestRunManualOnlyHalts(t *testing.T) {
	f := newFixture(t, answeredTranscript)

	ph := researchPhase()
	ph.ManualOnly = true
	res, err := f.exec.Run(context.Background(), testTask(), ph)
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, res.Status)
	assert.True(t, res.Halt)
	assert.Empty(t, f.agent.requests)
	assert.True(t, f.gitCalls.called("git commit -m task T1: research phase"))
}

// In automated mode a skipped phase leaves an empty marker commit even when
// the artifact namespace is untouched.
func TestRunCloudSkipCommitsEmptyBoundary(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeGitRunner{nothingStaged: true}
	gctx, err := git.NewContext(dir, git.WithRunner(runner))
	require.NoError(t, err)

	store := artifacts.NewStore(dir)
	exec := NewExecutor(Config{
		Store:    store,
		Git:      git.NewCoordinator(gctx, artifacts.Namespace, git.WithDefaultBranch("main")),
		Reporter: progress.New(nil),
		Todos:    todos.NewTracker(store),
		Prompts:  prompt.NewBuilder(dir),
		Runner:   &fakeAgent{transcript: answeredTranscript},
		Cloud:    true,
	})
	require.NoError(t, store.Write("T1", artifacts.NameResearch, []byte(`{"questions":[]}`)))

	res, err := exec.Run(context.Background(), testTask(), researchPhase())
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, res.Status)
	assert.Equal(t, true, res.Output["committed"])
	assert.True(t, runner.called("git commit -m task T1: research phase --allow-empty"))
}

func TestRunBuildUsesEditPermissions(t *testing.T) {
	f := newFixture(t, answeredTranscript)
	require.NoError(t, f.store.Write("T1", artifacts.NamePlan, []byte("# Plan")))

	_, err := f.exec.Run(context.Background(), testTask(), buildPhase())
	require.NoError(t, err)

	require.Len(t, f.agent.requests, 1)
	assert.Equal(t, agent.PermissionAcceptEdits, f.agent.requests[0].PermissionMode)
}

func TestRunStreamStartFailure(t *testing.T) {
	f := newFixture(t, answeredTranscript)
	f.agent.startErr = &agent.StreamError{Err: errors.New("binary not found")}

	_, err := f.exec.Run(context.Background(), testTask(), researchPhase())
	require.Error(t, err)

	var streamErr *agent.StreamError
	assert.ErrorAs(t, err, &streamErr)
	// The failed phase still gets its boundary commit.
	assert.True(t, f.gitCalls.called("git commit -m task T1: research phase"))
}

func TestRunRecordsTodoSnapshots(t *testing.T) {
	transcript := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tu1","name":"TodoWrite","input":{"todos":[{"content":"step 1","status":"in_progress"}]}}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"working"}]}}
{"type":"result","result":"ok"}
`
	f := newFixture(t, transcript)

	_, err := f.exec.Run(context.Background(), testTask(), researchPhase())
	require.NoError(t, err)

	assert.True(t, f.store.Exists("T1", artifacts.NameTodos))
}

func TestWillRun(t *testing.T) {
	f := newFixture(t, answeredTranscript)

	assert.True(t, f.exec.WillRun(testTask(), researchPhase()))
	assert.False(t, f.exec.WillRun(testTask(), planPhase())) // prerequisite missing

	require.NoError(t, f.store.Write("T1", artifacts.NameResearch, []byte(`{"questions":[]}`)))
	assert.False(t, f.exec.WillRun(testTask(), researchPhase())) // output exists
	assert.True(t, f.exec.WillRun(testTask(), planPhase()))

	finalize := DefaultPhases()[3]
	assert.False(t, f.exec.WillRun(testTask(), finalize))
}

func TestRunPublishesEvents(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeGitRunner{}
	gctx, err := git.NewContext(dir, git.WithRunner(runner))
	require.NoError(t, err)

	store := artifacts.NewStore(dir)
	pub := events.NewMemoryPublisher(256)
	defer pub.Close()
	sub := pub.Subscribe("T1")

	exec := NewExecutor(Config{
		Store:     store,
		Git:       git.NewCoordinator(gctx, artifacts.Namespace, git.WithDefaultBranch("main")),
		Reporter:  progress.New(nil),
		Todos:     todos.NewTracker(store),
		Prompts:   prompt.NewBuilder(dir),
		Runner:    &fakeAgent{transcript: answeredTranscript},
		Publisher: pub,
	})

	_, err = exec.Run(context.Background(), testTask(), researchPhase())
	require.NoError(t, err)

	var kinds []events.Kind
	for {
		select {
		case ev := <-sub:
			kinds = append(kinds, ev.Kind)
			continue
		default:
		}
		break
	}
	assert.Contains(t, kinds, events.KindStatus)
	assert.Contains(t, kinds, events.KindRaw)
	assert.Contains(t, kinds, events.KindMetric)
	assert.Contains(t, kinds, events.KindArtifact)
	assert.Contains(t, kinds, events.KindDone)
}
