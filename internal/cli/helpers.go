package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/posthog/taskagent/internal/agent"
	"github.com/posthog/taskagent/internal/artifacts"
	"github.com/posthog/taskagent/internal/config"
	"github.com/posthog/taskagent/internal/events"
	"github.com/posthog/taskagent/internal/git"
	"github.com/posthog/taskagent/internal/journal"
	"github.com/posthog/taskagent/internal/orchestrator"
	"github.com/posthog/taskagent/internal/progress"
	"github.com/posthog/taskagent/internal/prompt"
	"github.com/posthog/taskagent/internal/remote"
	"github.com/posthog/taskagent/internal/stage"
	"github.com/posthog/taskagent/internal/todos"
)

// runtime is the fully wired application: one per command invocation.
type runtime struct {
	cfg       *config.Config
	store     *artifacts.Store
	gitc      *git.Coordinator
	client    *remote.Client
	journal   *journal.Journal
	publisher *events.MemoryPublisher
	reporter  *progress.Reporter
	orch      *orchestrator.Orchestrator
}

// runtimeOverrides carries command-line values that beat the config file.
type runtimeOverrides struct {
	cloud    *bool
	createPR *bool
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(repoPath, config.ConfigFileName)
	}
	return config.Load(path)
}

// newRuntime wires the full stack against the repository at --repo.
func newRuntime(ov runtimeOverrides) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if ov.cloud != nil {
		cfg.Cloud = *ov.cloud
	}
	if ov.createPR != nil {
		cfg.CreateChangeRequest = ov.createPR
	}

	gctx, err := git.NewContext(repoPath)
	if err != nil {
		return nil, err
	}

	var coordOpts []git.CoordinatorOption
	if cfg.Git.Remote != "" {
		coordOpts = append(coordOpts, git.WithRemote(cfg.Git.Remote))
	}
	if cfg.Git.DefaultBranch != "" {
		coordOpts = append(coordOpts, git.WithDefaultBranch(cfg.Git.DefaultBranch))
	}
	gitc := git.NewCoordinator(gctx, artifacts.Namespace, coordOpts...)

	rt := &runtime{
		cfg:       cfg,
		store:     artifacts.NewStore(gctx.WorkDir()),
		gitc:      gitc,
		publisher: events.NewMemoryPublisher(0),
	}

	if cfg.API.BaseURL != "" {
		rt.client = remote.NewClient(cfg.API.BaseURL, cfg.API.Token)
	}

	var reporterOpts []progress.Option
	if cfg.JournalPath != "" {
		jpath := cfg.JournalPath
		if !filepath.IsAbs(jpath) {
			jpath = filepath.Join(gctx.WorkDir(), jpath)
		}
		j, err := journal.Open(jpath)
		if err != nil {
			slog.Warn("journal unavailable", "path", jpath, "error", err)
		} else {
			rt.journal = j
			reporterOpts = append(reporterOpts, progress.WithJournal(j))
		}
	}

	var runStore progress.RunStore
	if rt.client != nil {
		runStore = rt.client
	}
	rt.reporter = progress.New(runStore, reporterOpts...)

	executor := stage.NewExecutor(stage.Config{
		Store:     rt.store,
		Git:       gitc,
		Reporter:  rt.reporter,
		Todos:     todos.NewTracker(rt.store),
		Prompts:   prompt.NewBuilder(gctx.WorkDir()),
		Runner:    agent.NewCLIRunner(agent.WithPath(cfg.Agent.Path)),
		Publisher: rt.publisher,
		Cloud:     cfg.Cloud,
		Model:     cfg.Agent.Model,
		MaxTurns:  cfg.Agent.MaxTurns,
		AgentEnv:  cfg.AgentEnv(),
	})

	ocfg := orchestrator.Config{
		Store:               rt.store,
		Git:                 gitc,
		Reporter:            rt.reporter,
		Executor:            executor,
		Publisher:           rt.publisher,
		Cloud:               cfg.Cloud,
		CreateChangeRequest: cfg.ShouldCreateChangeRequest(),
	}
	if rt.client != nil {
		ocfg.Tasks = rt.client
		ocfg.Uploader = rt.client
	}
	rt.orch = orchestrator.New(ocfg)
	return rt, nil
}

// openJournal opens the configured journal read-only-ish for inspection
// commands that don't need the full runtime.
func openJournal() (*journal.Journal, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.JournalPath == "" {
		return nil, fmt.Errorf("no journal configured")
	}
	jpath := cfg.JournalPath
	if !filepath.IsAbs(jpath) {
		jpath = filepath.Join(repoPath, jpath)
	}
	return journal.Open(jpath)
}

// Close releases runtime resources.
func (rt *runtime) Close() {
	rt.publisher.Close()
	if rt.journal != nil {
		rt.journal.Close()
	}
}
