package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/preview"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

const shutdownTimeout = 5 * time.Second

// Pipeline owns the statically constructed graph for one configuration.
type Pipeline struct {
	cfg      *config.Config
	recorder metrics.Recorder
	ws       *workspace.Manager
	runner   *transform.Runner
	defs     []transform.Definition
	graph    *taskgraph.Graph
	bindings []watch.Binding
	session  *preview.Session

	// onWatching is called once the dev watch is active.
	onWatching func()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the metrics recorder shared by the scheduler, the
// watch controller and the preview server.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithWorkspace overrides where steps stage their output.
func WithWorkspace(ws *workspace.Manager) Option {
	return func(p *Pipeline) {
		if ws != nil {
			p.ws = ws
		}
	}
}

// New builds step definitions, tasks, the graph and the watch bindings.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, derrors.ConfigError("configuration is required").Build()
	}
	p := &Pipeline{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		ws:       workspace.NewManager(""),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.runner = transform.NewRunner(p.ws, buildmode.Roots{
		Primary: cfg.Output.Directory,
		Mirror:  cfg.Output.Mirror,
	})
	p.defs = definitions(cfg)
	for _, def := range p.defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
	}
	p.session = preview.NewSession(cfg.Dev, cfg.Output.Directory, p.recorder)

	graph, err := p.buildGraph()
	if err != nil {
		return nil, err
	}
	p.graph = graph
	p.bindings = watchBindings(p.defs)
	return p, nil
}

// Graph returns the task graph.
func (p *Pipeline) Graph() *taskgraph.Graph { return p.graph }

// Bindings returns the watch bindings used by Dev.
func (p *Pipeline) Bindings() []watch.Binding { return p.bindings }

// Session returns the preview session started by the serve task.
func (p *Pipeline) Session() *preview.Session { return p.session }

// Build runs the build root once. Failures of parallel siblings are
// aggregated; the mirror root is replaced only when every task succeeded.
func (p *Pipeline) Build(ctx context.Context) (*taskgraph.Report, error) {
	defer p.cleanup()

	primary := p.cfg.Output.Directory
	if p.cfg.Output.Clean {
		if err := cleanRoot(primary); err != nil {
			return nil, err
		}
	}

	var mirror *stagedMirror
	if p.cfg.Output.Mirror != "" {
		var err error
		src := p.cfg.Sources
		mirror, err = stageMirror(p.cfg.Output.Mirror,
			primary, src.Templates, src.Styles, src.Scripts, src.Images)
		if err != nil {
			return nil, err
		}
		defer mirror.discard()
		ctx = transform.WithRoots(ctx, buildmode.Roots{Primary: primary, Mirror: mirror.dir})
	}

	sched := taskgraph.NewScheduler(p.graph,
		taskgraph.WithPolicy(taskgraph.PolicyAggregate),
		taskgraph.WithMaxParallel(p.cfg.Build.MaxParallel),
		taskgraph.WithRecorder(p.recorder))

	report, err := sched.Run(ctx, buildmode.Build, taskgraph.Ref(TaskBuild))
	if err != nil {
		if mirror != nil {
			slog.Warn("Build failed, mirror root left untouched", logfields.Path(p.cfg.Output.Mirror))
		}
		return report, err
	}

	if mirror != nil {
		if err := mirror.publish(); err != nil {
			return report, err
		}
		slog.Info("Mirror root updated", logfields.Path(p.cfg.Output.Mirror))
	}
	return report, nil
}

// Dev subscribes to source changes, runs the dev root, then rebuilds on
// change until ctx is done or a fatal error occurs. Non-fatal step failures
// are logged and the session keeps running.
func (p *Pipeline) Dev(ctx context.Context) error {
	defer p.cleanup()

	sched := taskgraph.NewScheduler(p.graph,
		taskgraph.WithPolicy(taskgraph.PolicyIsolate),
		taskgraph.WithMaxParallel(p.cfg.Build.MaxParallel),
		taskgraph.WithRecorder(p.recorder))

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := p.session.Stop(stopCtx); err != nil {
			slog.Warn("Preview server shutdown failed", logfields.Error(err))
		}
	}()

	// Subscribe before the initial run; changes saved meanwhile are held
	// and run once it has finished.
	ctrl := watch.New(sched, p.session, watch.Options{
		Mode:     buildmode.Dev,
		Debounce: p.cfg.Dev.Debounce.Std(),
		MaxWait:  p.cfg.Dev.MaxWait.Std(),
		Recorder: p.recorder,
		Hold:     true,
	})
	handle, err := ctrl.Watch(ctx, p.bindings)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := handle.Stop(); stopErr != nil {
			slog.Warn("Failed to stop watcher", logfields.Error(stopErr))
		}
	}()

	if _, err := sched.Run(ctx, buildmode.Dev, taskgraph.Ref(TaskDev)); err != nil {
		return err
	}
	handle.Release()

	slog.Info("Watching for changes",
		slog.String("url", "http://"+p.session.Addr()),
		slog.Int("bindings", len(p.bindings)))
	if p.onWatching != nil {
		p.onWatching()
	}

	select {
	case <-ctx.Done():
		slog.Info("Dev session ending")
		return nil
	case err := <-handle.Errors():
		return err
	}
}

func (p *Pipeline) cleanup() {
	if err := p.ws.Cleanup(); err != nil {
		slog.Warn("Failed to clean up workspace", logfields.Error(err))
	}
}

// cleanRoot empties the primary output root. Refuses filesystem roots and
// directories containing the working directory.
func cleanRoot(root string) error {
	if err := config.CheckReplaceableRoot(root); err != nil {
		return err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to resolve output root").Fatal().Build()
	}
	if err := os.RemoveAll(abs); err != nil {
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to clean output root").
			Fatal().
			WithContext("path", abs).
			Build()
	}
	slog.Debug("Cleaned output root", logfields.Path(abs))
	return nil
}
