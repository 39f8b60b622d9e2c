package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
	"git.home.luguber.info/inful/assetpipe/internal/util/sets"
)

const (
	defaultDebounce = 150 * time.Millisecond
	defaultMaxWait  = time.Second
)

// Runner runs tasks by name. *taskgraph.Scheduler satisfies it.
type Runner interface {
	RunTasks(ctx context.Context, mode buildmode.Mode, names ...string) (*taskgraph.Report, error)
}

// Reloader is notified after a successful triggered run. Implementations
// must not block.
type Reloader interface {
	Reload(reason string)
}

// Binding maps a source glob to the tasks it triggers.
type Binding struct {
	Name   string
	Glob   string   // doublestar pattern, e.g. src/styles/**/*.css
	Tasks  []string // run in order
	Reload bool     // notify the reloader after a successful run
}

// Options tunes a Controller.
type Options struct {
	Mode     buildmode.Mode
	Debounce time.Duration
	MaxWait  time.Duration
	Recorder metrics.Recorder
	// Hold starts the watch with runs deferred until Handle.Release, so
	// changes made during an initial build are not lost.
	Hold bool
}

// Controller turns filesystem events into task runs.
type Controller struct {
	runner   Runner
	reloader Reloader
	opts     Options
}

// New creates a controller. reloader may be nil.
func New(runner Runner, reloader Reloader, opts Options) *Controller {
	if opts.Mode == "" {
		opts.Mode = buildmode.Dev
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MaxWait < opts.Debounce {
		opts.MaxWait = max(defaultMaxWait, opts.Debounce)
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Controller{runner: runner, reloader: reloader, opts: opts}
}

// watchedBinding is a Binding with its resolved base directory and trigger.
type watchedBinding struct {
	Binding
	base     string
	pattern  string
	trigger  func()
	cancel   func()
	coalesce *coalescer
}

// Handle controls an active watch.
type Handle struct {
	watcher  *fsnotify.Watcher
	bindings []*watchedBinding
	errs     chan error
	done     chan struct{}
	stopOnce sync.Once
	loopWG   sync.WaitGroup
}

// Watch subscribes to every binding's base directory and starts
// dispatching events. The watch ends when ctx is done or Stop is called.
func (c *Controller) Watch(ctx context.Context, bindings []Binding) (*Handle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryEnvironment, "failed to create file watcher").Fatal().Build()
	}

	h := &Handle{
		watcher: watcher,
		errs:    make(chan error, len(bindings)+1),
		done:    make(chan struct{}),
	}

	// Runs outlive cancellation of ctx: a started run always completes.
	runCtx := context.WithoutCancel(ctx)

	added := sets.New[string]()
	for _, b := range bindings {
		wb, err := c.resolve(b)
		if err != nil {
			_ = watcher.Close()
			return nil, err
		}
		if !added.Has(wb.base) {
			if err := addDirsRecursive(watcher, wb.base); err != nil {
				_ = watcher.Close()
				return nil, err
			}
			added.Add(wb.base)
		}

		bctx := observability.WithBinding(runCtx, wb.Name)
		wb.coalesce = newCoalescer(func() { c.runBinding(bctx, h, wb.Binding) })
		if c.opts.Hold {
			wb.coalesce.Hold()
		}
		wb.trigger, wb.cancel = debounce.NewWithMaxWait(c.opts.Debounce, c.opts.MaxWait, wb.coalesce.Kick)
		h.bindings = append(h.bindings, wb)

		slog.Debug("Watching binding",
			logfields.Binding(wb.Name),
			logfields.Path(wb.base),
			slog.String("pattern", wb.pattern),
			slog.Any("tasks", wb.Tasks))
	}

	h.loopWG.Add(1)
	go func() {
		defer h.loopWG.Done()
		h.loop(ctx)
	}()
	return h, nil
}

func (c *Controller) resolve(b Binding) (*watchedBinding, error) {
	if b.Name == "" || b.Glob == "" || len(b.Tasks) == 0 {
		return nil, derrors.ConfigError("watch binding needs a name, a glob and at least one task").
			WithContext("binding", b.Name).
			Build()
	}
	base, pattern := doublestar.SplitPattern(filepath.ToSlash(b.Glob))
	if !doublestar.ValidatePattern(pattern) {
		return nil, derrors.ConfigError("invalid watch pattern").
			WithContext("binding", b.Name).
			WithContext("glob", b.Glob).
			Build()
	}
	abs, err := filepath.Abs(filepath.FromSlash(base))
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to resolve watch directory").Fatal().Build()
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, derrors.FileSystemError("watch directory does not exist").
			WithCause(err).
			WithContext("binding", b.Name).
			WithContext("path", abs).
			Build()
	}
	return &watchedBinding{Binding: b, base: abs, pattern: pattern}, nil
}

func (h *Handle) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			go func() { _ = h.Stop() }()
			return
		case <-h.done:
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handleEvent(ev)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (h *Handle) handleEvent(ev fsnotify.Event) {
	if shouldIgnoreEvent(ev) {
		return
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(h.watcher, ev.Name)
			h.dispatchTree(ev.Name)
			return
		}
	}
	h.dispatch(ev.Name, ev.Op.String())
}

// dispatchTree triggers bindings for files that appeared together with a
// new directory, before its watch was registered.
func (h *Handle) dispatchTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			h.dispatch(path, fsnotify.Create.String())
		}
		return nil
	})
}

func (h *Handle) dispatch(path, op string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	for _, b := range h.bindings {
		rel, err := filepath.Rel(b.base, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		if ok, _ := doublestar.Match(b.pattern, filepath.ToSlash(rel)); ok {
			slog.Debug("File change detected", logfields.Binding(b.Name), logfields.Path(abs), slog.String("op", op))
			b.trigger()
		}
	}
}

func (c *Controller) runBinding(ctx context.Context, h *Handle, b Binding) {
	c.opts.Recorder.IncWatchTrigger(b.Name)
	observability.InfoContext(ctx, "Change detected; running tasks", slog.Any("tasks", b.Tasks))

	report, err := c.runner.RunTasks(ctx, c.opts.Mode, b.Tasks...)
	if err != nil {
		if derrors.IsFatal(err) {
			observability.ErrorContext(ctx, "Triggered run failed fatally", logfields.Error(err))
			h.fail(fmt.Errorf("binding %s: %w", b.Name, err))
			return
		}
		observability.WarnContext(ctx, "Triggered run failed", logfields.Error(err))
		return
	}
	if !report.OK() {
		return
	}
	if b.Reload && c.reloader != nil {
		c.reloader.Reload(b.Name)
	}
}

func (h *Handle) fail(err error) {
	select {
	case h.errs <- err:
	default:
	}
}

// Release starts runs deferred by Options.Hold. Bindings that saw changes
// while held run once.
func (h *Handle) Release() {
	for _, b := range h.bindings {
		b.coalesce.Release()
	}
}

// Errors delivers fatal errors from triggered runs.
func (h *Handle) Errors() <-chan error {
	return h.errs
}

// Stop releases subscriptions, drops pending triggers and waits for
// in-flight runs to finish. It is safe to call more than once.
func (h *Handle) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.done)
		err = h.watcher.Close()
		h.loopWG.Wait()
		for _, b := range h.bindings {
			b.cancel()
			b.coalesce.Stop()
		}
	})
	return err
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}
