package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// Policy decides how task failures affect the rest of a run.
type Policy int

const (
	// PolicyAggregate propagates every failure to the caller of Run.
	PolicyAggregate Policy = iota
	// PolicyIsolate records non-fatal failures and treats the task as
	// completed so dependents and siblings keep running.
	PolicyIsolate
)

func (p Policy) String() string {
	if p == PolicyIsolate {
		return "isolate"
	}
	return "aggregate"
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPolicy sets the failure policy (default PolicyAggregate).
func WithPolicy(p Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithMaxParallel limits how many task actions run at once. n <= 0 means
// unlimited. Composite tasks never hold a slot.
func WithMaxParallel(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		} else {
			s.sem = nil
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Scheduler runs roots of a Graph.
type Scheduler struct {
	graph    *Graph
	policy   Policy
	sem      *semaphore.Weighted
	recorder metrics.Recorder
}

// NewScheduler creates a scheduler for g.
func NewScheduler(g *Graph, opts ...Option) *Scheduler {
	s := &Scheduler{graph: g, recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Graph returns the graph the scheduler runs.
func (s *Scheduler) Graph() *Graph { return s.graph }

// Policy returns the configured failure policy.
func (s *Scheduler) Policy() Policy { return s.policy }

// RunTasks runs the named tasks in order.
func (s *Scheduler) RunTasks(ctx context.Context, mode buildmode.Mode, names ...string) (*Report, error) {
	return s.Run(ctx, mode, Refs(names...))
}

// Run executes root once. The returned Report is non-nil whenever root was
// valid, even when err is non-nil.
func (s *Scheduler) Run(ctx context.Context, mode buildmode.Mode, root Node) (*Report, error) {
	if err := s.graph.Validate(root); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = buildmode.WithMode(ctx, mode)
	ctx = observability.WithRunID(ctx, runID)
	ctx = observability.WithMode(ctx, mode.String())

	r := &run{
		sched:   s,
		mode:    mode,
		report:  newReport(runID, mode),
		futures: make(map[string]*future),
	}

	observability.DebugContext(ctx, "Graph run started", slog.String("root", root.String()))
	err := r.node(ctx, root)
	r.report.End = time.Now()

	result := metrics.ResultSuccess
	switch {
	case err != nil && isCanceled(err):
		result = metrics.ResultCanceled
	case err != nil && derrors.IsFatal(err):
		result = metrics.ResultFatal
	case err != nil || !r.report.OK():
		result = metrics.ResultFailed
	}
	s.recorder.ObserveRunDuration(mode.String(), r.report.Duration())
	s.recorder.IncRunOutcome(mode.String(), result)

	attrs := []slog.Attr{
		logfields.Duration(r.report.Duration()),
		logfields.Outcome(string(result)),
	}
	if result == metrics.ResultSuccess {
		observability.InfoContext(ctx, "Graph run finished", attrs...)
	} else {
		observability.WarnContext(ctx, "Graph run finished with failures", attrs...)
	}
	return r.report, err
}

type future struct {
	done chan struct{}
	err  error
}

// run is the state of one invocation.
type run struct {
	sched  *Scheduler
	mode   buildmode.Mode
	report *Report

	mu      sync.Mutex
	futures map[string]*future
}

func (r *run) node(ctx context.Context, n Node) error {
	switch n.Kind {
	case KindRef:
		return r.task(ctx, n.Name)
	case KindSeries:
		for _, child := range n.Children {
			if err := r.node(ctx, child); err != nil {
				return err
			}
		}
		return nil
	case KindParallel:
		var (
			g    errgroup.Group
			mu   sync.Mutex
			errs []error
		)
		for _, child := range n.Children {
			g.Go(func() error {
				if err := r.node(ctx, child); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		return errors.Join(errs...)
	default:
		return nil
	}
}

// task runs name at most once per invocation; concurrent and later callers
// wait for the first execution.
func (r *run) task(ctx context.Context, name string) error {
	r.mu.Lock()
	if f, ok := r.futures[name]; ok {
		r.mu.Unlock()
		<-f.done
		return f.err
	}
	f := &future{done: make(chan struct{})}
	r.futures[name] = f
	r.mu.Unlock()

	f.err = r.execute(observability.WithTask(ctx, name), name)
	close(f.done)
	return f.err
}

func (r *run) execute(ctx context.Context, name string) error {
	t, _ := r.sched.graph.Task(name)

	if !t.Dependencies.IsZero() {
		if err := r.node(ctx, t.Dependencies); err != nil {
			r.report.finish(name, OutcomeSkipped, err)
			return err
		}
	}

	r.report.begin(name)
	if t.Action == nil {
		r.report.finish(name, OutcomeSucceeded, nil)
		return nil
	}

	if err := ctx.Err(); err != nil {
		r.report.finish(name, OutcomeCanceled, err)
		return err
	}

	if sem := r.sched.sem; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			r.report.finish(name, OutcomeCanceled, err)
			return err
		}
		defer sem.Release(1)
	}

	start := time.Now()
	observability.DebugContext(ctx, "Task started")
	err := callAction(ctx, t.Action, r.mode)
	elapsed := time.Since(start)
	r.sched.recorder.ObserveTaskDuration(name, elapsed)

	if err == nil {
		r.report.finish(name, OutcomeSucceeded, nil)
		r.sched.recorder.IncTaskResult(name, metrics.ResultSuccess)
		observability.InfoContext(ctx, "Task finished", logfields.Duration(elapsed))
		return nil
	}

	err = fmt.Errorf("task %s: %w", name, err)
	outcome, result := OutcomeFailed, metrics.ResultFailed
	switch {
	case isCanceled(err):
		outcome, result = OutcomeCanceled, metrics.ResultCanceled
	case derrors.IsFatal(err):
		outcome, result = OutcomeFatal, metrics.ResultFatal
	}
	r.report.finish(name, outcome, err)
	r.sched.recorder.IncTaskResult(name, result)

	if r.sched.policy == PolicyIsolate && outcome == OutcomeFailed {
		observability.WarnContext(ctx, "Task failed; continuing",
			logfields.Duration(elapsed), logfields.Error(err))
		return nil
	}
	observability.ErrorContext(ctx, "Task failed",
		logfields.Duration(elapsed), logfields.Outcome(string(outcome)), logfields.Error(err))
	return err
}

// callAction runs a task action, converting a panic into an internal error.
func callAction(ctx context.Context, action Action, mode buildmode.Mode) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = derrors.InternalError(fmt.Sprintf("task panicked: %v", rec)).Build()
		}
	}()
	return action(ctx, mode)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
