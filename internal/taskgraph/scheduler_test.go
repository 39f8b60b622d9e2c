package taskgraph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

type calls struct {
	mu sync.Mutex
	n  map[string]int
}

func newCalls() *calls { return &calls{n: map[string]int{}} }

func (c *calls) action(name string, err error) Action {
	return func(context.Context, buildmode.Mode) error {
		c.mu.Lock()
		c.n[name]++
		c.mu.Unlock()
		return err
	}
}

func (c *calls) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[name]
}

func mustGraph(t *testing.T, tasks ...Task) *Graph {
	t.Helper()
	g, err := New(tasks...)
	require.NoError(t, err)
	return g
}

func TestRun_VisitOnce(t *testing.T) {
	c := newCalls()
	g := mustGraph(t,
		Task{Name: "a", Action: c.action("a", nil)},
		Task{Name: "b", Action: c.action("b", nil), Dependencies: Ref("a")},
		Task{Name: "c", Action: c.action("c", nil), Dependencies: Ref("a")},
		Task{Name: "d", Action: c.action("d", nil), Dependencies: Parallel(Ref("b"), Ref("c"))},
	)

	report, err := NewScheduler(g).Run(context.Background(), buildmode.Build,
		Parallel(Ref("d"), Ref("a"), Series(Ref("b"), Ref("a"))))
	require.NoError(t, err)
	require.True(t, report.OK())
	for _, name := range []string{"a", "b", "c", "d"} {
		require.Equal(t, 1, c.count(name), name)
		require.True(t, report.Ran(name))
	}

	// A new invocation runs everything again.
	_, err = NewScheduler(g).RunTasks(context.Background(), buildmode.Build, "d")
	require.NoError(t, err)
	require.Equal(t, 2, c.count("a"))
}

func TestRun_SeriesOrdering(t *testing.T) {
	sleepy := func(context.Context, buildmode.Mode) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	g := mustGraph(t,
		Task{Name: "styles", Action: sleepy},
		Task{Name: "templates", Action: sleepy},
		Task{Name: "scripts", Action: sleepy},
	)

	report, err := NewScheduler(g).RunTasks(context.Background(), buildmode.Dev, "styles", "templates", "scripts")
	require.NoError(t, err)

	names := []string{"styles", "templates", "scripts"}
	for i := 1; i < len(names); i++ {
		prev, ok := report.Result(names[i-1])
		require.True(t, ok)
		next, ok := report.Result(names[i])
		require.True(t, ok)
		require.False(t, next.Start.Before(prev.End), "%s started before %s ended", names[i], names[i-1])
	}
}

func TestRun_ParallelOverlap(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	rendezvous := func(context.Context, buildmode.Mode) error {
		started.Done()
		all := make(chan struct{})
		go func() {
			started.Wait()
			close(all)
		}()
		select {
		case <-all:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("sibling never started")
		}
	}
	g := mustGraph(t,
		Task{Name: "a", Action: rendezvous},
		Task{Name: "b", Action: rendezvous},
	)

	report, err := NewScheduler(g).Run(context.Background(), buildmode.Build, Parallel(Ref("a"), Ref("b")))
	require.NoError(t, err)

	a, _ := report.Result("a")
	b, _ := report.Result("b")
	require.True(t, a.Start.Before(b.End))
	require.True(t, b.Start.Before(a.End))
}

func TestRun_AggregatePolicy(t *testing.T) {
	boom := derrors.SourceError("bad stylesheet").Build()
	c := newCalls()
	g := mustGraph(t,
		Task{Name: "styles", Action: c.action("styles", boom)},
		Task{Name: "scripts", Action: c.action("scripts", nil)},
		Task{Name: "sitemap", Action: c.action("sitemap", nil)},
		Task{Name: "cache", Action: c.action("cache", nil), Dependencies: Ref("styles")},
	)
	sched := NewScheduler(g, WithPolicy(PolicyAggregate))

	report, err := sched.Run(context.Background(), buildmode.Build,
		Series(Parallel(Ref("styles"), Ref("scripts")), Ref("sitemap")))
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, c.count("scripts"), "sibling must still run")
	require.Equal(t, 0, c.count("sitemap"), "series must stop")
	require.False(t, report.OK())

	res, ok := report.Result("styles")
	require.True(t, ok)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, report.Err(), boom)

	report, err = sched.Run(context.Background(), buildmode.Build, Ref("cache"))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.count("cache"))
	res, _ = report.Result("cache")
	require.Equal(t, OutcomeSkipped, res.Outcome)
}

func TestRun_IsolatePolicy(t *testing.T) {
	c := newCalls()
	g := mustGraph(t,
		Task{Name: "styles", Action: c.action("styles", derrors.SourceError("bad stylesheet").Build())},
		Task{Name: "templates", Action: c.action("templates", nil)},
		Task{Name: "cache", Action: c.action("cache", nil), Dependencies: Ref("styles")},
	)

	report, err := NewScheduler(g, WithPolicy(PolicyIsolate)).Run(context.Background(), buildmode.Dev,
		Series(Ref("styles"), Ref("templates"), Ref("cache")))
	require.NoError(t, err)
	require.Equal(t, 1, c.count("templates"))
	require.Equal(t, 1, c.count("cache"))
	require.False(t, report.OK())
	require.Len(t, report.Failed(), 1)
	require.True(t, derrors.HasCategory(report.Err(), derrors.CategorySource))
}

func TestRun_FatalPropagatesUnderIsolate(t *testing.T) {
	c := newCalls()
	fatal := derrors.FileSystemError("source root missing").Build()
	g := mustGraph(t,
		Task{Name: "images", Action: c.action("images", fatal)},
		Task{Name: "sitemap", Action: c.action("sitemap", nil)},
	)

	report, err := NewScheduler(g, WithPolicy(PolicyIsolate)).RunTasks(context.Background(), buildmode.Dev, "images", "sitemap")
	require.Error(t, err)
	require.True(t, derrors.IsFatal(err))
	require.Equal(t, 0, c.count("sitemap"))

	res, _ := report.Result("images")
	require.Equal(t, OutcomeFatal, res.Outcome)
}

func TestRun_MaxParallel(t *testing.T) {
	var current, peak atomic.Int32
	limited := func(context.Context, buildmode.Mode) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil
	}
	g := mustGraph(t,
		Task{Name: "a", Action: limited},
		Task{Name: "b", Action: limited},
		Task{Name: "c", Action: limited},
		Task{Name: "all", Dependencies: Parallel(Ref("a"), Ref("b"), Ref("c"))},
	)

	_, err := NewScheduler(g, WithMaxParallel(1)).RunTasks(context.Background(), buildmode.Build, "all")
	require.NoError(t, err)
	require.Equal(t, int32(1), peak.Load())
}

func TestRun_UnknownRoot(t *testing.T) {
	g := mustGraph(t, Task{Name: "a", Action: noop})
	report, err := NewScheduler(g).RunTasks(context.Background(), buildmode.Build, "nope")
	require.Nil(t, report)
	require.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))
}

func TestRun_PanicBecomesInternalError(t *testing.T) {
	g := mustGraph(t, Task{Name: "a", Action: func(context.Context, buildmode.Mode) error { panic("kaboom") }})
	_, err := NewScheduler(g, WithPolicy(PolicyIsolate)).RunTasks(context.Background(), buildmode.Dev, "a")
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategoryInternal))
	require.Contains(t, err.Error(), "kaboom")
}

func TestRun_ModeOnContext(t *testing.T) {
	var seen buildmode.Mode
	var fromCtx buildmode.Mode
	g := mustGraph(t, Task{Name: "a", Action: func(ctx context.Context, mode buildmode.Mode) error {
		seen = mode
		fromCtx = buildmode.FromContext(ctx)
		return nil
	}})
	report, err := NewScheduler(g).RunTasks(context.Background(), buildmode.Build, "a")
	require.NoError(t, err)
	require.Equal(t, buildmode.Build, seen)
	require.Equal(t, buildmode.Build, fromCtx)
	require.Equal(t, buildmode.Build, report.Mode)
	require.NotEmpty(t, report.RunID)
}

func TestRun_CanceledContextStopsBeforeActions(t *testing.T) {
	c := newCalls()
	g := mustGraph(t, Task{Name: "a", Action: c.action("a", nil)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewScheduler(g, WithPolicy(PolicyIsolate)).RunTasks(ctx, buildmode.Dev, "a")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, c.count("a"))
	res, _ := report.Result("a")
	require.Equal(t, OutcomeCanceled, res.Outcome)
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	results map[string]metrics.ResultLabel
	runs    []metrics.ResultLabel
}

func (r *countingRecorder) IncTaskResult(task string, result metrics.ResultLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[task] = result
}

func (r *countingRecorder) IncRunOutcome(_ string, result metrics.ResultLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, result)
}

func TestRun_RecordsMetrics(t *testing.T) {
	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}
	g := mustGraph(t,
		Task{Name: "ok", Action: noop},
		Task{Name: "bad", Action: func(context.Context, buildmode.Mode) error {
			return derrors.SourceError("broken").Build()
		}},
	)

	_, err := NewScheduler(g, WithRecorder(rec), WithPolicy(PolicyIsolate)).Run(context.Background(), buildmode.Dev,
		Parallel(Ref("ok"), Ref("bad")))
	require.NoError(t, err)
	require.Equal(t, metrics.ResultSuccess, rec.results["ok"])
	require.Equal(t, metrics.ResultFailed, rec.results["bad"])
	require.Equal(t, []metrics.ResultLabel{metrics.ResultFailed}, rec.runs)
}
