package taskgraph

import (
	"errors"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
)

// Outcome is the final state of one task within a run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeFatal     Outcome = "fatal"
	OutcomeSkipped   Outcome = "skipped" // a dependency failed
	OutcomeCanceled  Outcome = "canceled"
)

// TaskResult records one task execution.
type TaskResult struct {
	Name    string
	Start   time.Time
	End     time.Time
	Outcome Outcome
	Err     error
}

// Duration is End - Start.
func (r TaskResult) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Report collects the results of one scheduler run. It is safe for
// concurrent use while the run is in progress.
type Report struct {
	RunID string
	Mode  buildmode.Mode
	Start time.Time
	End   time.Time

	mu      sync.Mutex
	results map[string]*TaskResult
}

func newReport(runID string, mode buildmode.Mode) *Report {
	return &Report{
		RunID:   runID,
		Mode:    mode,
		Start:   time.Now(),
		results: make(map[string]*TaskResult),
	}
}

func (r *Report) begin(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = &TaskResult{Name: name, Start: time.Now()}
}

func (r *Report) finish(name string, outcome Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[name]
	if !ok {
		res = &TaskResult{Name: name, Start: time.Now()}
		r.results[name] = res
	}
	res.End = time.Now()
	res.Outcome = outcome
	res.Err = err
}

// Result returns the result of the named task.
func (r *Report) Result(name string) (TaskResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[name]
	if !ok {
		return TaskResult{}, false
	}
	return *res, true
}

// Ran reports whether the named task was visited in this run.
func (r *Report) Ran(name string) bool {
	_, ok := r.Result(name)
	return ok
}

// Results returns all task results ordered by start time.
func (r *Report) Results() []TaskResult {
	r.mu.Lock()
	out := make([]TaskResult, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, *res)
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].Name < out[j].Name
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Failed returns the results whose outcome is not OutcomeSucceeded.
func (r *Report) Failed() []TaskResult {
	var out []TaskResult
	for _, res := range r.Results() {
		if res.Outcome != OutcomeSucceeded {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every visited task succeeded.
func (r *Report) OK() bool {
	if r == nil {
		return false
	}
	return len(r.Failed()) == 0
}

// Err joins the errors of every failed task, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		if res.Err != nil && res.Outcome != OutcomeSkipped {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// Duration is End - Start of the whole run.
func (r *Report) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
