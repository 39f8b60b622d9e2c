package metrics

import "time"

// ResultLabel enumerates task result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for graph runs and the dev loop.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	ObserveRunDuration(mode string, d time.Duration)
	IncRunOutcome(mode string, result ResultLabel)
	IncWatchTrigger(binding string)
	IncReloadBroadcast()
	SetLiveReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)  {}
func (NoopRecorder) IncRunOutcome(string, ResultLabel)         {}
func (NoopRecorder) IncWatchTrigger(string)                    {}
func (NoopRecorder) IncReloadBroadcast()                       {}
func (NoopRecorder) SetLiveReloadClients(int)                  {}
