package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "assetpipe"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg              *prom.Registry
	taskDuration     *prom.HistogramVec
	taskResults      *prom.CounterVec
	runDuration      *prom.HistogramVec
	runOutcome       *prom.CounterVec
	watchTriggers    *prom.CounterVec
	reloadBroadcasts prom.Counter
	reloadClients    prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
// A nil registry gets a fresh private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Duration of individual task actions",
		Buckets:   prom.DefBuckets,
	}, []string{"task"})
	pr.taskResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_results_total",
		Help:      "Task result counts by outcome",
	}, []string{"task", "result"})
	pr.runDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Total graph run duration",
		Buckets:   prom.DefBuckets,
	}, []string{"mode"})
	pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "run_outcomes_total",
		Help:      "Graph run outcomes by final status",
	}, []string{"mode", "result"})
	pr.watchTriggers = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "watch_triggers_total",
		Help:      "Debounced watch triggers per binding",
	}, []string{"binding"})
	pr.reloadBroadcasts = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "livereload_broadcasts_total",
		Help:      "Reload notifications sent to browsers",
	})
	pr.reloadClients = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "livereload_clients",
		Help:      "Connected live reload clients",
	})
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.runDuration, pr.runOutcome,
		pr.watchTriggers, pr.reloadBroadcasts, pr.reloadClients)
	return pr
}

// Registry returns the registry the recorder's collectors live in.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	if p == nil {
		return nil
	}
	return p.reg
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil || p.taskResults == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(mode string, d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(mode string, result ResultLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(mode, string(result)).Inc()
}

func (p *PrometheusRecorder) IncWatchTrigger(binding string) {
	if p == nil || p.watchTriggers == nil {
		return
	}
	p.watchTriggers.WithLabelValues(binding).Inc()
}

func (p *PrometheusRecorder) IncReloadBroadcast() {
	if p == nil || p.reloadBroadcasts == nil {
		return
	}
	p.reloadBroadcasts.Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil || p.reloadClients == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}
