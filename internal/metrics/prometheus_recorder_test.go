package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveTaskDuration("styles", 150*time.Millisecond)
	pr.ObserveRunDuration("build", 500*time.Millisecond)
	pr.IncTaskResult("styles", ResultSuccess)
	pr.IncTaskResult("styles", ResultSuccess)
	pr.IncRunOutcome("build", ResultFailed)
	pr.IncWatchTrigger("scripts")
	pr.IncReloadBroadcast()
	pr.SetLiveReloadClients(3)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	require.InDelta(t, 2, testutil.ToFloat64(pr.taskResults.WithLabelValues("styles", "success")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(pr.watchTriggers.WithLabelValues("scripts")), 0)
	require.InDelta(t, 3, testutil.ToFloat64(pr.reloadClients), 0)
	require.Same(t, reg, pr.Registry())
}

func TestNilPrometheusRecorder(t *testing.T) {
	var pr *PrometheusRecorder
	require.NotPanics(t, func() {
		pr.IncTaskResult("x", ResultFatal)
		pr.IncReloadBroadcast()
		pr.SetLiveReloadClients(1)
	})
}

func TestHTTPHandler(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncReloadBroadcast()

	srv := httptest.NewServer(HTTPHandler(pr.Registry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "assetpipe_livereload_broadcasts_total")
}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)
