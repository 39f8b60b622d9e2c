package preview

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

func writeSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"),
		[]byte("<html><body><h1>Hello</h1></body></html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "styles.css"),
		[]byte("body{color:red}"), 0o600))
	return root
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url) // #nosec G107 -- test server URL
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestSession_InjectsScriptIntoHTML(t *testing.T) {
	s := NewSession(config.DevConfig{}, writeSite(t), nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, body := get(t, srv.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `<script async src="/__livereload.js"></script></body>`)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	_, css := get(t, srv.URL+"/styles.css")
	require.Equal(t, "body{color:red}", css)

	resp, script := get(t, srv.URL+LiveReloadScriptPath)
	require.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	require.Contains(t, script, "EventSource('/__livereload')")
}

func TestSession_LiveReloadDisabled(t *testing.T) {
	off := false
	s := NewSession(config.DevConfig{LiveReload: &off}, writeSite(t), nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, body := get(t, srv.URL+"/")
	require.NotContains(t, body, "__livereload")

	resp, _ := get(t, srv.URL+LiveReloadScriptPath)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSession_ReloadReachesConnectedClient(t *testing.T) {
	rec := metrics.NewPrometheusRecorder(nil)
	s := NewSession(config.DevConfig{Metrics: true}, writeSite(t), rec)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.hub.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+LiveReloadPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)
	require.Equal(t, 1, s.Clients())

	s.Reload("styles changed")

	var data string
	for data == "" {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	require.JSONEq(t, `{"seq":1,"reason":"styles changed"}`, data)

	_, exposition := get(t, srv.URL+MetricsPath)
	require.Contains(t, exposition, "assetpipe_livereload_broadcasts_total 1")
	require.Contains(t, exposition, "assetpipe_livereload_clients 1")
}

func TestSession_MetricsRouteRequiresFlag(t *testing.T) {
	s := NewSession(config.DevConfig{}, writeSite(t), metrics.NewPrometheusRecorder(nil))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, _ := get(t, srv.URL+MetricsPath)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSession_ReloadWithoutClients(t *testing.T) {
	s := NewSession(config.DevConfig{}, writeSite(t), nil)
	require.NotPanics(t, func() { s.Reload("nobody listening") })
	require.Zero(t, s.Clients())
}

func TestSession_StartStop(t *testing.T) {
	s := NewSession(config.DevConfig{Host: "127.0.0.1", Port: 0}, writeSite(t), nil)
	require.Empty(t, s.Addr())

	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	_, body := get(t, "http://"+addr+"/")
	require.Contains(t, body, "<h1>Hello</h1>")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err := http.Get("http://" + addr + "/") // #nosec G107 -- test server URL
	require.Error(t, err)
}

func TestSession_StartFailsOnBusyPort(t *testing.T) {
	first := NewSession(config.DevConfig{Host: "127.0.0.1", Port: 0}, writeSite(t), nil)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	_, portStr, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	second := NewSession(config.DevConfig{Host: "127.0.0.1", Port: port}, writeSite(t), nil)
	err = second.Start(context.Background())
	require.Error(t, err)
	require.True(t, derrors.HasCategory(err, derrors.CategoryServer))
	require.True(t, derrors.IsFatal(err))
}
