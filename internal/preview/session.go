package preview

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

// Endpoint paths served next to the site.
const (
	LiveReloadPath       = "/__livereload"
	LiveReloadScriptPath = "/__livereload.js"
	MetricsPath          = "/metrics"
)

// Session is one dev invocation's preview server. It serves the primary
// output root and pushes reload signals to connected browsers.
type Session struct {
	cfg      config.DevConfig
	root     string
	recorder metrics.Recorder
	hub      *reloadHub

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
	served chan struct{}
}

// NewSession creates a session serving root. A nil recorder disables metrics.
func NewSession(cfg config.DevConfig, root string, recorder metrics.Recorder) *Session {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Session{
		cfg:      cfg,
		root:     root,
		recorder: recorder,
		hub:      newReloadHub(recorder),
	}
}

// Handler returns the session's HTTP routes.
func (s *Session) Handler() http.Handler {
	mux := http.NewServeMux()

	site := noCache(http.FileServer(http.Dir(s.root)))
	if s.cfg.LiveReloadEnabled() {
		mux.Handle(LiveReloadPath, s.hub)
		mux.HandleFunc(LiveReloadScriptPath, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			if _, err := w.Write([]byte(liveReloadScript)); err != nil {
				slog.Debug("failed to write livereload script", "error", err)
			}
		})
		site = injectLiveReload(site)
	}

	if s.cfg.Metrics {
		if prom, ok := s.recorder.(*metrics.PrometheusRecorder); ok {
			mux.Handle(MetricsPath, metrics.HTTPHandler(prom.Registry()))
		}
	}

	mux.Handle("/", site)
	return mux
}

// Start binds the listener and serves in the background. Binding happens
// synchronously so an occupied port fails the dev command immediately.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryServer, "failed to bind preview server").
			Fatal().
			WithContext("addr", addr).
			Build()
	}

	// No write timeout: SSE connections are long lived.
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	s.ln = ln
	s.served = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Preview server stopped", logfields.Error(err))
		}
	}(s.server, s.served)

	slog.Info("Preview server started",
		slog.String("url", "http://"+ln.Addr().String()),
		logfields.Path(s.root),
		slog.Bool("live_reload", s.cfg.LiveReloadEnabled()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Session) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reload tells every connected browser to reload. It never blocks on clients.
func (s *Session) Reload(reason string) {
	if !s.cfg.LiveReloadEnabled() {
		return
	}
	n := s.hub.broadcast(reason)
	s.recorder.IncReloadBroadcast()
	slog.Info("Live reload", slog.String("reason", reason), slog.Int("clients", n))
}

// Clients reports the number of connected live reload clients.
func (s *Session) Clients() int {
	return s.hub.clientCount()
}

// Stop disconnects live reload clients and shuts the server down.
func (s *Session) Stop(ctx context.Context) error {
	s.hub.shutdown()

	s.mu.Lock()
	srv, done := s.server, s.served
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return derrors.WrapError(err, derrors.CategoryServer, "preview server shutdown").Build()
	}
	<-done
	slog.Info("Preview server stopped")
	return nil
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
