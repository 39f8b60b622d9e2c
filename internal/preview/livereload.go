package preview

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

const heartbeatInterval = 30 * time.Second

// reloadEvent is the JSON payload of an SSE data line.
type reloadEvent struct {
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason,omitempty"`
}

// reloadHub manages SSE clients waiting for reload signals.
type reloadHub struct {
	mu       sync.Mutex
	nextID   int
	clients  map[int]*lrClient
	recorder metrics.Recorder
	closed   bool
	seq      uint64
}

type lrClient struct {
	id   int
	ch   chan reloadEvent
	done chan struct{}
}

func newReloadHub(recorder metrics.Recorder) *reloadHub {
	return &reloadHub{clients: map[int]*lrClient{}, recorder: recorder}
}

// ServeHTTP implements the SSE endpoint.
func (h *reloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	client, ok := h.addClient()
	if !ok {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.removeClient(client.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	write := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			slog.Debug("livereload write", "error", err)
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !write(": connected\n\n") {
		return
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if !write(": ping\n\n") {
				return
			}
		case ev := <-client.ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if !write("data: " + string(data) + "\n\n") {
				return
			}
		}
	}
}

func (h *reloadHub) addClient() (*lrClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &lrClient{id: h.nextID, ch: make(chan reloadEvent, 8), done: make(chan struct{})}
	h.nextID++
	h.clients[c.id] = c
	h.recorder.SetLiveReloadClients(len(h.clients))
	return c, true
}

func (h *reloadHub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.recorder.SetLiveReloadClients(len(h.clients))
	}
}

// broadcast sends a reload event to every client. Clients whose buffer is
// full are dropped; their browsers reconnect and reload on their own.
func (h *reloadHub) broadcast(reason string) int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	h.seq++
	ev := reloadEvent{Seq: h.seq, Reason: reason}
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- ev:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	slog.Debug("livereload broadcast", "reason", reason, "clients", len(snapshot), "dropped", dropped)
	return len(snapshot) - dropped
}

func (h *reloadHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// shutdown disconnects all clients and rejects new ones.
func (h *reloadHub) shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}

const liveReloadScript = `(() => {
  if (window.__ASSETPIPE_LR__) return;
  window.__ASSETPIPE_LR__ = true;
  function connect() {
    const es = new EventSource('` + LiveReloadPath + `');
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        console.log('[assetpipe] ' + (p.reason || 'change') + ', reloading');
      } catch (_) {}
      location.reload();
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
