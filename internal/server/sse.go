package server

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/autodoc/internal/events"
	"git.home.luguber.info/inful/autodoc/internal/logfields"
)

// eventStream serves pipeline events over SSE. Each connection gets its
// own broadcaster subscription; slow clients drop events rather than
// stalling the pipeline.
type eventStream struct {
	bus       *events.Broadcaster
	heartbeat time.Duration

	mu     sync.Mutex
	closed bool
}

func newEventStream(bus *events.Broadcaster) *eventStream {
	return &eventStream{bus: bus, heartbeat: 30 * time.Second}
}

func (es *eventStream) close() {
	es.mu.Lock()
	es.closed = true
	es.mu.Unlock()
}

func (es *eventStream) isClosed() bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.closed
}

func (es *eventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if es.bus == nil || es.isClosed() {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := es.bus.Subscribe(events.DefaultBuffer)
	defer sub.Unsubscribe()

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		return
	}
	if err := bw.Flush(); err != nil {
		return
	}
	flusher.Flush()

	hb := time.NewTicker(es.heartbeat)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				slog.Warn("failed to encode event", logfields.Error(err))
				continue
			}
			if _, err := bw.WriteString("event: " + string(evt.Type) + "\ndata: " + string(payload) + "\n\n"); err != nil {
				return
			}
			if err := bw.Flush(); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
