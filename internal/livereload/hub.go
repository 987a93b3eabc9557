// Package livereload pushes rebuild notifications to connected browsers over
// server-sent events and injects the client script into served HTML.
package livereload

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/metrics"
)

// MessageType selects the client-side reaction.
type MessageType string

const (
	TypeReload MessageType = "reload" // full page reload
	TypeInject MessageType = "inject" // swap stylesheets in place
	TypeError  MessageType = "error"  // show the error overlay
	TypeClear  MessageType = "clear"  // remove the error overlay
)

type Message struct {
	Type  MessageType `json:"type"`
	Paths []string    `json:"paths,omitempty"`
	Hash  string      `json:"hash,omitempty"`
	Text  string      `json:"text,omitempty"`
}

const heartbeat = 30 * time.Second

// Hub manages SSE clients. The last unresolved error is replayed to clients
// that connect after it was sent, so the overlay survives a manual reload.
type Hub struct {
	mu        sync.Mutex
	nextID    int
	clients   map[int]*client
	closed    bool
	lastHash  string
	lastError *Message

	log *slog.Logger
	rec metrics.Recorder
}

type client struct {
	id   int
	ch   chan []byte
	done chan struct{}
}

func NewHub(log *slog.Logger, rec metrics.Recorder) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: map[int]*client{}, log: log, rec: metrics.OrNoop(rec)}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	c := &client{id: h.nextID, ch: make(chan []byte, 8), done: make(chan struct{})}
	h.nextID++
	h.clients[c.id] = c
	pending := h.lastError
	h.rec.SetLiveReloadClients(len(h.clients))
	h.mu.Unlock()
	defer h.remove(c.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	send := func(chunk string) bool {
		if _, err := bw.WriteString(chunk); err != nil {
			h.log.Debug("livereload write", logfields.Error(err))
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(": connected\n\n") {
		return
	}
	if pending != nil {
		if data, err := json.Marshal(pending); err == nil && !send("data: "+string(data)+"\n\n") {
			return
		}
	}

	hb := time.NewTicker(heartbeat)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-hb.C:
			if !send(": ping\n\n") {
				return
			}
		case data := <-c.ch:
			if !send("data: " + string(data) + "\n\n") {
				return
			}
		}
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.rec.SetLiveReloadClients(len(h.clients))
	}
}

// Broadcast sends msg to every client without blocking. Clients whose buffer
// is full are disconnected; their browser reconnects and resynchronizes.
// A message carrying the same Hash as the previous one is ignored.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("livereload encode", logfields.Error(err))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if msg.Hash != "" {
		if msg.Hash == h.lastHash {
			h.mu.Unlock()
			return
		}
		h.lastHash = msg.Hash
	}
	switch msg.Type {
	case TypeError:
		m := msg
		h.lastError = &m
	case TypeClear:
		h.lastError = nil
	}
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- data:
		default:
			dropped++
			h.remove(c.id)
		}
	}
	h.log.Debug("livereload broadcast",
		slog.String("type", string(msg.Type)),
		slog.Int("clients", len(snapshot)),
		slog.Int("dropped", dropped))
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects every client and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.rec.SetLiveReloadClients(0)
}
