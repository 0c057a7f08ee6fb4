package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// StatusEvent is a single SSE message: either a log line (Msg) or a
// status frame (Status, level "status").
type StatusEvent struct {
	Time   string    `json:"t"`
	Level  string    `json:"l,omitempty"`
	Msg    string    `json:"msg,omitempty"`
	Status *Snapshot `json:"status,omitempty"`
}

// StatusBroadcaster distributes log lines and status frames to SSE clients
// and keeps the latest frame for GET /status.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	latest  *Snapshot
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a log line to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Publish records s as the latest frame and sends it to all clients.
// It never blocks the caller: slow clients miss frames.
func (b *StatusBroadcaster) Publish(s Snapshot) {
	b.mu.Lock()
	b.latest = &s
	b.mu.Unlock()
	b.send(StatusEvent{Level: "status", Status: &s})
}

// Latest returns the most recently published frame.
func (b *StatusBroadcaster) Latest() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return Snapshot{}, false
	}
	return *b.latest, true
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
