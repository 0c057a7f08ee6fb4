package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/BraiGo/internal/logic/cycle"
)

// Snapshot is the JSON view of one published cycle status.
type Snapshot struct {
	State     string          `json:"state"`
	Label     string          `json:"label"`
	Queue     string          `json:"queue"`
	Target    [cycle.Axes]int `json:"target"`
	Positions [cycle.Axes]int `json:"positions"`
	Fault     string          `json:"fault,omitempty"`
}

// FromStatus converts a cycle status into a snapshot.
func FromStatus(s cycle.Status) Snapshot {
	return Snapshot{
		State:     s.State.String(),
		Label:     s.Label(),
		Queue:     s.Queue,
		Target:    [cycle.Axes]int{int(s.Target.Axis1), int(s.Target.Axis2)},
		Positions: s.Positions,
		Fault:     s.Fault,
	}
}

// AxisInfo describes one axis in the device summary.
type AxisInfo struct {
	Name             string `json:"name"`
	StepsPerRotation int    `json:"steps_per_rotation"`
	SectorSteps      int    `json:"sector_steps"`
}

// DeviceInfo is the static device summary served on GET /config.
type DeviceInfo struct {
	Axes          []AxisInfo `json:"axes"`
	QueueCapacity int        `json:"queue_capacity"`
	KeypadLayout  string     `json:"keypad_layout"`
	Display       string     `json:"display"`
	PrintClockMs  int        `json:"print_clock_ms"`
}

// Handlers holds dependencies for HTTP handlers. None of them changes
// device state.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Device      DeviceInfo
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, device DeviceInfo, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Device:      device,
		staticFS:    staticFS,
	}
}

// HandleConfig returns the device summary as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Device)
}

// HandleStatus returns the latest status frame, or 503 before the first one.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Broadcaster.Latest()
	if !ok {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if snap, ok := h.Broadcaster.Latest(); ok {
		data, err := json.Marshal(StatusEvent{
			Time:   time.Now().Format(time.RFC3339),
			Level:  "status",
			Status: &snap,
		})
		if err == nil {
			w.Write([]byte("data: " + string(data) + "\n\n"))
		}
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
