package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/joescharf/campus/internal/view"
)

// Heartbeat is the SSE keep-alive interval.
const Heartbeat = 25 * time.Second

// clientBuffer bounds each stream's queue; a client that falls further
// behind is disconnected and resyncs on reconnect.
const clientBuffer = 256

// event is one SSE payload.
type event struct {
	Type   string `json:"type"`
	Region string `json:"region,omitempty"`
	HTML   string `json:"html,omitempty"`
	Busy   bool   `json:"busy,omitempty"`
	Label  string `json:"label,omitempty"`
	Theme  string `json:"theme,omitempty"`
	Form   string `json:"form,omitempty"`
}

// surface fans a session's view updates out to every open stream of that
// session (one per browser tab).
type surface struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func newSurface() *surface {
	return &surface{clients: make(map[chan []byte]struct{})}
}

func (s *surface) Replace(region view.Region, html string) {
	s.publish(event{Type: "replace", Region: string(region), HTML: html})
}

func (s *surface) SetBusy(busy bool, label string) {
	s.publish(event{Type: "busy", Busy: busy, Label: label})
}

func (s *surface) SetTheme(theme string) {
	s.publish(event{Type: "theme", Theme: theme})
}

func (s *surface) ResetForm(form string) {
	s.publish(event{Type: "reset", Form: form})
}

func (s *surface) publish(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			delete(s.clients, ch)
			close(ch)
		}
	}
}

func (s *surface) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, clientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.clients[ch]; ok {
			delete(s.clients, ch)
			close(ch)
		}
	}
}

func (s *surface) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// serveSSE streams events until the client goes away. initial is written
// first so a reconnecting tab catches up.
func (s *surface) serveSSE(w http.ResponseWriter, r *http.Request, initial [][]byte, heartbeat time.Duration) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.subscribe()
	defer cancel()

	_, _ = w.Write([]byte(": connected\n\n"))
	for _, msg := range initial {
		writeData(w, msg)
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeData(w, msg)
			flusher.Flush()
		}
	}
}

func writeData(w http.ResponseWriter, msg []byte) {
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(msg)
	_, _ = w.Write([]byte("\n\n"))
}

// snapshotEvents renders every region of m as replace events.
func snapshotEvents(r *view.Renderer, m view.Model) [][]byte {
	regions := []view.Region{view.RegionStatus, view.RegionNotification, view.RegionHeader, view.RegionForms, view.RegionIssues}
	out := make([][]byte, 0, len(regions)+2)
	for _, region := range regions {
		html, err := r.Region(region, m)
		if err != nil {
			continue
		}
		if data, err := json.Marshal(event{Type: "replace", Region: string(region), HTML: html}); err == nil {
			out = append(out, data)
		}
	}
	if data, err := json.Marshal(event{Type: "theme", Theme: m.Theme}); err == nil {
		out = append(out, data)
	}
	if data, err := json.Marshal(event{Type: "busy", Busy: m.Busy, Label: m.BusyLabel}); err == nil {
		out = append(out, data)
	}
	return out
}
