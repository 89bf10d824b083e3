// Package ws pushes live job updates to connected dashboard browsers. The
// UI only ever sees snapshots; it never mutates job state over this channel.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/fieldform/dashboard/internal/job"
)

type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

type frame struct {
	Type      string    `json:"type"` // "job_update" or "notice"
	Category  string    `json:"category,omitempty"`
	Job       any       `json:"job,omitempty"`
	Level     string    `json:"level,omitempty"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JobUpdated broadcasts a job snapshot to every connected browser.
func (h *Hub) JobUpdated(cat job.Category, record any) {
	h.broadcast(frame{
		Type:      "job_update",
		Category:  string(cat),
		Job:       record,
		Timestamp: time.Now().UTC(),
	})
}

// Notice broadcasts a one-time user-visible notification.
func (h *Hub) Notice(level, title, message string) {
	h.broadcast(frame{
		Type:      "notice",
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) broadcast(f frame) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := wsjson.Write(ctx, c, f); err != nil {
			slog.Warn("websocket write failed", "error", err)
		}
		cancel()
	}
}

// Handle upgrades the request and keeps the connection registered until the
// browser goes away. Client frames are drained and ignored.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "goodbye")

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}
