// Package opsfeed pushes live dispatch events to connected monitoring
// clients over websocket. A nil *Hub is valid and publishes nothing, so the
// feed can stay switched off when no address is configured.
package opsfeed

import (
	"encoding/json"
	log "log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// Event is one observable dispatch outcome.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"` // text | voice | command | mode
	Chat    int64     `json:"chat"`
	Outcome string    `json:"outcome"`
}

type Hub struct {
	mu       sync.Mutex
	clients  map[*ws.Conn]struct{}
	upgrader ws.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*ws.Conn]struct{}),
		upgrader: ws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve blocks, accepting monitoring clients on /feed.
func (h *Hub) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", h.handleFeed)
	log.Info("ops feed listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func (h *Hub) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("feed upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	log.Debug("feed client connected", "remote", conn.RemoteAddr())

	// Drain control frames; drop the client when it goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Publish fans the event out to every client. Slow or dead clients are
// dropped rather than allowed to stall dispatch.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Warn("feed marshal failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(ws.TextMessage, payload); err != nil {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *Hub) drop(conn *ws.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}
