// Package handover tracks which side owns replies for a chat: the AI (BOT)
// or a human operator (AGENT). Transitions are explicit and admin-triggered;
// there is no automatic timeout back to BOT, handover is manual by design.
package handover

import (
	"sync"
	"time"
)

// Takeover records who activated agent mode and when.
type Takeover struct {
	AdminID   int64
	AdminName string
	StartedAt time.Time
}

// Router holds all per-chat mode state. A chat is in exactly one mode at a
// time; the zero state is BOT. Construct one per process and pass it by
// reference, there is no package-level state.
type Router struct {
	mu     sync.RWMutex
	active map[int64]Takeover
}

func NewRouter() *Router {
	return &Router{active: make(map[int64]Takeover)}
}

// AgentActive reports whether a human owns replies for the chat.
func (r *Router) AgentActive(chatID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[chatID]
	return ok
}

// Activate switches the chat to AGENT. Returns false without changing state
// when agent mode is already active, so re-activation is a no-op reply
// rather than an error.
func (r *Router) Activate(chatID, adminID int64, adminName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[chatID]; ok {
		return false
	}
	r.active[chatID] = Takeover{
		AdminID:   adminID,
		AdminName: adminName,
		StartedAt: time.Now().UTC(),
	}
	return true
}

// Deactivate switches the chat back to BOT and clears the takeover metadata.
// Returns false when the chat was already in BOT mode.
func (r *Router) Deactivate(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.active[chatID]
	delete(r.active, chatID)
	return ok
}

// Info returns the takeover metadata for an AGENT-mode chat.
func (r *Router) Info(chatID int64) (Takeover, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.active[chatID]
	return t, ok
}
