package memory

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrBackendUnavailable marks connectivity or timeout failures of a remote
// backend. Callers decide whether to degrade or abort the turn.
var ErrBackendUnavailable = errors.New("memory backend unavailable")

// Entry is a single stored message. Immutable once appended; system entries
// are never stored, they are synthesized at prompt-build time.
type Entry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps a bounded, insertion-ordered history per chat. Append must
// enforce the bound: after it returns, the stored window holds at most
// MaxHistory entries, the most recent ones, oldest evicted first. A failed
// Append leaves the previous value untouched.
type Store interface {
	History(ctx context.Context, chatID int64) ([]Entry, error)
	Append(ctx context.Context, chatID int64, role Role, content string) error
	Clear(ctx context.Context, chatID int64) error
}

// bound trims history to the max most recent entries, preserving order.
func bound(history []Entry, max int) []Entry {
	if max > 0 && len(history) > max {
		return history[len(history)-max:]
	}
	return history
}
