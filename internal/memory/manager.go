package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Fixed system instructions, one per pipeline. Synthesized fresh at
// prompt-build time, never stored.
const (
	TextInstruction = "You are a helpful Telegram assistant. " +
		"Be concise, friendly, and helpful. " +
		"Keep responses under 2000 characters for Telegram."

	VoiceInstruction = "You are a helpful voice assistant. " +
		"Keep responses natural and concise for voice. " +
		"Max 500 characters."
)

// NoHistory is the summary sentinel for an empty conversation.
const NoHistory = "No conversation history."

const summaryContentBudget = 80

// PromptMessage is one element of the ordered sequence handed to the
// completion API.
type PromptMessage struct {
	Role    Role
	Content string
}

// Manager is the only path between the pipelines and the history store, so
// the AI always sees the same instruction-plus-window contract and the
// truncation invariant cannot be bypassed.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) RecordUser(ctx context.Context, chatID int64, text string) error {
	return m.store.Append(ctx, chatID, RoleUser, text)
}

func (m *Manager) RecordAssistant(ctx context.Context, chatID int64, text string) error {
	return m.store.Append(ctx, chatID, RoleAssistant, text)
}

// BuildPrompt prepends the given system instruction to the stored window,
// preserving insertion order.
func (m *Manager) BuildPrompt(ctx context.Context, chatID int64, instruction string) ([]PromptMessage, error) {
	history, err := m.store.History(ctx, chatID)
	if err != nil {
		return nil, err
	}

	msgs := make([]PromptMessage, 0, len(history)+1)
	msgs = append(msgs, PromptMessage{Role: RoleSystem, Content: instruction})
	for _, e := range history {
		msgs = append(msgs, PromptMessage{Role: e.Role, Content: e.Content})
	}
	return msgs, nil
}

// Summarize renders the window one line per entry, newest last.
func (m *Manager) Summarize(ctx context.Context, chatID int64) (string, error) {
	history, err := m.store.History(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return NoHistory, nil
	}

	lines := make([]string, 0, len(history))
	for _, e := range history {
		content := e.Content
		// Character budget, not bytes: cutting mid-rune would leak invalid
		// UTF-8 into the status reply.
		if r := []rune(content); len(r) > summaryContentBudget {
			content = string(r[:summaryContentBudget])
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			e.Timestamp.Format(time.RFC3339),
			strings.ToUpper(string(e.Role)),
			content,
		))
	}
	return strings.Join(lines, "\n"), nil
}

func (m *Manager) Clear(ctx context.Context, chatID int64) error {
	return m.store.Clear(ctx, chatID)
}
