package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LocalStore is the in-process backend. State lives for the lifetime of the
// process and is safe only within a single instance.
type LocalStore struct {
	mu      sync.Mutex
	entries *gocache.Cache
	max     int
}

func NewLocalStore(maxHistory int) *LocalStore {
	return &LocalStore{
		entries: gocache.New(gocache.NoExpiration, 10*time.Minute),
		max:     maxHistory,
	}
}

func (s *LocalStore) History(_ context.Context, chatID int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries.Get(localKey(chatID))
	if !ok {
		return nil, nil
	}
	history := v.([]Entry)
	out := make([]Entry, len(history))
	copy(out, history)
	return out, nil
}

func (s *LocalStore) Append(_ context.Context, chatID int64, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := localKey(chatID)
	var history []Entry
	if v, ok := s.entries.Get(key); ok {
		history = v.([]Entry)
	}

	history = append(history, Entry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	s.entries.Set(key, bound(history, s.max), gocache.NoExpiration)
	return nil
}

func (s *LocalStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries.Delete(localKey(chatID))
	return nil
}

func localKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
