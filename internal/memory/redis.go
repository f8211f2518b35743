package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// historyTTL is refreshed on every write so idle conversations expire.
const historyTTL = 30 * 24 * time.Hour

// RedisStore is the networked backend. The full bounded history is stored as
// a JSON array under history:<chatID>, written whole on every append, which
// lets multiple stateless instances share conversation state.
type RedisStore struct {
	client *redis.Client
	max    int
}

func NewRedisStore(ctx context.Context, url string, maxHistory int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisStore{client: client, max: maxHistory}, nil
}

func (s *RedisStore) History(ctx context.Context, chatID int64) ([]Entry, error) {
	data, err := s.client.Get(ctx, redisKey(chatID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get history for chat %d: %v", ErrBackendUnavailable, chatID, err)
	}

	var history []Entry
	if err := json.Unmarshal([]byte(data), &history); err != nil {
		return nil, fmt.Errorf("unmarshal history for chat %d: %w", chatID, err)
	}
	return history, nil
}

// Append is a read-modify-write of the whole value. It is not safe under
// concurrent writers to the same chat; the dispatcher serializes per chat.
func (s *RedisStore) Append(ctx context.Context, chatID int64, role Role, content string) error {
	history, err := s.History(ctx, chatID)
	if err != nil {
		return err
	}

	history = append(history, Entry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	history = bound(history, s.max)

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history for chat %d: %w", chatID, err)
	}

	if err := s.client.Set(ctx, redisKey(chatID), data, historyTTL).Err(); err != nil {
		return fmt.Errorf("%w: set history for chat %d: %v", ErrBackendUnavailable, chatID, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, redisKey(chatID)).Err(); err != nil {
		return fmt.Errorf("%w: clear history for chat %d: %v", ErrBackendUnavailable, chatID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(chatID int64) string {
	return fmt.Sprintf("history:%d", chatID)
}
