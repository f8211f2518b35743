package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime option. All values are read once at startup;
// there is no hot reload.
type Config struct {
	// Core
	TelegramToken string
	OpenAIKey     string
	AdminIDs      map[int64]bool

	// Memory
	MaxHistory int
	UseRedis   bool
	RedisURL   string

	// AI
	Model          string
	Temperature    float64
	MaxTokens      int64
	VoiceMaxTokens int64

	// Voice
	TempAudioDir     string
	MaxVoiceDuration int // seconds

	// Safety
	MaxMessageLength int

	// Optional surfaces
	OpsFeedAddr string
	SocksProxy  string

	// External call budgets
	CompletionTimeout time.Duration
	SpeechTimeout     time.Duration
}

// Load builds a Config from the environment.
func Load() Config {
	return Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		AdminIDs:      parseAdminIDs(os.Getenv("ADMIN_IDS")),

		MaxHistory: envInt("MAX_HISTORY", 6),
		UseRedis:   strings.EqualFold(os.Getenv("USE_REDIS"), "true"),
		RedisURL:   envStr("REDIS_URL", "redis://localhost:6379"),

		Model:          envStr("MODEL", "gpt-4o-mini"),
		Temperature:    0.7,
		MaxTokens:      1500,
		VoiceMaxTokens: 500,

		TempAudioDir:     envStr("TEMP_AUDIO_DIR", "./audio_temp"),
		MaxVoiceDuration: envInt("MAX_VOICE_DURATION", 120),

		MaxMessageLength: envInt("MAX_MESSAGE_LENGTH", 2000),

		OpsFeedAddr: os.Getenv("OPS_FEED_ADDR"),
		SocksProxy:  os.Getenv("SOCKS_PROXY"),

		CompletionTimeout: 60 * time.Second,
		SpeechTimeout:     120 * time.Second,
	}
}

// Validate reports the first fatal misconfiguration.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("MAX_HISTORY must be positive, got %d", c.MaxHistory)
	}
	return nil
}

// IsAdmin reports whether the sender is on the admin allow-list.
func (c Config) IsAdmin(userID int64) bool {
	return c.AdminIDs[userID]
}

// Redacted returns startup-loggable key/value pairs with secrets masked.
func (c Config) Redacted() []any {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return []any{
		"telegram_token", mask(c.TelegramToken),
		"openai_api_key", mask(c.OpenAIKey),
		"admins", len(c.AdminIDs),
		"max_history", c.MaxHistory,
		"use_redis", c.UseRedis,
		"model", c.Model,
	}
}

func parseAdminIDs(raw string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids[id] = true
	}
	return ids
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
