// Package dashboard fetches live data (IoT channel feeds, weather
// forecasts) and turns it into short AI-written summaries for chat
// commands.
package dashboard

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/newdeveloper1101-crypto/Startup/internal/memory"
)

const (
	thingSpeakURL = "https://api.thingspeak.com/channels/%s/feeds.json?results=20"
	openMeteoURL  = "https://api.open-meteo.com/v1/forecast"

	analystInstruction = "You are a data analyst. Provide clear, concise insights from data. " +
		"Keep responses under 500 characters."

	// Raw payloads are clipped before analysis to keep token usage sane.
	dataBudget       = 2000
	analysisMaxToken = 300
)

type completer interface {
	Complete(ctx context.Context, msgs []memory.PromptMessage, maxTokens int64) (string, error)
}

type Manager struct {
	http       *http.Client
	ai         completer
	feedURL    string
	weatherURL string
}

func NewManager(ai completer) *Manager {
	return &Manager{
		http:       &http.Client{Timeout: 10 * time.Second},
		ai:         ai,
		feedURL:    thingSpeakURL,
		weatherURL: openMeteoURL,
	}
}

// ThingSpeakSummary fetches the latest channel feed and summarizes it.
func (m *Manager) ThingSpeakSummary(ctx context.Context, channelID string) (string, error) {
	data, err := m.fetch(ctx, fmt.Sprintf(m.feedURL, url.PathEscape(channelID)))
	if err != nil {
		return "", fmt.Errorf("fetch thingspeak channel %s: %w", channelID, err)
	}

	prompt := fmt.Sprintf(
		"Analyze these IoT sensor readings and identify patterns or anomalies:\n\n%s\n\n"+
			"Provide actionable insights. Focus on trends and any concerning values.", data)
	summary, err := m.analyze(ctx, prompt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📊 ThingSpeak Channel %s Summary\n\n%s", channelID, summary), nil
}

// WeatherSummary fetches the current forecast and summarizes it.
func (m *Manager) WeatherSummary(ctx context.Context, latitude, longitude float64) (string, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", latitude))
	q.Set("longitude", fmt.Sprintf("%g", longitude))
	q.Set("current", "temperature_2m,weather_code,humidity,wind_speed_10m")
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")

	data, err := m.fetch(ctx, m.weatherURL+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("fetch weather: %w", err)
	}

	prompt := fmt.Sprintf(
		"Summarize this weather forecast data for a user:\n\n%s\n\n"+
			"Include current conditions and any weather warnings or notable changes.", data)
	summary, err := m.analyze(ctx, prompt)
	if err != nil {
		return "", err
	}
	return "🌤️ Weather Summary\n\n" + summary, nil
}

func (m *Manager) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	data := string(body)
	// Clip on characters so a multi-byte rune never gets cut in half
	// before the text lands in a prompt.
	if r := []rune(data); len(r) > dataBudget {
		data = string(r[:dataBudget])
	}
	log.Debug("dashboard data fetched", "url", rawURL, "bytes", len(body))
	return data, nil
}

func (m *Manager) analyze(ctx context.Context, prompt string) (string, error) {
	msgs := []memory.PromptMessage{
		{Role: memory.RoleSystem, Content: analystInstruction},
		{Role: memory.RoleUser, Content: prompt},
	}
	summary, err := m.ai.Complete(ctx, msgs, analysisMaxToken)
	if err != nil {
		return "", fmt.Errorf("analyze data: %w", err)
	}
	return summary, nil
}
