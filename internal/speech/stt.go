package speech

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Transcriber converts canonical WAV audio to text via the Whisper API.
type Transcriber struct {
	api openai.Client
}

func NewTranscriber(api openai.Client) *Transcriber {
	return &Transcriber{api: api}
}

func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", wavPath, err)
	}
	defer f.Close()

	resp, err := t.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  f,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognitionUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrRecognitionFailed
	}
	return text, nil
}
