package speech

import (
	"context"
	"fmt"
	"io"
	"os"

	openai "github.com/openai/openai-go/v3"
)

// Synthesizer renders reply text to an MP3 file.
type Synthesizer struct {
	api openai.Client
}

func NewSynthesizer(api openai.Client) *Synthesizer {
	return &Synthesizer{api: api}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text, outPath string) error {
	resp, err := s.api.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoiceAlloy,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		// Leave no partial artifact behind.
		os.Remove(outPath)
		return fmt.Errorf("%w: write %s: %v", ErrSynthesisFailed, outPath, err)
	}
	return nil
}
