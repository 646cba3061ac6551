package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const mockSampleRate = 22050

// mockSynth renders a short silent clip so the pipeline can run end to end
// without a real engine installed.
type mockSynth struct {
	logger *slog.Logger
}

func NewMockSynth(logger *slog.Logger) Synthesizer {
	return &mockSynth{logger: logger.With(slog.String("component", "tts"))}
}

func (m *mockSynth) Synthesize(ctx context.Context, text, modelPath string) (string, error) {
	out, err := os.CreateTemp("", "ollavox_tts_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer out.Close()

	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: mockSampleRate},
		Data:   make([]int, mockSampleRate/5),
	}
	enc := wav.NewEncoder(out, mockSampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("close wav encoder: %w", err)
	}

	m.logger.Info("mock synthesis", slog.Int("chars", len(text)))
	return out.Name(), nil
}
