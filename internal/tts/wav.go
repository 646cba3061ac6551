package tts

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Duration reads a WAV header and reports the audio length.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dur, err := wav.NewDecoder(f).Duration()
	if err != nil {
		return 0, fmt.Errorf("decode wav: %w", err)
	}
	return dur, nil
}
