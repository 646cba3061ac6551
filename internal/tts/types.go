package tts

import "context"

// Synthesizer turns text into a playable audio artifact on disk.
type Synthesizer interface {
	// Synthesize renders text with the given voice model and returns the
	// path of a temporary WAV file. The caller owns the file.
	Synthesize(ctx context.Context, text, modelPath string) (string, error)
}
