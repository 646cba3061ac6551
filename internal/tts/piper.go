package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Piper synthesizes speech by invoking the piper CLI once per utterance.
type Piper struct {
	cmd     []string
	timeout time.Duration
	logger  *slog.Logger
}

func NewPiper(command string, timeout time.Duration, logger *slog.Logger) (*Piper, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &Piper{cmd: args, timeout: timeout, logger: logger.With(slog.String("component", "tts"))}, nil
}

// Check verifies the engine binary can be executed at all. A non-zero exit
// from --help still counts as present.
func (p *Piper) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	args := append(append([]string{}, p.cmd[1:]...), "--help")
	cmd := exec.CommandContext(ctx, p.cmd[0], args...)
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return fmt.Errorf("piper not available: %w", err)
	}
	return nil
}

// Synthesize renders text with the given voice model and returns the path of
// a temporary WAV file.
func (p *Piper) Synthesize(ctx context.Context, text, modelPath string) (string, error) {
	out, err := os.CreateTemp("", "ollavox_tts_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	outPath := out.Name()
	out.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append([]string{}, p.cmd[1:]...)
	args = append(args, "--model", modelPath, "--output_file", outPath)
	cmd := exec.CommandContext(ctx, p.cmd[0], args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("piper timed out after %s", p.timeout)
		}
		return "", fmt.Errorf("piper failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outPath)
		return "", fmt.Errorf("piper produced no audio")
	}

	duration, err := Duration(outPath)
	switch {
	case err != nil:
		p.logger.Warn("could not inspect synthesized audio", slogError(err))
	case duration == 0:
		os.Remove(outPath)
		return "", fmt.Errorf("piper produced empty audio")
	default:
		p.logger.Debug("synthesized speech",
			slog.Duration("audio", duration),
			slog.Duration("took", time.Since(start)))
	}
	return outPath, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
