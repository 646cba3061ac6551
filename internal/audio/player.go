package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Player resolves and runs the platform's audio playback command.
type Player struct {
	override []string
	timeout  time.Duration
	logger   *slog.Logger
	goos     string
	lookPath func(file string) (string, error)
}

// NewPlayer builds a player. command, when non-empty, replaces platform
// detection entirely; the file path is appended as the last argument.
func NewPlayer(command string, timeout time.Duration, logger *slog.Logger) (*Player, error) {
	p := &Player{
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "audio")),
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
	if command != "" {
		parser := shellwords.NewParser()
		args, err := parser.Parse(command)
		if err != nil {
			return nil, fmt.Errorf("parse audio player command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("audio player command empty")
		}
		p.override = args
	}
	return p, nil
}

// Command resolves the playback invocation for a file without running it.
func (p *Player) Command(path string) ([]string, error) {
	if len(p.override) > 0 {
		return append(append([]string{}, p.override...), path), nil
	}
	switch p.goos {
	case "darwin":
		return []string{"afplay", path}, nil
	case "windows":
		// single quotes double inside single-quoted PowerShell strings
		quoted := strings.ReplaceAll(path, "'", "''")
		script := fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", quoted)
		return []string{"powershell", "-NoProfile", "-Command", script}, nil
	default:
		for _, candidate := range []string{"aplay", "paplay", "ffplay"} {
			if _, err := p.lookPath(candidate); err != nil {
				continue
			}
			if candidate == "ffplay" {
				return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", path}, nil
			}
			return []string{candidate, path}, nil
		}
		return nil, fmt.Errorf("no audio player found (tried: aplay, paplay, ffplay)")
	}
}

// Play blocks until playback finishes or the timeout lapses.
func (p *Player) Play(ctx context.Context, path string) error {
	argv, err := p.Command(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("playback timed out after %s", p.timeout)
		}
		return fmt.Errorf("playback failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	p.logger.Debug("playback finished",
		slog.String("player", argv[0]),
		slog.Duration("took", time.Since(start)))
	return nil
}
