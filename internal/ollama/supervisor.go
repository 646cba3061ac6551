package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/ollavox/ollavox/internal/config"
)

// Supervisor makes sure a local inference server is reachable, launching a
// detached one when the initial probe fails.
type Supervisor struct {
	client   *Client
	cfg      config.ServerConfig
	logger   *slog.Logger
	launch   func(binary string) error
	lookPath func(file string) (string, error)
}

func NewSupervisor(client *Client, cfg config.ServerConfig, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		client:   client,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "supervisor")),
		launch:   launchDetached,
		lookPath: exec.LookPath,
	}
}

// Running probes the server once with the configured probe timeout.
func (s *Supervisor) Running(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ProbeTimeoutMS)*time.Millisecond)
	defer cancel()
	return s.client.Ping(probeCtx) == nil
}

// EnsureRunning probes the server and, when it is down, starts one in the
// background and polls until it answers or the attempt budget is spent.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	if s.Running(ctx) {
		s.logger.Info("server already running", slog.String("url", s.client.BaseURL()))
		return nil
	}

	binary, err := s.locateBinary()
	if err != nil {
		return fmt.Errorf("locate server binary: %w", err)
	}
	s.logger.Info("starting server", slog.String("binary", binary))
	if err := s.launch(binary); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	interval := time.Duration(s.cfg.StartIntervalMS) * time.Millisecond
	for attempt := 0; attempt < s.cfg.StartAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		if s.Running(ctx) {
			s.logger.Info("server started", slog.String("url", s.client.BaseURL()))
			return nil
		}
	}
	return fmt.Errorf("server did not become ready after %d attempts", s.cfg.StartAttempts)
}

func (s *Supervisor) locateBinary() (string, error) {
	if s.cfg.Binary != "" {
		return s.cfg.Binary, nil
	}
	if path, err := s.lookPath("ollama"); err == nil {
		return path, nil
	}
	for _, candidate := range defaultBinaryCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("ollama binary not found in PATH")
}
