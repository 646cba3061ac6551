package doctor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ollavox/ollavox/internal/config"
	"github.com/ollavox/ollavox/internal/voice"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test scripts need a POSIX shell")
	}
}

// fakeServer answers the tags, version and models endpoints like a healthy
// Ollama with the given models installed.
func fakeServer(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		var names []string
		for _, m := range models {
			names = append(names, `{"name":"`+m+`"}`)
		}
		w.Write([]byte(`{"models":[` + strings.Join(names, ",") + `]}`))
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"0.11.4"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func healthyConfig(url string) config.Config {
	cfg := config.Default()
	cfg.Server.URL = url
	cfg.TTS.Mode = "mock"
	cfg.Audio.Player = "aplay"
	return cfg
}

func TestRunHealthy(t *testing.T) {
	srv := fakeServer(t, "llama3.2:latest")
	cfg := healthyConfig(srv.URL)

	var out bytes.Buffer
	d := New(cfg, &out, newLogger())
	checks := d.Run(context.Background())

	if !d.Healthy() {
		t.Fatalf("expected healthy report, got:\n%s", out.String())
	}
	if len(checks) == 0 {
		t.Fatal("expected checks to be recorded")
	}
	if !strings.Contains(out.String(), "version 0.11.4") {
		t.Fatalf("expected server version in report:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "model llama3.2:latest installed") {
		t.Fatalf("expected resolved model in report:\n%s", out.String())
	}
}

func TestRunServerDown(t *testing.T) {
	cfg := healthyConfig("http://127.0.0.1:1")
	cfg.Server.ProbeTimeoutMS = 200

	var out bytes.Buffer
	d := New(cfg, &out, newLogger())
	d.Run(context.Background())

	if d.Healthy() {
		t.Fatalf("expected unhealthy report, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "server not reachable") {
		t.Fatalf("missing server failure line:\n%s", out.String())
	}
	// Speech and playback checks still run with the server down.
	if !strings.Contains(out.String(), "speech mode mock") {
		t.Fatalf("speech check skipped:\n%s", out.String())
	}
}

func TestRunReportsMissingModel(t *testing.T) {
	srv := fakeServer(t, "qwen3:latest")
	cfg := healthyConfig(srv.URL)
	cfg.Chat.Model = "llama3.2"

	var out bytes.Buffer
	d := New(cfg, &out, newLogger())
	d.Run(context.Background())

	if d.Healthy() {
		t.Fatal("expected missing model to fail the report")
	}
	if !strings.Contains(out.String(), "model llama3.2 not installed") {
		t.Fatalf("missing model line:\n%s", out.String())
	}
}

func TestRunChecksVoiceAssets(t *testing.T) {
	requireShell(t)
	srv := fakeServer(t, "llama3.2:latest")

	dir := t.TempDir()
	profile, err := voice.ForTier(voice.TierMedium)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	for _, name := range []string{profile.ModelFile, profile.ConfigFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("present"), 0o644); err != nil {
			t.Fatalf("seed asset: %v", err)
		}
	}

	script := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	cfg := healthyConfig(srv.URL)
	cfg.TTS.Mode = "piper"
	cfg.TTS.Command = script
	cfg.Voice.Dir = dir

	var out bytes.Buffer
	d := New(cfg, &out, newLogger())
	d.Run(context.Background())

	if !d.Healthy() {
		t.Fatalf("expected healthy report, got:\n%s", out.String())
	}
	if got := strings.Count(out.String(), "voice asset present"); got != 2 {
		t.Fatalf("expected both assets reported present, got %d in:\n%s", got, out.String())
	}
}

func TestRunReportsMissingVoiceAssets(t *testing.T) {
	requireShell(t)
	srv := fakeServer(t, "llama3.2:latest")

	script := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	cfg := healthyConfig(srv.URL)
	cfg.TTS.Mode = "piper"
	cfg.TTS.Command = script
	cfg.Voice.Dir = t.TempDir()

	var out bytes.Buffer
	d := New(cfg, &out, newLogger())
	d.Run(context.Background())

	if d.Healthy() {
		t.Fatal("expected missing assets to fail the report")
	}
	if got := strings.Count(out.String(), "voice asset missing"); got != 2 {
		t.Fatalf("expected both assets reported missing, got %d in:\n%s", got, out.String())
	}
}
