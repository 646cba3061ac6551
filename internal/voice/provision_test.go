package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry(base string, p Profile) *Registry {
	r := &Registry{urls: map[string]string{}}
	r.Merge(map[string]string{
		p.ModelFile:  base + "/" + p.ModelFile,
		p.ConfigFile: base + "/" + p.ConfigFile,
	})
	return r
}

func TestEnsureVoiceDownloadsMissingAssets(t *testing.T) {
	profile, err := ForTier(TierMedium)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}

	model := []byte("onnx-model-bytes")
	cfgJSON := []byte(`{"audio":{"sample_rate":22050}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch filepath.Base(r.URL.Path) {
		case profile.ModelFile:
			w.Write(model)
		case profile.ConfigFile:
			w.Write(cfgJSON)
		default:
			t.Fatalf("unexpected asset request %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	dir := filepath.Join(t.TempDir(), "voices")
	var reads []int64
	var lastTotal int64
	p := NewProvisioner(dir, testRegistry(srv.URL, profile), newLogger(), func(name string, read, total int64) {
		reads = append(reads, read)
		lastTotal = total
	})

	if err := p.EnsureVoice(context.Background(), profile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(profile.ModelPath(dir))
	if err != nil {
		t.Fatalf("read model: %v", err)
	}
	if string(got) != string(model) {
		t.Fatalf("model content mismatch")
	}
	got, err = os.ReadFile(profile.ConfigPath(dir))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(got) != string(cfgJSON) {
		t.Fatalf("config content mismatch")
	}

	if len(reads) == 0 {
		t.Fatal("expected progress callbacks during model download")
	}
	if reads[len(reads)-1] != int64(len(model)) {
		t.Fatalf("expected final read %d, got %d", len(model), reads[len(reads)-1])
	}
	if lastTotal != int64(len(model)) {
		t.Fatalf("expected total %d, got %d", len(model), lastTotal)
	}
	if _, err := os.Stat(profile.ModelPath(dir) + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected temp download file to be renamed away")
	}
}

func TestEnsureVoiceIdempotent(t *testing.T) {
	profile, err := ForTier(TierHigh)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	for _, name := range []string{profile.ModelFile, profile.ConfigFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("present"), 0o644); err != nil {
			t.Fatalf("seed asset: %v", err)
		}
	}

	p := NewProvisioner(dir, testRegistry(srv.URL, profile), newLogger(), nil)
	for i := 0; i < 2; i++ {
		if err := p.EnsureVoice(context.Background(), profile); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
		if hits.Load() != 0 {
			t.Fatalf("call %d: expected no network activity, got %d requests", i+1, hits.Load())
		}
	}
}

func TestEnsureVoiceUnknownAsset(t *testing.T) {
	profile := Profile{Tier: "custom", ModelFile: "bogus.onnx", ConfigFile: "bogus.onnx.json"}
	p := NewProvisioner(t.TempDir(), Builtin(), newLogger(), nil)
	err := p.EnsureVoice(context.Background(), profile)
	if !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestEnsureVoiceServerError(t *testing.T) {
	profile, _ := ForTier(TierMedium)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	p := NewProvisioner(t.TempDir(), testRegistry(srv.URL, profile), newLogger(), nil)
	if err := p.EnsureVoice(context.Background(), profile); err == nil {
		t.Fatal("expected error on non-200 download response")
	}
}

func TestDownloadStreamsProgress(t *testing.T) {
	profile, _ := ForTier(TierMedium)
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.Write(payload[:500])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		w.Write(payload[500:])
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	var reads []int64
	p := NewProvisioner(dir, testRegistry(srv.URL, profile), newLogger(), func(name string, read, total int64) {
		if name != profile.ModelFile {
			return
		}
		reads = append(reads, read)
	})

	if err := p.download(context.Background(), srv.URL+"/"+profile.ModelFile, filepath.Join(dir, profile.ModelFile), profile.ModelFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reads) < 2 {
		t.Fatalf("expected incremental progress, got %d callbacks", len(reads))
	}
	for i := 1; i < len(reads); i++ {
		if reads[i] < reads[i-1] {
			t.Fatalf("progress went backwards: %v", reads)
		}
	}
	if reads[len(reads)-1] != int64(len(payload)) {
		t.Fatalf("expected final read %d, got %d", len(payload), reads[len(reads)-1])
	}

	got, err := os.ReadFile(filepath.Join(dir, profile.ModelFile))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("downloaded file does not match the served chunks")
	}
}
