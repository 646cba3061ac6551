package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ollavox/ollavox/internal/config"
	"github.com/ollavox/ollavox/internal/ollama"
	"github.com/ollavox/ollavox/internal/transcript"
	"github.com/ollavox/ollavox/internal/voice"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeModel serves /api/chat, recording the messages of every request.
type fakeModel struct {
	mu    sync.Mutex
	calls [][]ollama.Message
	reply string
	fail  string
	delay time.Duration
}

func (f *fakeModel) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model    string           `json:"model"`
			Messages []ollama.Message `json:"messages"`
			Stream   bool             `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chat request: %v", err)
			return
		}
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		f.mu.Lock()
		f.calls = append(f.calls, req.Messages)
		fail, reply := f.fail, f.reply
		f.mu.Unlock()

		if fail != "" {
			json.NewEncoder(w).Encode(map[string]string{"error": fail})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"message": ollama.Message{Role: ollama.RoleAssistant, Content: reply},
			"done":    true,
		})
	}
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeModel) messagesOf(i int) []ollama.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// recordingSynth writes a dummy artifact and remembers what it was asked for.
type recordingSynth struct {
	texts  []string
	models []string
	paths  []string
	fail   bool
}

func (r *recordingSynth) Synthesize(_ context.Context, text, modelPath string) (string, error) {
	if r.fail {
		return "", errors.New("synthesizer offline")
	}
	f, err := os.CreateTemp("", "ollavox_test_*.wav")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString("RIFF"); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	r.texts = append(r.texts, text)
	r.models = append(r.models, modelPath)
	r.paths = append(r.paths, f.Name())
	return f.Name(), nil
}

func newTestOrchestrator(t *testing.T, url string, adjust func(*Options)) *Orchestrator {
	t.Helper()
	profile, err := voice.ForTier(voice.TierMedium)
	if err != nil {
		t.Fatalf("medium profile: %v", err)
	}
	opts := Options{
		Client:   ollama.NewClient(url, newLogger()),
		Model:    "llama3.2",
		Profile:  profile,
		VoiceDir: t.TempDir(),
		Timeout:  5 * time.Second,
	}
	if adjust != nil {
		adjust(&opts)
	}
	return NewOrchestrator(opts, newLogger())
}

func TestSendTurnBuildsHistory(t *testing.T) {
	model := &fakeModel{reply: "hello back"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	o := newTestOrchestrator(t, srv.URL, nil)

	reply, err := o.SendTurn(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if reply != "hello back" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got := len(model.messagesOf(0)); got != 1 {
		t.Fatalf("first request carried %d messages, want 1", got)
	}

	if _, err := o.SendTurn(context.Background(), "and again", false); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if model.callCount() != 2 {
		t.Fatalf("server saw %d requests, want 2", model.callCount())
	}
	second := model.messagesOf(1)
	if len(second) != 3 {
		t.Fatalf("second request carried %d messages, want 3", len(second))
	}
	if second[1].Role != ollama.RoleAssistant || second[1].Content != "hello back" {
		t.Fatalf("second request did not include the prior reply: %+v", second)
	}
	if o.History().Len() != 4 {
		t.Fatalf("history length = %d, want 4", o.History().Len())
	}
}

func TestSystemPromptLeadsHistory(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	o := newTestOrchestrator(t, srv.URL, func(opts *Options) {
		opts.System = "be terse"
	})

	if _, err := o.SendTurn(context.Background(), "hi", false); err != nil {
		t.Fatalf("send turn: %v", err)
	}
	msgs := model.messagesOf(0)
	if len(msgs) != 2 {
		t.Fatalf("request carried %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != ollama.RoleSystem || msgs[0].Content != "be terse" {
		t.Fatalf("system prompt not first: %+v", msgs[0])
	}
}

func TestSendTurnRollsBackOnServerError(t *testing.T) {
	model := &fakeModel{fail: "model exploded"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	o := newTestOrchestrator(t, srv.URL, nil)

	if _, err := o.SendTurn(context.Background(), "hello", false); err == nil {
		t.Fatal("expected an error from the failing server")
	}
	if o.History().Len() != 0 {
		t.Fatalf("failed turn left %d messages in history", o.History().Len())
	}

	// The retry must not resend the rolled-back turn.
	model.mu.Lock()
	model.fail = ""
	model.reply = "recovered"
	model.mu.Unlock()
	if _, err := o.SendTurn(context.Background(), "hello again", false); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := len(model.messagesOf(1)); got != 1 {
		t.Fatalf("retry carried %d messages, want 1", got)
	}
}

func TestSendTurnRollsBackOnMissingMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"done": true})
	}))
	t.Cleanup(srv.Close)

	o := newTestOrchestrator(t, srv.URL, nil)

	_, err := o.SendTurn(context.Background(), "hello", false)
	if err == nil || !strings.Contains(err.Error(), "missing message") {
		t.Fatalf("expected missing message error, got %v", err)
	}
	if o.History().Len() != 0 {
		t.Fatalf("failed turn left %d messages in history", o.History().Len())
	}
}

func TestSendTurnTimesOut(t *testing.T) {
	model := &fakeModel{reply: "too late", delay: 300 * time.Millisecond}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	o := newTestOrchestrator(t, srv.URL, func(opts *Options) {
		opts.Timeout = 50 * time.Millisecond
	})

	_, err := o.SendTurn(context.Background(), "hello", false)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if o.History().Len() != 0 {
		t.Fatalf("timed-out turn left %d messages in history", o.History().Len())
	}
}

func TestSpeakFailureDoesNotFailTurn(t *testing.T) {
	model := &fakeModel{reply: "still fine"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	synth := &recordingSynth{fail: true}
	o := newTestOrchestrator(t, srv.URL, func(opts *Options) {
		opts.Synth = synth
	})

	reply, err := o.SendTurn(context.Background(), "hello", true)
	if err != nil {
		t.Fatalf("turn failed on synthesis error: %v", err)
	}
	if reply != "still fine" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if o.History().Len() != 2 {
		t.Fatalf("history length = %d, want 2", o.History().Len())
	}
}

func TestSilentTurnSkipsSynthesis(t *testing.T) {
	model := &fakeModel{reply: "just text"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	synth := &recordingSynth{}
	o := newTestOrchestrator(t, srv.URL, func(opts *Options) {
		opts.Synth = synth
	})

	reply, err := o.SendTurn(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if reply != "just text" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(synth.texts) != 0 {
		t.Fatalf("synthesizer ran for a silent turn: %v", synth.texts)
	}
}

func TestSpeakRendersAndCleansUp(t *testing.T) {
	model := &fakeModel{reply: "read me aloud"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	synth := &recordingSynth{}
	o := newTestOrchestrator(t, srv.URL, func(opts *Options) {
		opts.Synth = synth
	})

	if _, err := o.SendTurn(context.Background(), "hello", true); err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if len(synth.texts) != 1 || synth.texts[0] != "read me aloud" {
		t.Fatalf("synthesizer saw %v", synth.texts)
	}
	if !strings.HasSuffix(synth.models[0], "en_US-lessac-medium.onnx") {
		t.Fatalf("unexpected voice model %q", synth.models[0])
	}
	if _, err := os.Stat(synth.paths[0]); !os.IsNotExist(err) {
		t.Fatalf("audio artifact %s was not removed", synth.paths[0])
	}
}

func TestSwitchVoice(t *testing.T) {
	model := &fakeModel{reply: "higher now"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	var provisioned []string
	synth := &recordingSynth{}
	o := newTestOrchestrator(t, srv.URL, func(opts *Options) {
		opts.Synth = synth
		opts.Provision = func(_ context.Context, p voice.Profile) error {
			provisioned = append(provisioned, p.Tier)
			return nil
		}
	})

	// A turn before the switch speaks with the starting voice.
	if _, err := o.SendTurn(context.Background(), "hello", true); err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if !strings.HasSuffix(synth.models[0], "en_US-lessac-medium.onnx") {
		t.Fatalf("pre-switch synthesis used %q", synth.models[0])
	}

	if err := o.SwitchVoice(context.Background(), voice.TierHigh); err != nil {
		t.Fatalf("switch voice: %v", err)
	}
	if len(provisioned) != 1 || provisioned[0] != voice.TierHigh {
		t.Fatalf("provision calls = %v", provisioned)
	}
	if o.Voice().Tier != voice.TierHigh {
		t.Fatalf("active tier = %q, want high", o.Voice().Tier)
	}

	if _, err := o.SendTurn(context.Background(), "hello again", true); err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if !strings.HasSuffix(synth.models[1], "en_US-lessac-high.onnx") {
		t.Fatalf("synthesis used %q after switching to high", synth.models[1])
	}
}

func TestSwitchVoiceUnknownTier(t *testing.T) {
	o := newTestOrchestrator(t, "http://localhost:0", func(opts *Options) {
		opts.Provision = func(context.Context, voice.Profile) error {
			t.Fatal("provision must not run for an unknown tier")
			return nil
		}
	})

	if err := o.SwitchVoice(context.Background(), "ultra"); err == nil {
		t.Fatal("expected an error for an unknown tier")
	}
	if o.Voice().Tier != voice.TierMedium {
		t.Fatalf("active tier changed to %q", o.Voice().Tier)
	}
}

func TestSwitchVoiceKeepsCurrentOnProvisionFailure(t *testing.T) {
	o := newTestOrchestrator(t, "http://localhost:0", func(opts *Options) {
		opts.Provision = func(context.Context, voice.Profile) error {
			return errors.New("registry unreachable")
		}
	})

	err := o.SwitchVoice(context.Background(), voice.TierHigh)
	if err == nil || !strings.Contains(err.Error(), "registry unreachable") {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	if o.Voice().Tier != voice.TierMedium {
		t.Fatalf("active tier changed to %q", o.Voice().Tier)
	}
}

func TestTurnsAreRecorded(t *testing.T) {
	model := &fakeModel{reply: "for the record"}
	srv := httptest.NewServer(model.handler(t))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store, err := transcript.Open(ctx, config.TranscriptConfig{
		Mode: "persistent",
		Path: filepath.Join(t.TempDir(), "transcripts.db"),
	}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	const session = "session-1"
	if err := store.BeginSession(ctx, session, "llama3.2", voice.TierMedium); err != nil {
		t.Fatalf("begin session: %v", err)
	}

	o := newTestOrchestrator(t, srv.URL, func(opts *Options) {
		opts.Store = store
		opts.SessionID = session
	})

	if _, err := o.SendTurn(ctx, "remember this", false); err != nil {
		t.Fatalf("send turn: %v", err)
	}

	turns, err := store.SessionTurns(ctx, session, 0)
	if err != nil {
		t.Fatalf("session turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("recorded %d turns, want 2", len(turns))
	}
	if turns[0].Role != ollama.RoleUser || turns[0].Content != "remember this" {
		t.Fatalf("unexpected first turn %+v", turns[0])
	}
	if turns[1].Role != ollama.RoleAssistant || turns[1].Content != "for the record" {
		t.Fatalf("unexpected second turn %+v", turns[1])
	}
}

func TestParseInput(t *testing.T) {
	cases := []struct {
		line string
		want Input
	}{
		{"", Input{Kind: KindEmpty}},
		{"   ", Input{Kind: KindEmpty}},
		{"quit", Input{Kind: KindQuit}},
		{"QUIT", Input{Kind: KindQuit}},
		{"exit", Input{Kind: KindQuit}},
		{"Bye", Input{Kind: KindQuit}},
		{"voice:high", Input{Kind: KindVoice, Text: "high"}},
		{"VOICE: high ", Input{Kind: KindVoice, Text: "high"}},
		{"voice:HIGH", Input{Kind: KindVoice, Text: "HIGH"}},
		{"voice:", Input{Kind: KindVoice, Text: ""}},
		{"hello there", Input{Kind: KindChat, Text: "hello there"}},
		{"  padded  ", Input{Kind: KindChat, Text: "padded"}},
	}
	for _, tc := range cases {
		if got := ParseInput(tc.line); got != tc.want {
			t.Errorf("ParseInput(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestHistoryDropLastOnEmpty(t *testing.T) {
	h := NewHistory()
	h.DropLast()
	if h.Len() != 0 {
		t.Fatalf("len = %d, want 0", h.Len())
	}
}
