package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ollavox/ollavox/internal/audio"
	"github.com/ollavox/ollavox/internal/ollama"
	"github.com/ollavox/ollavox/internal/transcript"
	"github.com/ollavox/ollavox/internal/tts"
	"github.com/ollavox/ollavox/internal/voice"
)

// ProvisionFunc fetches the assets for a voice profile before it becomes the
// active one. Implementations must be idempotent.
type ProvisionFunc func(ctx context.Context, profile voice.Profile) error

// Options bundles the collaborators an Orchestrator needs. Synth and Player
// may be nil, which disables synthesis and playback respectively. Store may
// be nil or ephemeral, in which case turns are not recorded.
type Options struct {
	Client    *ollama.Client
	Model     string
	System    string
	Synth     tts.Synthesizer
	Player    *audio.Player
	Profile   voice.Profile
	VoiceDir  string
	Provision ProvisionFunc
	Store     *transcript.Store
	SessionID string
	Timeout   time.Duration
}

// Orchestrator drives the conversation loop: user turn in, model reply out,
// optional speech on the side. It is not safe for concurrent use; the
// interactive prompt is strictly sequential.
type Orchestrator struct {
	client    *ollama.Client
	model     string
	history   *History
	synth     tts.Synthesizer
	player    *audio.Player
	profile   voice.Profile
	voiceDir  string
	provision ProvisionFunc
	store     *transcript.Store
	sessionID string
	timeout   time.Duration
	logger    *slog.Logger

	tracer        trace.Tracer
	turns         metric.Int64Counter
	turnFailures  metric.Int64Counter
	speakFailures metric.Int64Counter
}

func NewOrchestrator(opts Options, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		client:    opts.Client,
		model:     opts.Model,
		history:   NewHistory(),
		synth:     opts.Synth,
		player:    opts.Player,
		profile:   opts.Profile,
		voiceDir:  opts.VoiceDir,
		provision: opts.Provision,
		store:     opts.Store,
		sessionID: opts.SessionID,
		timeout:   opts.Timeout,
		logger:    logger.With(slog.String("component", "orchestrator")),
		tracer:    otel.Tracer("github.com/ollavox/ollavox/chat"),
	}
	if err := o.initMetrics(otel.Meter("github.com/ollavox/ollavox/chat")); err != nil {
		o.logger.Warn("failed to initialize metrics", slogError(err))
	}
	if opts.System != "" {
		o.history.Append(ollama.RoleSystem, opts.System)
	}
	return o
}

func (o *Orchestrator) initMetrics(meter metric.Meter) error {
	turns, err := meter.Int64Counter("ollavox.chat.turns", metric.WithDescription("Completed chat turns"))
	if err != nil {
		return err
	}
	turnFailures, err := meter.Int64Counter("ollavox.chat.turn_failures", metric.WithDescription("Chat turns rolled back after a request failure"))
	if err != nil {
		return err
	}
	speakFailures, err := meter.Int64Counter("ollavox.chat.speak_failures", metric.WithDescription("Replies that could not be synthesized or played"))
	if err != nil {
		return err
	}
	o.turns = turns
	o.turnFailures = turnFailures
	o.speakFailures = speakFailures
	return nil
}

// Voice reports the profile used for the next spoken reply.
func (o *Orchestrator) Voice() voice.Profile {
	return o.profile
}

// History exposes the running conversation, mainly for inspection in tests.
func (o *Orchestrator) History() *History {
	return o.history
}

// SendTurn appends the user turn, asks the model for a reply, and returns the
// assistant text. On any request failure the user turn is removed again so
// the conversation state is exactly what it was before the call. When speak
// is set the reply is also synthesized and played; synthesis and playback
// problems are logged but never fail the turn.
func (o *Orchestrator) SendTurn(ctx context.Context, text string, speak bool) (string, error) {
	ctx, span := o.tracer.Start(ctx, "chat.turn", trace.WithAttributes(
		attribute.String("model", o.model),
		attribute.Int("history_len", o.history.Len()),
	))
	defer span.End()

	o.history.Append(ollama.RoleUser, text)

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	reply, err := o.client.Chat(reqCtx, o.model, o.history.Messages())
	if err != nil {
		o.history.DropLast()
		o.count(ctx, o.turnFailures)
		span.SetStatus(codes.Error, err.Error())
		if reqCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("request timed out after %s, the model may be loading or busy", o.timeout)
		}
		return "", err
	}

	o.history.Append(ollama.RoleAssistant, reply.Content)
	o.count(ctx, o.turns)
	span.SetAttributes(attribute.Int("reply_chars", len(reply.Content)))

	o.record(ctx, ollama.RoleUser, text)
	o.record(ctx, ollama.RoleAssistant, reply.Content)

	if speak && o.synth != nil {
		o.speak(ctx, reply.Content)
	}
	return reply.Content, nil
}

// SwitchVoice changes the tier used for subsequent replies, provisioning its
// assets first when a provision function is configured. The current voice
// stays active when the tier is unknown or provisioning fails.
func (o *Orchestrator) SwitchVoice(ctx context.Context, tier string) error {
	profile, err := voice.ForTier(tier)
	if err != nil {
		return err
	}
	if o.provision != nil {
		if err := o.provision(ctx, profile); err != nil {
			return fmt.Errorf("provision voice %q: %w", tier, err)
		}
	}
	o.profile = profile
	o.logger.Info("voice switched", slog.String("tier", profile.Tier))
	return nil
}

func (o *Orchestrator) record(ctx context.Context, role, content string) {
	if o.store == nil {
		return
	}
	if err := o.store.AppendTurn(ctx, o.sessionID, role, content); err != nil {
		o.logger.Warn("failed to record turn", slogError(err))
	}
}

// speak renders the reply to a temporary artifact, plays it, and removes it.
func (o *Orchestrator) speak(ctx context.Context, text string) {
	ctx, span := o.tracer.Start(ctx, "chat.speak")
	defer span.End()

	path, err := o.synth.Synthesize(ctx, text, o.profile.ModelPath(o.voiceDir))
	if err != nil {
		o.count(ctx, o.speakFailures)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("speech synthesis failed", slogError(err))
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			o.logger.Debug("could not remove audio artifact", slogError(err))
		}
	}()

	if o.player == nil {
		return
	}
	if err := o.player.Play(ctx, path); err != nil {
		o.count(ctx, o.speakFailures)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("audio playback failed", slogError(err))
	}
}

// count increments a counter that may be nil when metric setup failed.
func (o *Orchestrator) count(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
