package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ollavox/ollavox/internal/audio"
	"github.com/ollavox/ollavox/internal/chat"
	"github.com/ollavox/ollavox/internal/config"
	"github.com/ollavox/ollavox/internal/ollama"
	"github.com/ollavox/ollavox/internal/progress"
	"github.com/ollavox/ollavox/internal/telemetry"
	"github.com/ollavox/ollavox/internal/transcript"
	"github.com/ollavox/ollavox/internal/tts"
	"github.com/ollavox/ollavox/internal/voice"
)

// runChat provisions everything a session needs and hands off to the prompt
// loop: the server is started when down, the model pulled when absent, voice
// assets downloaded when missing.
func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newSessionLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	printer := progress.NewPrinter(os.Stdout)

	client := ollama.NewClient(cfg.Server.URL, logger)
	sess, err := provisionSession(ctx, cfg, client, logger, printer)
	if err != nil {
		return err
	}

	var player *audio.Player
	if sess.engine != nil {
		player, err = audio.NewPlayer(cfg.Audio.Player, ms(cfg.Audio.TimeoutMS), logger)
		if err != nil {
			return err
		}
	}

	store, err := transcript.Open(ctx, cfg.Transcript, logger)
	if err != nil {
		return fmt.Errorf("open transcript store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("transcript close failed", slog.String("error", err.Error()))
		}
	}()

	sessionID := uuid.NewString()
	if store.Recording() {
		if err := store.BeginSession(ctx, sessionID, sess.model, sess.profile.Tier); err != nil {
			logger.Warn("could not begin transcript session", slog.String("error", err.Error()))
		}
	}

	orchestrator := chat.NewOrchestrator(chat.Options{
		Client:    client,
		Model:     sess.model,
		System:    cfg.Chat.SystemPrompt,
		Synth:     sess.engine,
		Player:    player,
		Profile:   sess.profile,
		VoiceDir:  cfg.Voice.Dir,
		Provision: sess.provision,
		Store:     store,
		SessionID: sessionID,
		Timeout:   ms(cfg.Chat.RequestTimeoutMS),
	}, logger)

	fmt.Printf("%s %s\n", cfg.AppName, version)
	fmt.Printf("model %s, voice %s\n", sess.model, sess.profile.Tier)
	fmt.Println("Commands: voice:medium, voice:high, quit")
	fmt.Println()

	return promptLoop(ctx, orchestrator)
}

// session holds what provisioning prepared for the prompt loop.
type session struct {
	model     string
	profile   voice.Profile
	engine    tts.Synthesizer
	provision chat.ProvisionFunc
}

// provisionSession brings up the full pipeline in dependency order: server,
// model, synthesis engine, voice assets. Any failure here is fatal for the
// whole run.
func provisionSession(ctx context.Context, cfg config.Config, client *ollama.Client, logger *slog.Logger, printer *progress.Printer) (sess session, err error) {
	ctx, span := otel.Tracer("ollavox/session").Start(ctx, "session.provision",
		trace.WithAttributes(
			attribute.String("model", cfg.Chat.Model),
			attribute.String("voice", cfg.Voice.Tier),
		))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	supervisor := ollama.NewSupervisor(client, cfg.Server, logger)
	if err := supervisor.EnsureRunning(ctx); err != nil {
		return sess, err
	}

	sess.model, err = ensureModel(ctx, cfg, client, printer)
	if err != nil {
		return sess, err
	}

	sess.profile, err = voice.ForTier(cfg.Voice.Tier)
	if err != nil {
		return sess, err
	}

	sess.engine, err = newEngine(ctx, cfg, logger)
	if err != nil {
		return sess, err
	}

	// Voice assets matter only when piper will actually read them.
	if cfg.TTS.Mode == "piper" {
		provisioner, err := newProvisioner(cfg, logger, printer)
		if err != nil {
			return sess, err
		}
		if err := provisioner.EnsureVoice(ctx, sess.profile); err != nil {
			return sess, err
		}
		printer.Finish()
		sess.provision = provisioner.EnsureVoice
	}

	return sess, nil
}

func newSessionLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: telemetry.LogLevel(cfg.Telemetry.LogLevel),
	}))
}

func ensureModel(ctx context.Context, cfg config.Config, client *ollama.Client, printer *progress.Printer) (string, error) {
	pullCtx, cancel := context.WithTimeout(ctx, ms(cfg.Chat.PullTimeoutMS))
	defer cancel()

	model, err := client.EnsureModel(pullCtx, cfg.Chat.Model, func(p ollama.PullProgress) error {
		if p.Total > 0 {
			printer.Bytes(p.Status, p.Completed, p.Total)
		} else {
			printer.Status(p.Status)
		}
		return nil
	})
	printer.Finish()
	if err != nil {
		return "", err
	}
	return model, nil
}

func newEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (tts.Synthesizer, error) {
	switch cfg.TTS.Mode {
	case "piper":
		piper, err := tts.NewPiper(cfg.TTS.Command, ms(cfg.TTS.TimeoutMS), logger)
		if err != nil {
			return nil, err
		}
		if err := piper.Check(ctx); err != nil {
			return nil, err
		}
		return piper, nil
	case "mock":
		return tts.NewMockSynth(logger), nil
	case "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.TTS.Mode)
	}
}

func newProvisioner(cfg config.Config, logger *slog.Logger, printer *progress.Printer) (*voice.Provisioner, error) {
	registry := voice.Builtin()
	if cfg.Voice.Catalog != "" {
		catalog, err := voice.LoadCatalog(cfg.Voice.Catalog)
		if err != nil {
			return nil, fmt.Errorf("load voice catalog: %w", err)
		}
		if err := voice.ValidateCatalog(catalog); err != nil {
			return nil, fmt.Errorf("invalid voice catalog: %w", err)
		}
		registry.Merge(catalog.Entries())
	}
	return voice.NewProvisioner(cfg.Voice.Dir, registry, logger, func(name string, read, total int64) {
		printer.Bytes(name, read, total)
	}), nil
}

func promptLoop(ctx context.Context, orchestrator *chat.Orchestrator) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".ollavox_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize prompt: %w", err)
	}
	defer rl.Close()

	for {
		if ctx.Err() != nil {
			fmt.Println("goodbye!")
			return nil
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\ngoodbye!")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		switch in := chat.ParseInput(line); in.Kind {
		case chat.KindEmpty:
			continue
		case chat.KindQuit:
			fmt.Println("goodbye!")
			return nil
		case chat.KindVoice:
			if err := orchestrator.SwitchVoice(ctx, in.Text); err != nil {
				fmt.Printf("voice unchanged: %v\n", err)
				continue
			}
			fmt.Printf("voice set to %s\n", orchestrator.Voice().Tier)
		case chat.KindChat:
			reply, err := orchestrator.SendTurn(ctx, in.Text, true)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("assistant> %s\n", reply)
		}
	}
}
