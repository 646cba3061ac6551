// Package doctor inspects the environment a chat session depends on and
// reports what would block one from starting.
package doctor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ollavox/ollavox/internal/audio"
	"github.com/ollavox/ollavox/internal/config"
	"github.com/ollavox/ollavox/internal/ollama"
	"github.com/ollavox/ollavox/internal/tts"
	"github.com/ollavox/ollavox/internal/voice"
)

// Check is the outcome of one diagnostic probe.
type Check struct {
	Name    string
	OK      bool
	Message string
}

// Doctor runs the diagnostic checks and writes a line per check to out.
type Doctor struct {
	cfg    config.Config
	out    io.Writer
	logger *slog.Logger
	checks []Check
}

func New(cfg config.Config, out io.Writer, logger *slog.Logger) *Doctor {
	return &Doctor{cfg: cfg, out: out, logger: logger}
}

// Run executes every check in dependency order. Checks never abort the run;
// a broken server still lets the speech and playback checks report.
func (d *Doctor) Run(ctx context.Context) []Check {
	d.checkServer(ctx)
	d.checkSpeech(ctx)
	d.checkPlayback()
	d.checkTranscript()
	return d.checks
}

// Healthy reports whether every executed check passed.
func (d *Doctor) Healthy() bool {
	for _, c := range d.checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func (d *Doctor) report(name string, ok bool, format string, args ...any) {
	mark := "ok"
	if !ok {
		mark = "!!"
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(d.out, "%s  %s\n", mark, msg)
	d.checks = append(d.checks, Check{Name: name, OK: ok, Message: msg})
}

func (d *Doctor) checkServer(ctx context.Context) {
	client := ollama.NewClient(d.cfg.Server.URL, d.logger)
	timeout := time.Duration(d.cfg.Server.ProbeTimeoutMS) * time.Millisecond

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	pingErr := client.Ping(probeCtx)
	cancel()
	if pingErr != nil {
		d.report("server", false, "server not reachable at %s (%v)", d.cfg.Server.URL, pingErr)
		return
	}

	versionCtx, cancel := context.WithTimeout(ctx, timeout)
	serverVersion, err := client.Version(versionCtx)
	cancel()
	if err != nil {
		d.report("server", true, "server reachable at %s", d.cfg.Server.URL)
	} else {
		d.report("server", true, "server reachable at %s (version %s)", d.cfg.Server.URL, serverVersion)
	}

	listCtx, cancel := context.WithTimeout(ctx, timeout)
	models, err := client.ListModels(listCtx)
	cancel()
	if err != nil {
		d.report("model", false, "could not list models: %v", err)
		return
	}
	if resolved, ok := ollama.ResolveModel(models, d.cfg.Chat.Model); ok {
		d.report("model", true, "model %s installed", resolved)
	} else {
		d.report("model", false, "model %s not installed (a chat session pulls it automatically)", d.cfg.Chat.Model)
	}
}

func (d *Doctor) checkSpeech(ctx context.Context) {
	switch d.cfg.TTS.Mode {
	case "piper":
		piper, err := tts.NewPiper(d.cfg.TTS.Command, time.Duration(d.cfg.TTS.TimeoutMS)*time.Millisecond, d.logger)
		if err != nil {
			d.report("tts", false, "%v", err)
		} else if err := piper.Check(ctx); err != nil {
			d.report("tts", false, "%v", err)
		} else {
			d.report("tts", true, "piper executable found (%s)", d.cfg.TTS.Command)
		}
		d.checkVoiceAssets()
	case "mock":
		d.report("tts", true, "speech mode mock, no external binary needed")
	case "off":
		d.report("tts", true, "speech disabled")
	default:
		d.report("tts", false, "unknown tts mode %q", d.cfg.TTS.Mode)
	}
}

func (d *Doctor) checkVoiceAssets() {
	profile, err := voice.ForTier(d.cfg.Voice.Tier)
	if err != nil {
		d.report("voice", false, "%v", err)
		return
	}
	for _, path := range []string{profile.ModelPath(d.cfg.Voice.Dir), profile.ConfigPath(d.cfg.Voice.Dir)} {
		if _, err := os.Stat(path); err != nil {
			d.report("voice", false, "voice asset missing: %s (a chat session downloads it)", path)
		} else {
			d.report("voice", true, "voice asset present: %s", path)
		}
	}
}

func (d *Doctor) checkPlayback() {
	if d.cfg.TTS.Mode != "piper" && d.cfg.TTS.Mode != "mock" {
		return
	}
	player, err := audio.NewPlayer(d.cfg.Audio.Player, time.Duration(d.cfg.Audio.TimeoutMS)*time.Millisecond, d.logger)
	if err != nil {
		d.report("audio", false, "audio player: %v", err)
		return
	}
	if argv, err := player.Command("probe.wav"); err != nil {
		d.report("audio", false, "audio player: %v", err)
	} else {
		d.report("audio", true, "audio player: %s", argv[0])
	}
}

func (d *Doctor) checkTranscript() {
	if d.cfg.Transcript.Mode == "persistent" {
		d.report("transcript", true, "transcripts recorded to %s", d.cfg.Transcript.Path)
	} else {
		d.report("transcript", true, "transcripts ephemeral")
	}
}
