package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppName     string           `yaml:"app_name"`
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Chat        ChatConfig       `yaml:"chat"`
	Voice       VoiceConfig      `yaml:"voice"`
	TTS         TTSConfig        `yaml:"tts"`
	Audio       AudioConfig      `yaml:"audio"`
	Transcript  TranscriptConfig `yaml:"transcript"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	URL             string `yaml:"url"`
	Binary          string `yaml:"binary"`
	ProbeTimeoutMS  int    `yaml:"probe_timeout_ms"`
	StartAttempts   int    `yaml:"start_attempts"`
	StartIntervalMS int    `yaml:"start_interval_ms"`
}

type ChatConfig struct {
	Model            string `yaml:"model"`
	SystemPrompt     string `yaml:"system_prompt"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	PullTimeoutMS    int    `yaml:"pull_timeout_ms"`
}

type VoiceConfig struct {
	Tier    string `yaml:"tier"`
	Dir     string `yaml:"dir"`
	Catalog string `yaml:"catalog"`
}

type TTSConfig struct {
	Mode      string `yaml:"mode"` // piper, mock, off
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type AudioConfig struct {
	Player    string `yaml:"player"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TranscriptConfig struct {
	Mode          string `yaml:"mode"` // ephemeral, persistent
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	TraceExporter  string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

func Default() Config {
	return Config{
		AppName:     "ollavox",
		Environment: "development",
		Server: ServerConfig{
			URL:             "http://localhost:11434",
			ProbeTimeoutMS:  5000,
			StartAttempts:   30,
			StartIntervalMS: 1000,
		},
		Chat: ChatConfig{
			Model:            "llama3.2",
			RequestTimeoutMS: 120000,
			PullTimeoutMS:    600000,
		},
		Voice: VoiceConfig{
			Tier: "medium",
			Dir:  "./voices",
		},
		TTS: TTSConfig{
			Mode:      "piper",
			Command:   "piper",
			TimeoutMS: 60000,
		},
		Audio: AudioConfig{
			TimeoutMS: 60000,
		},
		Transcript: TranscriptConfig{
			Mode:          "ephemeral",
			Path:          "./data/ollavox-transcripts.db",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.AppName, "OLLAVOX_APP_NAME")
	overrideString(&cfg.Environment, "OLLAVOX_ENVIRONMENT")
	overrideString(&cfg.Server.URL, "OLLAVOX_SERVER_URL")
	overrideString(&cfg.Server.Binary, "OLLAVOX_SERVER_BINARY")
	overrideInt(&cfg.Server.ProbeTimeoutMS, "OLLAVOX_SERVER_PROBE_TIMEOUT_MS")
	overrideInt(&cfg.Server.StartAttempts, "OLLAVOX_SERVER_START_ATTEMPTS")
	overrideInt(&cfg.Server.StartIntervalMS, "OLLAVOX_SERVER_START_INTERVAL_MS")
	overrideString(&cfg.Chat.Model, "OLLAVOX_CHAT_MODEL")
	overrideString(&cfg.Chat.SystemPrompt, "OLLAVOX_CHAT_SYSTEM_PROMPT")
	overrideInt(&cfg.Chat.RequestTimeoutMS, "OLLAVOX_CHAT_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Chat.PullTimeoutMS, "OLLAVOX_CHAT_PULL_TIMEOUT_MS")
	overrideString(&cfg.Voice.Tier, "OLLAVOX_VOICE_TIER")
	overrideString(&cfg.Voice.Dir, "OLLAVOX_VOICE_DIR")
	overrideString(&cfg.Voice.Catalog, "OLLAVOX_VOICE_CATALOG")
	overrideString(&cfg.TTS.Mode, "OLLAVOX_TTS_MODE")
	overrideString(&cfg.TTS.Command, "OLLAVOX_TTS_COMMAND")
	overrideInt(&cfg.TTS.TimeoutMS, "OLLAVOX_TTS_TIMEOUT_MS")
	overrideString(&cfg.Audio.Player, "OLLAVOX_AUDIO_PLAYER")
	overrideInt(&cfg.Audio.TimeoutMS, "OLLAVOX_AUDIO_TIMEOUT_MS")
	overrideString(&cfg.Transcript.Mode, "OLLAVOX_TRANSCRIPT_MODE")
	overrideString(&cfg.Transcript.Path, "OLLAVOX_TRANSCRIPT_PATH")
	overrideInt(&cfg.Transcript.RetentionDays, "OLLAVOX_TRANSCRIPT_RETENTION_DAYS")
	overrideInt(&cfg.Transcript.MaxSessions, "OLLAVOX_TRANSCRIPT_MAX_SESSIONS")
	overrideBool(&cfg.Transcript.VacuumOnStart, "OLLAVOX_TRANSCRIPT_VACUUM_ON_START")
	overrideString(&cfg.Telemetry.LogLevel, "OLLAVOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "OLLAVOX_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "OLLAVOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "OLLAVOX_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "OLLAVOX_TELEMETRY_PROMETHEUS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.AppName == "" {
		return errors.New("app_name must not be empty")
	}
	if cfg.Server.URL == "" {
		return errors.New("server.url must not be empty")
	}
	if cfg.Server.ProbeTimeoutMS <= 0 {
		return errors.New("server.probe_timeout_ms must be positive")
	}
	if cfg.Server.StartAttempts <= 0 {
		return errors.New("server.start_attempts must be positive")
	}
	if cfg.Server.StartIntervalMS <= 0 {
		return errors.New("server.start_interval_ms must be positive")
	}
	if cfg.Chat.Model == "" {
		return errors.New("chat.model must not be empty")
	}
	if cfg.Chat.RequestTimeoutMS <= 0 {
		return errors.New("chat.request_timeout_ms must be positive")
	}
	if cfg.Chat.PullTimeoutMS <= 0 {
		return errors.New("chat.pull_timeout_ms must be positive")
	}
	if cfg.Voice.Tier == "" {
		return errors.New("voice.tier must not be empty")
	}
	if cfg.Voice.Dir == "" {
		return errors.New("voice.dir must not be empty")
	}
	switch cfg.TTS.Mode {
	case "piper", "mock", "off":
	default:
		return errors.New("tts.mode must be one of piper|mock|off")
	}
	if cfg.TTS.Mode == "piper" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=piper")
	}
	if cfg.TTS.TimeoutMS <= 0 {
		return errors.New("tts.timeout_ms must be positive")
	}
	if cfg.Audio.TimeoutMS <= 0 {
		return errors.New("audio.timeout_ms must be positive")
	}
	switch cfg.Transcript.Mode {
	case "ephemeral", "persistent":
	default:
		return errors.New("transcript.mode must be one of ephemeral|persistent")
	}
	if cfg.Transcript.Mode == "persistent" && cfg.Transcript.Path == "" {
		return errors.New("transcript.path must not be empty when mode=persistent")
	}
	if cfg.Transcript.RetentionDays < 0 {
		return errors.New("transcript.retention_days must be >= 0")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Telemetry.TraceExporter == "otlp" && cfg.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
	}
	return nil
}
