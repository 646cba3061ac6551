// Package main provides the entry point for the ollavox CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ollavox/ollavox/internal/config"
)

var version = "0.1.0-dev"

var (
	configPath string
	serverURL  string
	modelName  string
	voiceTier  string
	voicesDir  string
	ttsMode    string

	rootCmd = &cobra.Command{
		Use:   "ollavox",
		Short: "Talk to a local Ollama model, with spoken replies",
		Long: "Ollavox is an interactive chat client for a local Ollama server.\n" +
			"It starts the server when needed, pulls the configured model, downloads\n" +
			"Piper voice assets, and speaks every assistant reply out loud.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runChat,
	}
)

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (default ollavox.yaml when present)")
	rootCmd.Flags().StringVar(&serverURL, "server", "", "Ollama server URL (overrides config)")
	rootCmd.Flags().StringVar(&modelName, "model", "", "model to chat with (overrides config)")
	rootCmd.Flags().StringVar(&voiceTier, "voice", "", "voice quality tier, medium or high (overrides config)")
	rootCmd.Flags().StringVar(&voicesDir, "voices-dir", "", "directory for downloaded voice assets (overrides config)")
	rootCmd.Flags().StringVar(&ttsMode, "tts", "", "speech mode, piper, mock or off (overrides config)")
	rootCmd.AddCommand(doctorCmd, transcriptCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the YAML config and layers command-line overrides on top.
// A missing default config file is not an error, flags and environment
// overrides cover the zero-setup case.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat("ollavox.yaml"); err == nil {
			path = "ollavox.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if modelName != "" {
		cfg.Chat.Model = modelName
	}
	if voiceTier != "" {
		cfg.Voice.Tier = voiceTier
	}
	if voicesDir != "" {
		cfg.Voice.Dir = voicesDir
	}
	if ttsMode != "" {
		cfg.TTS.Mode = ttsMode
	}
	return cfg, nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
