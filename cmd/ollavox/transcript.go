package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ollavox/ollavox/internal/transcript"
)

var (
	transcriptSession string
	transcriptLimit   int

	transcriptCmd = &cobra.Command{
		Use:   "transcript",
		Short: "Browse recorded conversations",
		Args:  cobra.NoArgs,
		RunE:  runTranscript,
	}
)

func init() {
	transcriptCmd.Flags().StringVar(&transcriptSession, "session", "", "print the turns of one session")
	transcriptCmd.Flags().IntVar(&transcriptLimit, "limit", 0, "maximum entries to print (0 for the default)")
}

func runTranscript(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Transcript.Mode != "persistent" {
		fmt.Println("transcript recording is disabled (set transcript.mode: persistent)")
		return nil
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := cmd.Context()

	store, err := transcript.Open(ctx, cfg.Transcript, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if transcriptSession != "" {
		turns, err := store.SessionTurns(ctx, transcriptSession, transcriptLimit)
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			fmt.Println("no turns recorded for this session")
			return nil
		}
		for _, turn := range turns {
			fmt.Printf("%s  %-9s  %s\n", turn.CreatedAt.Local().Format("2006-01-02 15:04:05"), turn.Role, turn.Content)
		}
		return nil
	}

	sessions, err := store.ListSessions(ctx, transcriptLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded yet")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  model %s, voice %s, %d turns\n",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Model, s.Voice, s.Turns)
	}
	return nil
}
