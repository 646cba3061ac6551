package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ollavox/ollavox/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the server, model, piper and audio playback are usable",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Component logs would interleave with the report lines.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d := doctor.New(cfg, os.Stdout, logger)
	d.Run(cmd.Context())
	if !d.Healthy() {
		return errors.New("some checks failed")
	}
	fmt.Println("all checks passed")
	return nil
}
