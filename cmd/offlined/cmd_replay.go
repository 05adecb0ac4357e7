package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// replayCmd drains the sync queue once
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay every queued mutation once",
	Long: `Re-send every pending mutation in enqueue order. Mutations answered with
a 2xx are removed; everything else stays queued for the next run.`,
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, newLogger(&cfg.Log), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.replay.Replay(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
