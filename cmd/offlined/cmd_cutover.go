package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cutoverCmd installs and activates the configured epoch without serving
var cutoverCmd = &cobra.Command{
	Use:   "cutover",
	Short: "Install and activate the configured epoch",
	Long: `Seed the configured epoch's static partition, activate it and delete
every partition left over from other epochs. Useful to prepare a cache
before the first serve.`,
	RunE: runCutover,
}

func runCutover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, newLogger(&cfg.Log), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.lifecycle.Install(ctx); err != nil {
		return err
	}
	if err := a.lifecycle.Activate(ctx); err != nil {
		return err
	}
	names, err := a.store.Partitions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("epoch %s active\n", cfg.Cache.Epoch)
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
