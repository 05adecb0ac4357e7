package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "offlined",
	Short: "Offline cache and durable sync engine for the learning app",
	Long: `offlined sits between the learning app and its origin. It serves
requests from versioned cache partitions when the network is gone, queues
failed writes durably and replays them once connectivity returns.

Configuration comes from the environment (and an optional .env file).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load this .env file before reading the environment")

	queueCmd.AddCommand(queueListCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(cutoverCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
