package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// queueCmd inspects the durable sync queue
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the durable sync queue",
}

// queueListCmd prints pending mutations
var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending mutations in enqueue order",
	RunE:  runQueueList,
}

func runQueueList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, newLogger(&cfg.Log), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	pending, err := a.queue.ListAll(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tURL\tENQUEUED\tBYTES")
	for _, m := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", m.ID, m.Method, m.URL, m.EnqueuedAt.Format(time.RFC3339), len(m.Body))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d pending\n", len(pending))
	return nil
}
