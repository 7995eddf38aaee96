package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tasknerd/internal/store"
)

var (
	tracesLimit int
	tracesPrune int
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Show recorded generative suggester calls",
	Long: `Lists the most recent suggester calls stored in the task database.
Traces are only recorded when generative.enabled and generative.record_traces
are both set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := store.Open(cmd.Context(), cfg.Database.Path, store.Options{BusyTimeout: cfg.GetBusyTimeout()})
		if err != nil {
			return fmt.Errorf("failed to open task database: %w", err)
		}
		defer db.Close()

		if tracesPrune > 0 {
			n, err := db.Traces().Prune(cmd.Context(), tracesPrune)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d trace(s)\n", n)
			return nil
		}
		return printTraces(cmd.Context(), cmd.OutOrStdout(), db.Traces(), tracesLimit)
	},
}

func init() {
	tracesCmd.Flags().IntVarP(&tracesLimit, "limit", "n", 20, "Traces to show")
	tracesCmd.Flags().IntVar(&tracesPrune, "prune", 0, "Delete traces older than this many days instead of listing")
}

func printTraces(ctx context.Context, w io.Writer, traces *store.Traces, limit int) error {
	recent, err := traces.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Fprintln(w, "No suggester traces recorded.")
		return nil
	}
	for _, tr := range recent {
		status := "ok"
		if !tr.Success {
			status = "failed: " + tr.ErrorMessage
		}
		fmt.Fprintf(w, "%s  %s  %dms  %s  [%s]\n",
			tr.Timestamp.Local().Format("2006-01-02 15:04:05"), tr.Model, tr.DurationMs, status, tr.ConversationID)
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimSpace(tr.Response), "\n", " "))
	}
	return nil
}
