package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	infra "resume-renderer/pkg/infrastructure"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent render runs from RUNS_DATABASE_URL",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runs, closeRuns, err := infra.OpenRunStore(ctx, cfg.RunsDatabaseURL, newLogger(cmd))
	if err != nil {
		return err
	}
	defer closeRuns()
	if runs == nil {
		return errors.New("RUNS_DATABASE_URL is not set")
	}

	list, err := runs.RecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tREQUEST\tSTRATEGY\tSTATE\tATTEMPTS\tFILENAME")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.RequestID, r.Strategy, r.State, r.Attempts, r.Filename)
	}
	return w.Flush()
}
