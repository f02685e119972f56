package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/henny-hen/DASOS-backend/internal/bootstrap"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List analysis runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, _ []string) error {
	components, err := openComponents(bootstrap.Options{})
	if err != nil {
		return err
	}
	defer components.Close()

	runs, err := components.Store.ListAnalysisRuns(runsLimit)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), runs, func(w io.Writer) { printRuns(w, runs) })
}

func printRuns(w io.Writer, runs []models.AnalysisRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No analysis runs yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tMODE\tMETRIC\tOK\tSKIPPED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04"), r.TrendMode, r.Metric,
			r.Succeeded, r.Skipped, r.Failed)
	}
	tw.Flush()
}
