package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/henny-hen/DASOS-backend/internal/bootstrap"
	"github.com/henny-hen/DASOS-backend/internal/report"
)

const exportChartWidth = 60

var (
	reportAnalysisID string
	reportOut        string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print or export the results of an analysis",
	Long: `Print the text report of a completed analysis, with an ASCII trend
chart per subject. With --out, also write analysis.json, trends.csv and
correlations.csv next to report.txt in that directory.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportAnalysisID, "analysis-id", "", "Analysis to report (default: latest completed)")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Directory to export report files into")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	components, err := openComponents(bootstrap.Options{})
	if err != nil {
		return err
	}
	defer components.Close()

	data, err := report.Load(components.Store, reportAnalysisID)
	if err != nil {
		return err
	}

	if reportOut == "" {
		if outputFormat == "json" {
			return report.WriteJSON(cmd.OutOrStdout(), data)
		}
		return report.WriteText(cmd.OutOrStdout(), data, 0)
	}

	paths, err := report.Export(reportOut, data, exportChartWidth)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
