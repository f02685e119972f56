package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/henny-hen/DASOS-backend/internal/bootstrap"
	"github.com/henny-hen/DASOS-backend/internal/pipeline"
)

var (
	analyzeSubject   string
	analyzeSemester  string
	analyzeTrendMode string
	analyzeMetric    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a full analysis over the stored data",
	Long: `Analyse every stored subject: year-over-year trends, faculty and
evaluation changes, their correlation with performance, and insights.

All results are stored under a new analysis id and become visible together
once the run completes. A subject that fails is reported and skipped; the
rest of the run continues.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSubject, "subject", "", "Analyse a single subject")
	analyzeCmd.Flags().StringVar(&analyzeSemester, "semester", "", "Restrict to one semester (1S, 2S)")
	analyzeCmd.Flags().StringVar(&analyzeTrendMode, "trend-mode", "", "Trend estimator: basic, advanced or auto (default: analysis.trendMode)")
	analyzeCmd.Flags().StringVar(&analyzeMetric, "metric", "", "performance_rate, success_rate or absenteeism_rate (default: analysis.metric)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	components, err := openComponents(bootstrap.Options{TrendMode: analyzeTrendMode})
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	var progress pipeline.ProgressFunc
	if outputFormat == "human" {
		progress = func(ev pipeline.Event) { printProgress(out, ev) }
	}

	summary, err := components.Runner.Run(ctx, pipeline.Options{
		SubjectCode: analyzeSubject,
		Semester:    analyzeSemester,
		Metric:      analyzeMetric,
	}, progress)
	if summary == nil {
		return err
	}

	if perr := printResult(out, summary, func(w io.Writer) { printAnalysis(w, summary) }); perr != nil {
		return perr
	}
	return err
}

func printProgress(w io.Writer, ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventStarted:
		fmt.Fprintf(w, "Analysis %s: %d subjects\n", ev.AnalysisID, ev.Total)
	case pipeline.EventSubject:
		line := fmt.Sprintf("[%d/%d] %-12s %s", ev.Index, ev.Total, ev.SubjectCode, ev.Outcome)
		if ev.Message != "" {
			line += ": " + ev.Message
		}
		fmt.Fprintln(w, line)
	case pipeline.EventFailed:
		fmt.Fprintf(w, "Analysis failed: %s\n", ev.Message)
	}
}

func printAnalysis(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "\nAnalysis %s %s (%s trend mode, %s)\n", s.AnalysisID, s.Status, s.TrendMode, s.Metric)
	fmt.Fprintf(w, "Subjects: %d succeeded, %d skipped, %d failed of %d\n", s.Succeeded, s.Skipped, s.Failed, s.SubjectsTotal)
	fmt.Fprintf(w, "Stored %d trends, %d correlations, %d change events, %d insights in %s\n",
		s.Trends, s.Correlations, s.ChangeEvents, s.Insights, s.Duration.Round(time.Millisecond))
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.SubjectCode, f.Error)
	}
}
