package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/henny-hen/DASOS-backend/internal/bootstrap"
	"github.com/henny-hen/DASOS-backend/internal/extraction"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <files...>",
	Short: "Extract subject results from report files",
	Long: `Parse semester result reports and store one record per subject and year.

Text files hold the text extracted from the PDF reports; .html files are read
from their results tables. Invalid rows are rejected and reported, the rest of
the file is still stored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

type ingestResult struct {
	Files    []*extraction.Summary `json:"files"`
	Failed   map[string]string     `json:"failed,omitempty"`
	Stored   int                   `json:"stored"`
	Rejected int                   `json:"rejected"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	components, err := openComponents(bootstrap.Options{})
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, stop := signalContext()
	defer stop()

	result := &ingestResult{Failed: map[string]string{}}
	for _, path := range args {
		summary, err := components.Processor.ProcessFile(ctx, path)
		if err != nil {
			result.Failed[path] = err.Error()
			if ctx.Err() != nil {
				break
			}
			continue
		}
		result.Files = append(result.Files, summary)
		result.Stored += summary.Stored
		result.Rejected += summary.Rejected
	}

	if err := printResult(cmd.OutOrStdout(), result, func(w io.Writer) { printIngest(w, result) }); err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d files failed", len(result.Failed), len(args))
	}
	return nil
}

func printIngest(w io.Writer, r *ingestResult) {
	for _, s := range r.Files {
		fmt.Fprintf(w, "%s  %s %s  parsed %d, stored %d, rejected %d\n",
			s.Source, s.AcademicYear, s.Semester, s.Parsed, s.Stored, s.Rejected)
		if s.Profiles > 0 || s.HistoricalRates > 0 {
			fmt.Fprintf(w, "    %d student profiles, %d historical rates\n", s.Profiles, s.HistoricalRates)
		}
		for _, rej := range s.Rejections {
			fmt.Fprintf(w, "    line %d: %s (%s)\n", rej.Line, rej.Reason, rej.Text)
		}
	}
	for path, msg := range r.Failed {
		fmt.Fprintf(w, "%s  FAILED: %s\n", path, msg)
	}
	fmt.Fprintf(w, "\nStored %d records, rejected %d, %d files failed\n", r.Stored, r.Rejected, len(r.Failed))
}
