package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/academicapi"
	"github.com/henny-hen/DASOS-backend/internal/bootstrap"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

var (
	fetchPlan     string
	fetchSemester string
	fetchSubject  string
	fetchRefresh  bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch faculty and evaluation data for stored subjects",
	Long: `Download the subject guide of every stored subject and year from the
planning API and store its faculty list and assessment methods.

Guides are cached, so reruns only hit the API for new subject-years. Guides
that cannot be obtained are reported as missing; analysis still runs and
simply has no change information for those years.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchPlan, "plan", "", "Plan code for records without one (default: api.planCode)")
	fetchCmd.Flags().StringVar(&fetchSemester, "semester", "", "Semester to fetch, or \"all\" (default: api.semester)")
	fetchCmd.Flags().StringVar(&fetchSubject, "subject", "", "Fetch a single subject")
	fetchCmd.Flags().BoolVar(&fetchRefresh, "refresh", false, "Ignore and drop cached guides")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	components, err := openComponents(bootstrap.Options{ForceRefresh: fetchRefresh})
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, stop := signalContext()
	defer stop()

	if fetchRefresh && components.Redis != nil {
		dropped, err := components.Redis.Invalidate(ctx, "")
		if err != nil {
			logger.Warn("Failed to drop cached guides", zap.Error(err))
		} else {
			logger.Info("Dropped cached guides", zap.Int("count", dropped))
		}
	}

	opts := syncOptions()
	summary, err := components.Syncer.Sync(ctx, opts)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	if summary == nil {
		return err
	}

	if perr := printResult(cmd.OutOrStdout(), summary, func(w io.Writer) { printFetch(w, summary) }); perr != nil {
		return perr
	}
	return err
}

func syncOptions() academicapi.SyncOptions {
	plan := fetchPlan
	if plan == "" {
		plan = cfg.API.PlanCode
	}
	semester := fetchSemester
	if semester == "" {
		semester = cfg.API.Semester
	}
	if strings.EqualFold(semester, "all") {
		semester = ""
	}
	return academicapi.SyncOptions{
		Semester:    semester,
		PlanCode:    plan,
		SubjectCode: fetchSubject,
	}
}

func printFetch(w io.Writer, s *academicapi.SyncSummary) {
	fmt.Fprintf(w, "Requested %d guides, fetched %d in %s\n", s.Requested, s.Fetched, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Stored %d faculty and %d evaluation snapshots\n", s.FacultySnapshots, s.EvaluationSnapshots)
	if len(s.Missing) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d guides missing:\n", len(s.Missing))
	for _, m := range s.Missing {
		fmt.Fprintf(w, "  %s %s %s: %s\n", m.SubjectCode, m.AcademicYear, m.Semester, m.Error)
	}
}
