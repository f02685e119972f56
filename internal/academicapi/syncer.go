package academicapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

type SnapshotStore interface {
	SubjectYears(semester string) ([]models.SubjectYearRecord, error)
	UpsertFacultySnapshot(s *models.FacultySnapshot) error
	UpsertEvaluationSnapshot(s *models.EvaluationSnapshot) error
}

type Fetcher interface {
	Fetch(ctx context.Context, key Key) (*Payload, error)
}

type SyncOptions struct {
	// Semester limits the sync to one semester; empty syncs all.
	Semester string
	// PlanCode is used for records that carry no plan of their own.
	PlanCode    string
	SubjectCode string
}

// MissingSnapshot is a subject-year whose guide could not be obtained. Its
// factors simply have no change determination for that year.
type MissingSnapshot struct {
	SubjectCode  string `json:"subject_code"`
	AcademicYear string `json:"academic_year"`
	Semester     string `json:"semester"`
	Error        string `json:"error"`
}

type SyncSummary struct {
	Requested           int               `json:"requested"`
	Fetched             int               `json:"fetched"`
	FacultySnapshots    int               `json:"faculty_snapshots"`
	EvaluationSnapshots int               `json:"evaluation_snapshots"`
	Missing             []MissingSnapshot `json:"missing"`
	Duration            time.Duration     `json:"duration"`
}

// Syncer fetches a guide for every stored subject-year with bounded
// parallelism and stores the resulting snapshots.
type Syncer struct {
	store   SnapshotStore
	fetcher Fetcher
	workers int
	pace    time.Duration
}

func NewSyncer(store SnapshotStore, fetcher Fetcher, workers int, pace time.Duration) *Syncer {
	if workers < 1 {
		workers = 1
	}
	return &Syncer{store: store, fetcher: fetcher, workers: workers, pace: pace}
}

func (s *Syncer) Sync(ctx context.Context, opts SyncOptions) (*SyncSummary, error) {
	start := time.Now()

	keys, err := s.keys(opts)
	if err != nil {
		return nil, err
	}
	summary := &SyncSummary{Requested: len(keys), Missing: []MissingSnapshot{}}
	logger.Info("Syncing subject guides",
		zap.Int("requests", len(keys)),
		zap.Int("workers", s.workers),
		zap.String("semester", opts.Semester),
	)

	var tick <-chan time.Time
	if s.pace > 0 {
		ticker := time.NewTicker(s.pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, key := range keys {
		key := key
		if tick != nil {
			select {
			case <-gctx.Done():
			case <-tick:
			}
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			payload, err := s.fetcher.Fetch(gctx, key)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				summary.Missing = append(summary.Missing, MissingSnapshot{
					SubjectCode:  key.SubjectCode,
					AcademicYear: key.AcademicYear,
					Semester:     key.Semester,
					Error:        err.Error(),
				})
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			return s.persist(key, payload, summary)
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	sort.Slice(summary.Missing, func(i, j int) bool {
		a, b := summary.Missing[i], summary.Missing[j]
		if a.SubjectCode != b.SubjectCode {
			return a.SubjectCode < b.SubjectCode
		}
		return a.AcademicYear < b.AcademicYear
	})
	summary.Duration = time.Since(start)

	logger.Info("Subject guide sync completed",
		zap.Int("requested", summary.Requested),
		zap.Int("fetched", summary.Fetched),
		zap.Int("missing", len(summary.Missing)),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (s *Syncer) keys(opts SyncOptions) ([]Key, error) {
	rows, err := s.store.SubjectYears(opts.Semester)
	if err != nil {
		return nil, fmt.Errorf("failed to list subject years: %w", err)
	}

	keys := make([]Key, 0, len(rows))
	for _, r := range rows {
		if opts.SubjectCode != "" && r.SubjectCode != opts.SubjectCode {
			continue
		}
		plan := r.PlanCode
		if plan == "" {
			plan = opts.PlanCode
		}
		keys = append(keys, Key{
			AcademicYear: r.AcademicYear,
			Semester:     r.Semester,
			PlanCode:     plan,
			SubjectCode:  r.SubjectCode,
		})
	}
	return keys, nil
}

// persist stores whichever factors the payload carries. Callers hold the
// summary lock, which also serialises store writes.
func (s *Syncer) persist(key Key, p *Payload, summary *SyncSummary) error {
	now := time.Now().UTC()
	summary.Fetched++

	if p.Faculty != nil {
		if err := s.store.UpsertFacultySnapshot(&models.FacultySnapshot{
			SubjectCode:  key.SubjectCode,
			AcademicYear: key.AcademicYear,
			Semester:     key.Semester,
			Faculty:      p.Faculty,
			FetchedAt:    now,
		}); err != nil {
			return err
		}
		summary.FacultySnapshots++
	}
	if p.Methods != nil {
		if err := s.store.UpsertEvaluationSnapshot(&models.EvaluationSnapshot{
			SubjectCode:  key.SubjectCode,
			AcademicYear: key.AcademicYear,
			Semester:     key.Semester,
			Methods:      p.Methods,
			FetchedAt:    now,
		}); err != nil {
			return err
		}
		summary.EvaluationSnapshots++
	}
	return nil
}
