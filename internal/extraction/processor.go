package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/metrics"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
	"github.com/henny-hen/DASOS-backend/pkg/utils"
)

type RecordStore interface {
	UpsertRecords(records []models.SubjectYearRecord) (int, error)
	UpsertCourseInfo(info *models.CourseInfo) error
	UpsertStudentProfiles(profiles []models.StudentProfile) (int, error)
	UpsertHistoricalRates(rates []models.HistoricalRate) (int, error)
}

// Summary reports what one ingestion did.
type Summary struct {
	Source       string        `json:"source"`
	Fingerprint  string        `json:"fingerprint,omitempty"`
	AcademicYear string        `json:"academic_year,omitempty"`
	Semester     string        `json:"semester,omitempty"`
	Parsed       int           `json:"parsed"`
	Stored       int           `json:"stored"`
	Rejected     int           `json:"rejected"`
	Rejections   []RejectedRow `json:"rejections,omitempty"`

	// Profiles and HistoricalRates count the report's extra sections.
	Profiles        int `json:"profiles,omitempty"`
	HistoricalRates int `json:"historical_rates,omitempty"`
}

type Processor struct {
	store RecordStore
}

func NewProcessor(store RecordStore) *Processor {
	return &Processor{store: store}
}

func (p *Processor) ProcessFile(ctx context.Context, path string) (*Summary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.ProcessDocument(ctx, path, content)
}

// ProcessDocument parses content as HTML when the source name or the content
// says so, and as an extracted text block otherwise.
func (p *Processor) ProcessDocument(ctx context.Context, source string, content []byte) (*Summary, error) {
	logger.Info("Processing report", zap.String("source", source), zap.Int("bytes", len(content)))

	var rep *Report
	var err error
	if isHTML(source, content) {
		rep, err = ParseHTML(bytes.NewReader(content))
	} else {
		rep, err = ParseText(bytes.NewReader(content))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	summary, err := p.ingest(ctx, source, rep.Records, rep.Rejected)
	if summary != nil {
		summary.Fingerprint = utils.HashString(string(content))
		summary.AcademicYear = rep.AcademicYear
		summary.Semester = rep.Semester
	}
	if err != nil {
		return summary, err
	}
	return summary, p.storeSections(source, rep, summary)
}

// storeSections keeps what a report says beyond its counts table: where it
// came from, who enrolled and the rates it quotes for earlier years.
func (p *Processor) storeSections(source string, rep *Report, summary *Summary) error {
	if rep.AcademicYear != "" {
		err := p.store.UpsertCourseInfo(&models.CourseInfo{
			AcademicYear: rep.AcademicYear,
			Semester:     rep.Semester,
			PlanCode:     rep.PlanCode,
			PlanTitle:    rep.PlanTitle,
			ReportDate:   rep.ReportDate,
			Source:       source,
			IngestedAt:   time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to store course info from %s: %w", source, err)
		}
	}

	if len(rep.Profiles) > 0 {
		n, err := p.store.UpsertStudentProfiles(rep.Profiles)
		if err != nil {
			return fmt.Errorf("failed to store student profiles from %s: %w", source, err)
		}
		summary.Profiles = n
	}
	if len(rep.History) > 0 {
		n, err := p.store.UpsertHistoricalRates(rep.History)
		if err != nil {
			return fmt.Errorf("failed to store historical rates from %s: %w", source, err)
		}
		summary.HistoricalRates = n
	}

	if summary.Profiles > 0 || summary.HistoricalRates > 0 {
		logger.Info("Report sections stored",
			zap.String("source", source),
			zap.Int("profiles", summary.Profiles),
			zap.Int("historical_rates", summary.HistoricalRates),
		)
	}
	return nil
}

// IngestRecords validates and stores records that arrive already structured.
func (p *Processor) IngestRecords(ctx context.Context, source string, records []models.SubjectYearRecord) (*Summary, error) {
	return p.ingest(ctx, source, records, nil)
}

func (p *Processor) ingest(ctx context.Context, source string, records []models.SubjectYearRecord, rejected []RejectedRow) (*Summary, error) {
	summary := &Summary{Source: source, Parsed: len(records) + len(rejected), Rejections: rejected}

	valid := make([]models.SubjectYearRecord, 0, len(records))
	for i, rec := range records {
		rec.SubjectCode = strings.TrimSpace(rec.SubjectCode)
		if rec.SubjectCode == "" || rec.AcademicYear == "" || rec.Semester == "" {
			summary.Rejections = append(summary.Rejections, RejectedRow{
				Line: i + 1, Text: rec.SubjectCode, Reason: "subject code, academic year and semester are required",
			})
			continue
		}
		if err := analysis.ApplyRates(&rec); err != nil {
			logger.Warn("Rejected record",
				zap.String("source", source),
				zap.String("subject_code", rec.SubjectCode),
				zap.String("academic_year", rec.AcademicYear),
				zap.Error(err),
			)
			summary.Rejections = append(summary.Rejections, RejectedRow{Line: i + 1, Text: rec.SubjectCode, Reason: err.Error()})
			continue
		}
		valid = append(valid, rec)
	}
	summary.Rejected = len(summary.Rejections)
	metrics.RecordsRejected.WithLabelValues(sourceKind(source)).Add(float64(summary.Rejected))

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	if len(valid) > 0 {
		stored, err := p.store.UpsertRecords(valid)
		if err != nil {
			return summary, fmt.Errorf("failed to store records from %s: %w", source, err)
		}
		summary.Stored = stored
		metrics.RecordsIngested.WithLabelValues(sourceKind(source)).Add(float64(stored))
	}

	logger.Info("Report ingested",
		zap.String("source", source),
		zap.Int("parsed", summary.Parsed),
		zap.Int("stored", summary.Stored),
		zap.Int("rejected", summary.Rejected),
	)
	return summary, nil
}

func isHTML(source string, content []byte) bool {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".html", ".htm":
		return true
	case ".txt":
		return false
	}
	head := strings.ToLower(string(content[:min(len(content), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<table")
}

func sourceKind(source string) string {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".html", ".htm":
		return "html"
	case ".txt", ".pdf":
		return "text"
	}
	return "api"
}
