package handlers

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/extraction"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

type RecordIngester interface {
	IngestRecords(ctx context.Context, source string, records []models.SubjectYearRecord) (*extraction.Summary, error)
}

type RecordsHandler struct {
	ingester RecordIngester
}

func NewRecordsHandler(ingester RecordIngester) *RecordsHandler {
	return &RecordsHandler{
		ingester: ingester,
	}
}

// IngestRecords stores JSON rows. Counts may arrive as numbers or numeric
// strings; rows that cannot be decoded are rejected individually.
func (h *RecordsHandler) IngestRecords(c *fiber.Ctx) error {
	var req struct {
		Source  string           `json:"source"`
		Records []map[string]any `json:"records"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.Records) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "records are required")
	}
	if req.Source == "" {
		req.Source = "api"
	}

	records := make([]models.SubjectYearRecord, 0, len(req.Records))
	var undecodable []extraction.RejectedRow
	for i, raw := range req.Records {
		rec, err := decodeRecord(raw)
		if err != nil {
			undecodable = append(undecodable, extraction.RejectedRow{
				Line:   i + 1,
				Text:   cast.ToString(raw["subject_code"]),
				Reason: err.Error(),
			})
			continue
		}
		records = append(records, rec)
	}

	summary, err := h.ingester.IngestRecords(c.Context(), req.Source, records)
	if err != nil {
		logger.Error("Failed to ingest records", zap.String("source", req.Source), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to ingest records")
	}

	summary.Parsed += len(undecodable)
	summary.Rejected += len(undecodable)
	summary.Rejections = append(summary.Rejections, undecodable...)

	status := fiber.StatusOK
	if summary.Stored > 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(summary)
}

func decodeRecord(raw map[string]any) (models.SubjectYearRecord, error) {
	var rec models.SubjectYearRecord
	var err error

	if rec.SubjectCode, err = cast.ToStringE(raw["subject_code"]); err != nil {
		return rec, fmt.Errorf("subject_code: %w", err)
	}
	rec.SubjectName = strings.TrimSpace(cast.ToString(raw["subject_name"]))
	rec.PlanCode = strings.TrimSpace(cast.ToString(raw["plan_code"]))
	rec.AcademicYear = strings.ReplaceAll(strings.TrimSpace(cast.ToString(raw["academic_year"])), "/", "-")
	if s := cast.ToString(raw["semester"]); s != "" {
		rec.Semester = extraction.NormalizeSemester(s)
	}

	counts := []struct {
		field string
		dst   *int
	}{
		{"credits", &rec.Credits},
		{"enrolled", &rec.Enrolled},
		{"participated", &rec.Participated},
		{"passed", &rec.Passed},
	}
	for _, f := range counts {
		v, ok := raw[f.field]
		if !ok || v == nil {
			if f.field == "credits" {
				continue
			}
			return rec, fmt.Errorf("%s is required", f.field)
		}
		n, err := toCount(v)
		if err != nil {
			return rec, fmt.Errorf("%s: not a count: %v", f.field, v)
		}
		*f.dst = n
	}
	return rec, nil
}

// toCount accepts whole numbers only. Strings are read as base 10 so "010"
// is ten, and fractional JSON numbers are rejected rather than truncated.
func toCount(v any) (int, error) {
	switch n := v.(type) {
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) || n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not a whole number", n)
		}
		return int(n), nil
	case bool:
		return 0, fmt.Errorf("boolean is not a count")
	default:
		return cast.ToIntE(v)
	}
}
