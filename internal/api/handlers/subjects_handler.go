package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/middleware/validation"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

const searchLimit = 20

type SubjectStore interface {
	Ping() error
	Stats() (*models.DatabaseStats, error)
	ListSubjects(academicYear, semester string) ([]models.SubjectSummary, error)
	SearchSubjects(term string, limit int) ([]models.SubjectSummary, error)
	GetRecords(filter models.RecordFilter) ([]models.SubjectYearRecord, error)
	GetStudentProfiles(subjectCode string) ([]models.StudentProfile, error)
	GetHistoricalRates(filter models.HistoryFilter) ([]models.HistoricalRate, error)
	ListCourseInfo() ([]models.CourseInfo, error)
}

type SubjectsHandler struct {
	store SubjectStore
}

func NewSubjectsHandler(store SubjectStore) *SubjectsHandler {
	return &SubjectsHandler{
		store: store,
	}
}

func (h *SubjectsHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *SubjectsHandler) Ready(c *fiber.Ctx) error {
	if err := h.store.Ping(); err != nil {
		logger.Warn("Readiness check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}

func (h *SubjectsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.store.Stats()
	if err != nil {
		return storeError(c, err, "database stats")
	}
	return c.JSON(stats)
}

// Search matches subject codes and names. An empty query matches nothing.
func (h *SubjectsHandler) Search(c *fiber.Ctx) error {
	term := validation.SanitizeString(c.Query("q"))
	if term == "" {
		return c.JSON([]models.SubjectSummary{})
	}

	subjects, err := h.store.SearchSubjects(term, searchLimit)
	if err != nil {
		return storeError(c, err, "subjects")
	}
	return c.JSON(subjects)
}

func (h *SubjectsHandler) ListSubjects(c *fiber.Ctx) error {
	subjects, err := h.store.ListSubjects(c.Query("academic_year"), c.Query("semester"))
	if err != nil {
		return storeError(c, err, "subjects")
	}
	return c.JSON(subjects)
}

func (h *SubjectsHandler) GetSubject(c *fiber.Ctx) error {
	code := c.Params("code")
	if !validation.ValidSubjectCode(code) {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid subject code")
	}

	records, err := h.store.GetRecords(models.RecordFilter{
		SubjectCode:  code,
		AcademicYear: c.Query("academic_year"),
	})
	if err != nil {
		return storeError(c, err, "subject")
	}
	if len(records) == 0 {
		return errorJSON(c, fiber.StatusNotFound, "Subject with code "+code+" not found")
	}

	profiles, err := h.store.GetStudentProfiles(code)
	if err != nil {
		return storeError(c, err, "subject")
	}
	if year := c.Query("academic_year"); year != "" {
		kept := profiles[:0]
		for _, p := range profiles {
			if p.AcademicYear == year {
				kept = append(kept, p)
			}
		}
		profiles = kept
	}

	return c.JSON(fiber.Map{
		"subject_code": code,
		"subject_name": records[0].SubjectName,
		"records":      records,
		"profiles":     profiles,
	})
}

// Courses lists the reports ingested so far, one per year, semester and plan.
func (h *SubjectsHandler) Courses(c *fiber.Ctx) error {
	courses, err := h.store.ListCourseInfo()
	if err != nil {
		return storeError(c, err, "courses")
	}
	return c.JSON(courses)
}

// Historical returns the yearly series of one metric. Semesters of the same
// year are pooled, and years before the first stored record are filled from
// the rates later reports quote. Fewer than two years is insufficient data.
func (h *SubjectsHandler) Historical(c *fiber.Ctx) error {
	code := c.Params("code")
	if !validation.ValidSubjectCode(code) {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid subject code")
	}
	metric := c.Query("metric", analysis.MetricPerformance)
	if !analysis.ValidMetric(metric) {
		return errorJSON(c, fiber.StatusBadRequest, "Unknown metric "+metric)
	}

	semester := c.Query("semester")

	records, err := h.store.GetRecords(models.RecordFilter{SubjectCode: code, Semester: semester})
	if err != nil {
		return storeError(c, err, "subject")
	}
	if len(records) == 0 {
		return errorJSON(c, fiber.StatusNotFound, "Subject with code "+code+" not found")
	}

	points, err := analysis.BuildSeries(records, metric)
	if err != nil {
		logger.Error("Failed to build series", zap.String("subject_code", code), zap.Error(err))
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	history, err := h.store.GetHistoricalRates(models.HistoryFilter{SubjectCode: code, Semester: semester, Metric: metric})
	if err != nil {
		return storeError(c, err, "subject")
	}
	counted := len(points)
	points = analysis.ExtendSeries(points, history, metric)

	status := models.StatusOK
	if len(points) < 2 {
		status = models.StatusInsufficientData
	}
	return c.JSON(fiber.Map{
		"status":       status,
		"subject_code": code,
		"metric":       metric,
		"points":       points,
		"quoted_years": len(points) - counted,
	})
}
