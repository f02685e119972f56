package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

var (
	xssPattern          = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
	subjectCodePattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,31}$`)
	academicYearPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
	semesterPattern     = regexp.MustCompile(`^[A-Za-z0-9]{1,8}$`)
)

type Config struct {
	MaxQueryLength      int
	MaxRecords          int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func ValidSubjectCode(code string) bool {
	return subjectCodePattern.MatchString(code)
}

// ValidAcademicYear accepts the normalised "2022-23" form only.
func ValidAcademicYear(year string) bool {
	return academicYearPattern.MatchString(year)
}

func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}

// Middleware rejects malformed query parameters and oversized record batches
// before they reach a handler.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 200
	}
	if cfg.MaxRecords == 0 {
		cfg.MaxRecords = 5000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" && !allowedContentType(contentType, cfg.AllowedContentTypes) {
				return badRequest(c, fiber.StatusUnsupportedMediaType, "Unsupported content type")
			}
		}

		if msg := checkQuery(c, cfg); msg != "" {
			return badRequest(c, fiber.StatusBadRequest, msg)
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(c.Path(), "/records") {
			var req struct {
				Records json.RawMessage `json:"records"`
			}
			if err := json.Unmarshal(c.Body(), &req); err != nil {
				return badRequest(c, fiber.StatusBadRequest, "Invalid JSON format")
			}
			var rows []json.RawMessage
			if err := json.Unmarshal(req.Records, &rows); err != nil {
				return badRequest(c, fiber.StatusBadRequest, "records must be an array")
			}
			if len(rows) > cfg.MaxRecords {
				return badRequest(c, fiber.StatusRequestEntityTooLarge, "Too many records in one request")
			}
		}

		return c.Next()
	}
}

func checkQuery(c *fiber.Ctx, cfg Config) string {
	if q := c.Query("q"); q != "" {
		if len(q) > cfg.MaxQueryLength {
			return "Query exceeds maximum length"
		}
		if containsXSS(q) {
			cfg.Logger.Warn("Potential XSS attempt",
				zap.String("ip", c.IP()),
				zap.String("query", q),
			)
			return "Invalid query content"
		}
	}
	if v := c.Query("subject_code"); v != "" && !ValidSubjectCode(v) {
		return "Invalid subject_code"
	}
	if v := c.Query("academic_year"); v != "" && !ValidAcademicYear(v) {
		return "academic_year must look like 2022-23"
	}
	if v := c.Query("semester"); v != "" && !semesterPattern.MatchString(v) {
		return "Invalid semester"
	}
	if v := c.Query("factor"); v != "" && !models.Factor(v).Valid() {
		return "factor must be faculty or evaluation"
	}
	if v := c.Query("metric"); v != "" && !analysis.ValidMetric(v) {
		return "Unknown metric"
	}
	if v := c.Query("analysis_id"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return "analysis_id must be a UUID"
		}
	}
	return ""
}

func allowedContentType(contentType string, allowed []string) bool {
	for _, allowedType := range allowed {
		if strings.Contains(contentType, allowedType) {
			return true
		}
	}
	return false
}

func badRequest(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}
