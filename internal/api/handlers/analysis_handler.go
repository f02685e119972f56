package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/middleware/validation"
	"github.com/henny-hen/DASOS-backend/internal/pipeline"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

var ErrAnalysisRunning = errors.New("an analysis is already running")

type Analyzer interface {
	Run(ctx context.Context, opts pipeline.Options, progress pipeline.ProgressFunc) (*pipeline.Summary, error)
}

// RunGuard lets one analysis run at a time across the REST and WebSocket
// entry points.
type RunGuard struct {
	analyzer Analyzer
	mu       sync.Mutex
}

func NewRunGuard(analyzer Analyzer) *RunGuard {
	return &RunGuard{analyzer: analyzer}
}

func (g *RunGuard) Run(ctx context.Context, opts pipeline.Options, progress pipeline.ProgressFunc) (*pipeline.Summary, error) {
	if !g.mu.TryLock() {
		return nil, ErrAnalysisRunning
	}
	defer g.mu.Unlock()
	return g.analyzer.Run(ctx, opts, progress)
}

type runRequest struct {
	SubjectCode string `json:"subject_code"`
	Semester    string `json:"semester"`
	Metric      string `json:"metric"`
}

func (r runRequest) validate() error {
	if r.SubjectCode != "" && !validation.ValidSubjectCode(r.SubjectCode) {
		return errors.New("invalid subject code")
	}
	if r.Metric != "" && !analysis.ValidMetric(r.Metric) {
		return errors.New("unknown metric " + r.Metric)
	}
	return nil
}

func (r runRequest) options() pipeline.Options {
	return pipeline.Options{
		SubjectCode: r.SubjectCode,
		Semester:    r.Semester,
		Metric:      r.Metric,
	}
}

type AnalysisHandler struct {
	guard *RunGuard
}

func NewAnalysisHandler(guard *RunGuard) *AnalysisHandler {
	return &AnalysisHandler{
		guard: guard,
	}
}

// RunAnalysis runs the pipeline synchronously and returns its summary.
func (h *AnalysisHandler) RunAnalysis(c *fiber.Ctx) error {
	var req runRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := req.validate(); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.guard.Run(c.Context(), req.options(), nil)
	if errors.Is(err, ErrAnalysisRunning) {
		return errorJSON(c, fiber.StatusConflict, err.Error())
	}
	if err != nil {
		logger.Error("Analysis failed", zap.Error(err))
		body := fiber.Map{"error": "Analysis failed: " + err.Error()}
		if summary != nil {
			body["summary"] = summary
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}

	return c.Status(fiber.StatusCreated).JSON(summary)
}
