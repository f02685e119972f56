package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

const defaultRunListLimit = 50

// ResultStore reads persisted analysis output. Every getter resolves an empty
// analysis id to the latest completed run.
type ResultStore interface {
	GetChangeEvents(filter models.ResultFilter) ([]models.ChangeEvent, error)
	GetCorrelations(filter models.ResultFilter) ([]models.CorrelationResult, error)
	GetTrends(filter models.ResultFilter) ([]models.TrendResult, error)
	GetInsights(filter models.ResultFilter) ([]models.Insight, error)
	GetAnalysisRun(id string) (*models.AnalysisRun, error)
	ListAnalysisRuns(limit int) ([]models.AnalysisRun, error)
}

// ResultsHandler serves stored results only; nothing here computes.
type ResultsHandler struct {
	store ResultStore
}

func NewResultsHandler(store ResultStore) *ResultsHandler {
	return &ResultsHandler{
		store: store,
	}
}

func resultFilter(c *fiber.Ctx) models.ResultFilter {
	return models.ResultFilter{
		AnalysisID:  c.Query("analysis_id"),
		SubjectCode: c.Query("subject_code"),
		Factor:      models.Factor(c.Query("factor")),
	}
}

func (h *ResultsHandler) FacultyChanges(c *fiber.Ctx) error {
	return h.changes(c, models.FactorFaculty)
}

func (h *ResultsHandler) EvaluationChanges(c *fiber.Ctx) error {
	return h.changes(c, models.FactorEvaluation)
}

func (h *ResultsHandler) changes(c *fiber.Ctx, kind models.Factor) error {
	filter := resultFilter(c)
	filter.Factor = kind

	events, err := h.store.GetChangeEvents(filter)
	if err != nil {
		return storeError(c, err, "analysis")
	}
	if len(events) == 0 {
		return h.emptySubjectResult(c, filter)
	}
	return c.JSON(events)
}

func (h *ResultsHandler) Correlations(c *fiber.Ctx) error {
	filter := resultFilter(c)
	results, err := h.store.GetCorrelations(filter)
	if err != nil {
		return storeError(c, err, "analysis")
	}
	if len(results) == 0 {
		return h.emptySubjectResult(c, filter)
	}
	return c.JSON(results)
}

func (h *ResultsHandler) Trends(c *fiber.Ctx) error {
	filter := resultFilter(c)
	filter.Factor = ""

	trends, err := h.store.GetTrends(filter)
	if err != nil {
		return storeError(c, err, "analysis")
	}
	return c.JSON(trends)
}

func (h *ResultsHandler) SubjectInsights(c *fiber.Ctx) error {
	return h.insights(c, models.ScopeSubject)
}

func (h *ResultsHandler) GlobalInsights(c *fiber.Ctx) error {
	return h.insights(c, models.ScopeGlobal)
}

func (h *ResultsHandler) insights(c *fiber.Ctx, scope models.InsightScope) error {
	filter := resultFilter(c)
	filter.Factor = ""
	filter.Scope = scope
	if scope == models.ScopeGlobal {
		filter.SubjectCode = ""
	}

	insights, err := h.store.GetInsights(filter)
	if err != nil {
		return storeError(c, err, "analysis")
	}
	if len(insights) == 0 {
		return h.emptySubjectResult(c, filter)
	}
	return c.JSON(insights)
}

// emptySubjectResult explains an empty result for a single subject. A subject
// the run never saw is a 404, one skipped for having too few years reports
// insufficient_data, and anything else is a genuinely empty list.
func (h *ResultsHandler) emptySubjectResult(c *fiber.Ctx, filter models.ResultFilter) error {
	if filter.SubjectCode == "" || filter.SubjectCode == models.GlobalSubjectCode {
		return c.JSON([]any{})
	}

	trends, err := h.store.GetTrends(models.ResultFilter{
		AnalysisID:  filter.AnalysisID,
		SubjectCode: filter.SubjectCode,
	})
	if err != nil {
		return storeError(c, err, "analysis")
	}
	if len(trends) == 0 {
		return errorJSON(c, fiber.StatusNotFound, "subject "+filter.SubjectCode+" not found in analysis")
	}

	t := trends[0]
	if t.Status == models.StatusInsufficientData {
		return c.JSON(fiber.Map{
			"status":       models.StatusInsufficientData,
			"subject_code": t.SubjectCode,
			"analysis_id":  t.AnalysisID,
			"points":       t.Points,
		})
	}
	return c.JSON([]any{})
}

func (h *ResultsHandler) ListAnalyses(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultRunListLimit)
	if limit <= 0 || limit > 500 {
		return errorJSON(c, fiber.StatusBadRequest, "limit must be between 1 and 500")
	}

	runs, err := h.store.ListAnalysisRuns(limit)
	if err != nil {
		return storeError(c, err, "analyses")
	}
	return c.JSON(runs)
}

// GetAnalysis returns a run in any state, so failed runs can be inspected.
func (h *ResultsHandler) GetAnalysis(c *fiber.Ctx) error {
	run, err := h.store.GetAnalysisRun(c.Params("id"))
	if err != nil {
		return storeError(c, err, "analysis")
	}
	return c.JSON(run)
}
