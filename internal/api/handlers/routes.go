package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handlers struct {
	Subjects  *SubjectsHandler
	Results   *ResultsHandler
	Records   *RecordsHandler
	Analysis  *AnalysisHandler
	WebSocket *WebSocketHandler
}

// Register mounts every route on router, which is normally the /api/v1 group.
func Register(router fiber.Router, h Handlers) {
	router.Get("/health", h.Subjects.Health)
	router.Get("/ready", h.Subjects.Ready)
	router.Get("/stats", h.Subjects.Stats)
	router.Get("/search", h.Subjects.Search)

	router.Get("/subjects", h.Subjects.ListSubjects)
	router.Get("/subjects/:code", h.Subjects.GetSubject)
	router.Get("/subjects/:code/historical", h.Subjects.Historical)
	router.Get("/courses", h.Subjects.Courses)

	router.Get("/faculty/changes", h.Results.FacultyChanges)
	router.Get("/evaluation/changes", h.Results.EvaluationChanges)
	router.Get("/correlations", h.Results.Correlations)
	router.Get("/trends", h.Results.Trends)
	router.Get("/insights/subjects", h.Results.SubjectInsights)
	router.Get("/insights/global", h.Results.GlobalInsights)

	router.Get("/analyses", h.Results.ListAnalyses)
	router.Get("/analyses/:id", h.Results.GetAnalysis)
	router.Post("/analyses", h.Analysis.RunAnalysis)

	router.Post("/records", h.Records.IngestRecords)

	router.Get("/ws/analyses", h.WebSocket.Upgrade, websocket.New(h.WebSocket.HandleConnection))
}
