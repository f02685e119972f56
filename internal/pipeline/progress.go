package pipeline

const (
	EventStarted   = "started"
	EventSubject   = "subject"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Event reports run progress to CLI output and WebSocket clients.
type Event struct {
	Type        string   `json:"type"`
	AnalysisID  string   `json:"analysis_id"`
	SubjectCode string   `json:"subject_code,omitempty"`
	Index       int      `json:"index,omitempty"`
	Total       int      `json:"total"`
	Outcome     string   `json:"outcome,omitempty"`
	Message     string   `json:"message,omitempty"`
	Summary     *Summary `json:"summary,omitempty"`
}

type ProgressFunc func(Event)
