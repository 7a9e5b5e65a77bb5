package workflows

import "quizgen/internal/quiz"

type QuizGenerationInput struct {
	DocumentID     string          `json:"document_id"`
	Niveau         string          `json:"niveau,omitempty"`
	ItemTypes      map[string]bool `json:"item_types,omitempty"`
	Language       string          `json:"language,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
}

type QuizGenerationResult struct {
	DocumentID  string             `json:"document_id"`
	Status      string             `json:"status"`
	Accepted    int                `json:"accepted"`
	Target      int                `json:"target"`
	Skipped     []string           `json:"skipped,omitempty"`
	Units       []quiz.UnitOutcome `json:"units,omitempty"`
	Message     string             `json:"message,omitempty"`
	SummaryPath string             `json:"summary_path,omitempty"`
}

// RunStatus is what GetRunStatus returns while the workflow is open.
type RunStatus struct {
	DocumentID  string            `json:"document_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Steps       map[string]string `json:"steps"`
}
