package activities

import "quizgen/internal/quiz"

type GenerateQuizInput struct {
	DocumentID string          `json:"document_id"`
	Niveau     string          `json:"niveau"`
	ItemTypes  map[string]bool `json:"item_types,omitempty"`
	Language   string          `json:"language,omitempty"`
}

type GenerateQuizOutput struct {
	DocumentID string             `json:"document_id"`
	Status     string             `json:"status"`
	Accepted   int                `json:"accepted"`
	Target     int                `json:"target"`
	Skipped    []string           `json:"skipped,omitempty"`
	Units      []quiz.UnitOutcome `json:"units"`
	Message    string             `json:"message,omitempty"`
}

type MarkRunFailedInput struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

type WriteRunSummaryInput struct {
	DocumentID string         `json:"document_id"`
	Summary    map[string]any `json:"summary"`
}

type WriteRunSummaryOutput struct {
	Path string `json:"path"`
}
