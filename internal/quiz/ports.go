// Package quiz turns content units into persisted quiz items by driving an
// unreliable generation service under a bounded retry and concurrency budget.
package quiz

import (
	"context"

	"quizgen/internal/models"
)

// GenerateRequest is everything the generation service gets for one call.
// Config.RequestedCount carries the over-request hint for this call.
type GenerateRequest struct {
	DocumentID string
	Unit       models.ContentUnit
	SourceText string
	Language   string
	Config     models.GenerationConfig
	Pass       int
	Attempt    int
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]models.CandidateItem, error)
}

// Store is the persistence contract of a run. Inserts are expected to be
// all-or-nothing per call; nothing is assumed across calls.
type Store interface {
	SetUnitStatus(ctx context.Context, unitID string, status models.UnitStatus) error
	SaveUnitCoverage(ctx context.Context, unitID string, covered, total int) error
	InsertItems(ctx context.Context, items []models.GeneratedItem) error
	InsertItemConcepts(ctx context.Context, links []models.ItemConceptLink) error
	CountItemsByUnit(ctx context.Context, unitIDs []string) (map[string]int, error)
}

type ProgressSink interface {
	WriteProgress(ctx context.Context, p models.RunProgress) error
	WriteFinal(ctx context.Context, p models.RunProgress) error
}

// CallAuditor records one generation service call.
type CallAuditor interface {
	RecordCall(ctx context.Context, call models.LLMCall) error
}

// ProgressSinks fans a snapshot out to several sinks and reports the first error.
type ProgressSinks []ProgressSink

func (s ProgressSinks) WriteProgress(ctx context.Context, p models.RunProgress) error {
	var first error
	for _, sink := range s {
		if err := sink.WriteProgress(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s ProgressSinks) WriteFinal(ctx context.Context, p models.RunProgress) error {
	var first error
	for _, sink := range s {
		if err := sink.WriteFinal(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}
