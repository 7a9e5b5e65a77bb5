package storage

import (
	"context"

	"quizgen/internal/models"
)

// QuizStore is the Postgres backed store of a generation run.
type QuizStore struct {
	*UnitRepo
	*ItemRepo
	*RunRepo
	Audit *LLMAuditRepo
}

func NewQuizStore(db *DB) *QuizStore {
	return &QuizStore{
		UnitRepo: NewUnitRepo(db),
		ItemRepo: NewItemRepo(db),
		RunRepo:  NewRunRepo(db),
		Audit:    NewLLMAuditRepo(db),
	}
}

func (s *QuizStore) RecordCall(ctx context.Context, rec models.LLMCall) error {
	return s.Audit.RecordCall(ctx, rec)
}
