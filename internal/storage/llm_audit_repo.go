package storage

import (
	"context"
	"fmt"

	"quizgen/internal/models"
)

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) RecordCall(ctx context.Context, rec models.LLMCall) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, document_id, unit_id, provider_name, model, pass, attempt, status, error_type, candidates)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), $7, $8, $9, NULLIF($10,''), $11)`,
		rec.CallID, rec.Operation, rec.DocumentID, rec.UnitID, rec.Provider, rec.Model, rec.Pass, rec.Attempt, rec.Status, rec.ErrorType, rec.Candidates)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// CountCalls returns the number of audited calls per status for a document.
func (r *LLMAuditRepo) CountCalls(ctx context.Context, documentID string) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM llm_calls WHERE document_id=$1 GROUP BY status`, documentID)
	if err != nil {
		return nil, fmt.Errorf("count llm calls: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan llm call count: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate llm call counts: %w", err)
	}
	return out, nil
}
