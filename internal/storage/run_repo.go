package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"quizgen/internal/models"
)

var ErrRunNotFound = errors.New("generation run not found")

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// ClaimRun marks the document as generating. It returns false when a run is
// already generating for it.
func (r *RunRepo) ClaimRun(ctx context.Context, documentID string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents_generation_runs (document_id, status, stage, percent, accepted, target, error, updated_at)
VALUES ($1, 'generating', 'queued', 0, 0, 0, NULL, NOW())
ON CONFLICT (document_id)
DO UPDATE SET status='generating', stage='queued', percent=0, accepted=0, target=0, error=NULL, updated_at=NOW()
WHERE documents_generation_runs.status <> 'generating'`, documentID)
	if err != nil {
		return false, fmt.Errorf("claim generation run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RunRepo) WriteProgress(ctx context.Context, p models.RunProgress) error {
	return r.upsert(ctx, p, "write progress")
}

func (r *RunRepo) WriteFinal(ctx context.Context, p models.RunProgress) error {
	return r.upsert(ctx, p, "write final status")
}

// MarkFailed forces a terminal failed status, keeping the last percent.
func (r *RunRepo) MarkFailed(ctx context.Context, documentID, reason string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents_generation_runs (document_id, status, stage, error, updated_at)
VALUES ($1, 'failed', 'failed', NULLIF($2,''), NOW())
ON CONFLICT (document_id)
DO UPDATE SET status='failed', stage='failed', error=NULLIF($2,''), updated_at=NOW()`, documentID, reason)
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	return nil
}

func (r *RunRepo) GetRun(ctx context.Context, documentID string) (models.RunProgress, error) {
	var p models.RunProgress
	var status string
	err := r.db.Pool.QueryRow(ctx, `
SELECT document_id, status, stage, percent, accepted, target, COALESCE(error,''), updated_at
FROM documents_generation_runs WHERE document_id=$1`, documentID).
		Scan(&p.DocumentID, &status, &p.Stage, &p.Percent, &p.Accepted, &p.Target, &p.Error, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RunProgress{}, ErrRunNotFound
	}
	if err != nil {
		return models.RunProgress{}, fmt.Errorf("get generation run: %w", err)
	}
	p.Status = models.RunStatus(status)
	return p, nil
}

func (r *RunRepo) upsert(ctx context.Context, p models.RunProgress, op string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents_generation_runs (document_id, status, stage, percent, accepted, target, error, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8)
ON CONFLICT (document_id)
DO UPDATE SET
  status = EXCLUDED.status,
  stage = EXCLUDED.stage,
  percent = CASE WHEN documents_generation_runs.status = 'generating'
                 THEN GREATEST(documents_generation_runs.percent, EXCLUDED.percent)
                 ELSE EXCLUDED.percent END,
  accepted = EXCLUDED.accepted,
  target = EXCLUDED.target,
  error = EXCLUDED.error,
  updated_at = EXCLUDED.updated_at`,
		p.DocumentID, string(p.Status), p.Stage, p.Percent, p.Accepted, p.Target, p.Error, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
