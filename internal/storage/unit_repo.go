package storage

import (
	"context"
	"fmt"

	"quizgen/internal/models"
)

type UnitRepo struct {
	db *DB
}

func NewUnitRepo(db *DB) *UnitRepo {
	return &UnitRepo{db: db}
}

// UpsertUnits stores units and replaces their concepts. Status and coverage
// counters of existing units are left alone.
func (r *UnitRepo) UpsertUnits(ctx context.Context, units []models.ContentUnit) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert units: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, u := range units {
		_, err := tx.Exec(ctx, `
INSERT INTO content_units (unit_id, document_id, title, order_index, difficulty, summary, source_text, concepts_total)
VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), $7, $8)
ON CONFLICT (unit_id)
DO UPDATE SET
  document_id = EXCLUDED.document_id,
  title = EXCLUDED.title,
  order_index = EXCLUDED.order_index,
  difficulty = EXCLUDED.difficulty,
  summary = EXCLUDED.summary,
  source_text = EXCLUDED.source_text,
  concepts_total = EXCLUDED.concepts_total,
  updated_at = NOW()`,
			u.UnitID, u.DocumentID, u.Title, u.OrderIndex, u.Difficulty, u.Summary, u.SourceText, len(u.Concepts),
		)
		if err != nil {
			return fmt.Errorf("upsert unit %s: %w", u.UnitID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM concepts WHERE unit_id=$1`, u.UnitID); err != nil {
			return fmt.Errorf("clear concepts of unit %s: %w", u.UnitID, err)
		}
		for _, c := range u.Concepts {
			_, err := tx.Exec(ctx, `
INSERT INTO concepts (concept_id, unit_id, title, description)
VALUES ($1, $2, $3, NULLIF($4,''))
ON CONFLICT (concept_id) DO UPDATE SET unit_id = EXCLUDED.unit_id, title = EXCLUDED.title, description = EXCLUDED.description`,
				c.ConceptID, u.UnitID, c.Title, c.Description)
			if err != nil {
				return fmt.Errorf("upsert concept %s: %w", c.ConceptID, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit units tx: %w", err)
	}
	return nil
}

// ListUnits returns the units of a document with their concepts, in order.
func (r *UnitRepo) ListUnits(ctx context.Context, documentID string) ([]models.ContentUnit, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT unit_id, document_id, title, order_index, COALESCE(difficulty,''), COALESCE(summary,''),
       source_text, status, concepts_covered, concepts_total
FROM content_units
WHERE document_id=$1
ORDER BY order_index, unit_id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	out := make([]models.ContentUnit, 0)
	index := map[string]int{}
	for rows.Next() {
		var u models.ContentUnit
		if err := rows.Scan(&u.UnitID, &u.DocumentID, &u.Title, &u.OrderIndex, &u.Difficulty, &u.Summary,
			&u.SourceText, &u.Status, &u.ConceptsCovered, &u.ConceptsTotal); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		index[u.UnitID] = len(out)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	crows, err := r.db.Pool.Query(ctx, `
SELECT c.concept_id, c.unit_id, c.title, COALESCE(c.description,'')
FROM concepts c
JOIN content_units u ON u.unit_id = c.unit_id
WHERE u.document_id=$1
ORDER BY c.unit_id, c.concept_id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c models.Concept
		if err := crows.Scan(&c.ConceptID, &c.UnitID, &c.Title, &c.Description); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		if i, ok := index[c.UnitID]; ok {
			out[i].Concepts = append(out[i].Concepts, c)
		}
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concepts: %w", err)
	}
	return out, nil
}

func (r *UnitRepo) SetUnitStatus(ctx context.Context, unitID string, status models.UnitStatus) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE content_units SET status=$2, updated_at=NOW() WHERE unit_id=$1`, unitID, string(status))
	if err != nil {
		return fmt.Errorf("update unit status: %w", err)
	}
	return nil
}

func (r *UnitRepo) SaveUnitCoverage(ctx context.Context, unitID string, covered, total int) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE content_units SET concepts_covered=$2, concepts_total=$3, updated_at=NOW() WHERE unit_id=$1`, unitID, covered, total)
	if err != nil {
		return fmt.Errorf("update unit coverage: %w", err)
	}
	return nil
}
