package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"quizgen/internal/models"
)

type ItemRepo struct {
	db *DB
}

func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// InsertItems writes all items in one transaction, or none of them.
func (r *ItemRepo) InsertItems(ctx context.Context, items []models.GeneratedItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx insert items: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, it := range items {
		options, err := json.Marshal(nonNilOptions(it.Options))
		if err != nil {
			return fmt.Errorf("encode options of item %s: %w", it.ItemID, err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO quiz_items (item_id, unit_id, concept_id, sequence, prompt, answer, options, kind, difficulty, points,
                        correct_index, explanation, source_excerpt, cognitive_level, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, NULLIF($12,''), NULLIF($13,''), NULLIF($14,''), $15)`,
			it.ItemID, it.UnitID, it.ConceptID, it.Sequence, it.Prompt, it.Answer, string(options), string(it.Kind), it.Difficulty, it.Points,
			it.CorrectIndex, it.Explanation, it.SourceExcerpt, it.CognitiveLevel, it.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", it.ItemID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit items tx: %w", err)
	}
	return nil
}

func (r *ItemRepo) InsertItemConcepts(ctx context.Context, links []models.ItemConceptLink) error {
	if len(links) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx insert item concepts: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for _, l := range links {
		if _, err := tx.Exec(ctx, `INSERT INTO quiz_item_concepts (item_id, concept_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, l.ItemID, l.ConceptID); err != nil {
			return fmt.Errorf("insert item concept: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit item concepts tx: %w", err)
	}
	return nil
}

// CountItemsByUnit returns item counts for the given units. Units without
// items are present with zero.
func (r *ItemRepo) CountItemsByUnit(ctx context.Context, unitIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(unitIDs))
	for _, id := range unitIDs {
		out[id] = 0
	}
	if len(unitIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT unit_id, COUNT(*) FROM quiz_items WHERE unit_id = ANY($1) GROUP BY unit_id`, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan item count: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item counts: %w", err)
	}
	return out, nil
}

// ListItems returns the items of a document, optionally limited to one unit.
func (r *ItemRepo) ListItems(ctx context.Context, documentID, unitID string) ([]models.GeneratedItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT i.item_id::text, i.unit_id, i.concept_id, i.sequence, i.prompt, i.answer, i.options, i.kind, i.difficulty, i.points,
       i.correct_index, COALESCE(i.explanation,''), COALESCE(i.source_excerpt,''), COALESCE(i.cognitive_level,''), i.created_at
FROM quiz_items i
JOIN content_units u ON u.unit_id = i.unit_id
WHERE u.document_id=$1 AND ($2 = '' OR i.unit_id = $2)
ORDER BY u.order_index, i.sequence`, documentID, unitID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	out := make([]models.GeneratedItem, 0)
	for rows.Next() {
		var it models.GeneratedItem
		var options []byte
		var kind string
		if err := rows.Scan(&it.ItemID, &it.UnitID, &it.ConceptID, &it.Sequence, &it.Prompt, &it.Answer, &options, &kind, &it.Difficulty, &it.Points,
			&it.CorrectIndex, &it.Explanation, &it.SourceExcerpt, &it.CognitiveLevel, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Kind = models.ItemKind(kind)
		if err := json.Unmarshal(options, &it.Options); err != nil {
			return nil, fmt.Errorf("decode options of item %s: %w", it.ItemID, err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

func nonNilOptions(o []string) []string {
	if o == nil {
		return []string{}
	}
	return o
}
