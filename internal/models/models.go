package models

import "time"

type UnitStatus string

const (
	UnitProcessing UnitStatus = "processing"
	UnitReady      UnitStatus = "ready"
	UnitFailed     UnitStatus = "failed"
)

type RunStatus string

const (
	RunGenerating RunStatus = "generating"
	RunReady      RunStatus = "ready"
	RunPartial    RunStatus = "partial"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether no further progress writes are expected for the run.
func (s RunStatus) Terminal() bool {
	return s == RunReady || s == RunPartial || s == RunFailed
}

type Concept struct {
	ConceptID   string `json:"concept_id"`
	UnitID      string `json:"unit_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ContentUnit is one chapter of a document. Everything except Status and the
// coverage counters is owned by the ingestion pipeline.
type ContentUnit struct {
	UnitID          string     `json:"unit_id"`
	DocumentID      string     `json:"document_id"`
	Title           string     `json:"title"`
	OrderIndex      int        `json:"order_index"`
	Difficulty      string     `json:"difficulty,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	SourceText      string     `json:"source_text"`
	Concepts        []Concept  `json:"concepts,omitempty"`
	Status          UnitStatus `json:"status,omitempty"`
	ConceptsCovered int        `json:"concepts_covered"`
	ConceptsTotal   int        `json:"concepts_total"`
}

type ItemKind string

const (
	KindMultipleChoice ItemKind = "multiple_choice"
	KindTrueFalse      ItemKind = "true_false"
	KindFillBlank      ItemKind = "fill_blank"
)

// GeneratedItem is the canonical persisted quiz item. Written once, never updated.
type GeneratedItem struct {
	ItemID         string    `json:"item_id"`
	UnitID         string    `json:"unit_id"`
	ConceptID      *string   `json:"concept_id,omitempty"`
	Sequence       int       `json:"sequence"`
	Prompt         string    `json:"prompt"`
	Answer         string    `json:"answer"`
	Options        []string  `json:"options"`
	Kind           ItemKind  `json:"kind"`
	Difficulty     string    `json:"difficulty"`
	Points         int       `json:"points"`
	CorrectIndex   *int      `json:"correct_index,omitempty"`
	Explanation    string    `json:"explanation,omitempty"`
	SourceExcerpt  string    `json:"source_excerpt,omitempty"`
	CognitiveLevel string    `json:"cognitive_level,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ItemConceptLink struct {
	ItemID    string `json:"item_id"`
	ConceptID string `json:"concept_id"`
}

// RunProgress is the persisted view of one generation run for a document.
type RunProgress struct {
	DocumentID string    `json:"document_id"`
	Status     RunStatus `json:"status"`
	Stage      string    `json:"stage"`
	Percent    int       `json:"percent"`
	Accepted   int       `json:"accepted"`
	Target     int       `json:"target"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LLMCall is one audited call to the generation service.
type LLMCall struct {
	CallID     string `json:"call_id"`
	Operation  string `json:"operation"`
	DocumentID string `json:"document_id"`
	UnitID     string `json:"unit_id"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Pass       int    `json:"pass"`
	Attempt    int    `json:"attempt"`
	Status     string `json:"status"`
	ErrorType  string `json:"error_type,omitempty"`
	Candidates int    `json:"candidates"`
}
