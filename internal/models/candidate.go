package models

// CandidateItem is raw generation output before normalization. Several fields
// carry the same meaning under different names because providers disagree on
// the shape; the normalizer decides which one wins.
type CandidateItem struct {
	Kind            string   `json:"kind"`
	Prompt          string   `json:"prompt"`
	Options         []string `json:"options,omitempty"`
	CorrectIndex    *int     `json:"correct_index,omitempty"`
	CorrectAnswer   string   `json:"correct_answer,omitempty"`
	Answer          string   `json:"answer,omitempty"`
	ExpectedAnswer  string   `json:"expected_answer,omitempty"`
	Truth           *bool    `json:"truth,omitempty"`
	AcceptedAnswers []string `json:"accepted_answers,omitempty"`
	ConceptIDs      []string `json:"concept_ids,omitempty"`
	Difficulty      string   `json:"difficulty,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
	SourceExcerpt   string   `json:"source_excerpt,omitempty"`
	CognitiveLevel  string   `json:"cognitive_level,omitempty"`
}
