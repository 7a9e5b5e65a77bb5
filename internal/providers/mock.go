package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"quizgen/internal/util"
)

// MockProvider answers quiz prompts with deterministic candidates built from
// the supplied context, so local runs and tests exercise the full pipeline
// (including dedup rejections when the source runs out of sentences).
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

var conceptRef = regexp.MustCompile(`\[concept:([^\]\s]+)\]`)

type mockCandidate struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectIndex  int      `json:"correct_index"`
	ConceptIDs    []string `json:"concept_ids,omitempty"`
	Explanation   string   `json:"explanation"`
	SourceExcerpt string   `json:"source_excerpt"`
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "mock", Model: "mock-quiz-v1", Key: "mock"}
	if err := ctx.Err(); err != nil {
		return GenerateResponse{}, info, err
	}
	n := req.ExpectedItems
	if n <= 0 {
		n = 5
	}
	sentences := make([]string, 0, 32)
	for _, c := range req.Context {
		for _, s := range util.SplitSentences(c) {
			if util.WordCount(s) >= 4 {
				sentences = append(sentences, s)
			}
		}
	}
	if len(sentences) == 0 {
		return GenerateResponse{Text: "[]"}, info, nil
	}
	concepts := make([]string, 0)
	for _, match := range conceptRef.FindAllStringSubmatch(req.Prompt, -1) {
		concepts = append(concepts, match[1])
	}

	out := make([]mockCandidate, 0, n)
	for i := 0; i < n; i++ {
		s := sentences[i%len(sentences)]
		question := "Which statement is supported by the chapter: " + util.TruncateRunes(s, 80) + "?"
		if round := i / len(sentences); round > 0 {
			question = fmt.Sprintf("%s (%d)", question, round)
		}
		options := []string{s}
		for j := 1; len(options) < 4 && j < len(sentences); j++ {
			options = append(options, "It is not the case that "+strings.ToLower(sentences[(i+j)%len(sentences)]))
		}
		c := mockCandidate{
			Type:          "multiple_choice",
			Question:      question,
			Options:       options,
			CorrectIndex:  0,
			Explanation:   "Stated directly in the chapter.",
			SourceExcerpt: s,
		}
		if len(concepts) > 0 {
			c.ConceptIDs = []string{concepts[i%len(concepts)]}
		}
		out = append(out, c)
	}
	raw, err := json.Marshal(map[string]any{"questions": out})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("encode mock questions: %w", err)
	}
	return GenerateResponse{Text: "```json\n" + string(raw) + "\n```"}, info, nil
}
