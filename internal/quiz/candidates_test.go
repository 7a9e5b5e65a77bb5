package quiz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quizgen/internal/models"
)

func TestParseCandidatesFencedObject(t *testing.T) {
	raw := "```json\n{\"questions\":[{\"type\":\"QCM\",\"question\":\"Q1?\",\"options\":[\"a\",\"b\"],\"correct_index\":\"1\",\"concept_ids\":[\"c1\"]}]}\n```"
	got, err := ParseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, string(models.KindMultipleChoice), got[0].Kind)
	require.Equal(t, "Q1?", got[0].Prompt)
	require.Equal(t, 1, *got[0].CorrectIndex)
	require.Equal(t, []string{"c1"}, got[0].ConceptIDs)
}

func TestParseCandidatesBareArrayWithProse(t *testing.T) {
	raw := `Here are your questions:
[{"kind":"true-false","statement":"Paris is in France.","answer":true},
 {"question":"Capital of Italy is ___","accepted_answers":["Rome"]},
 {"question":"   "},
 "not an object"]
Good luck!`
	got, err := ParseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, string(models.KindTrueFalse), got[0].Kind)
	require.True(t, *got[0].Truth)
	require.Equal(t, string(models.KindFillBlank), got[1].Kind)
	require.Equal(t, []string{"Rome"}, got[1].AcceptedAnswers)
}

func TestParseCandidatesOptionObjects(t *testing.T) {
	raw := `{"items":[{"question":"Pick","choices":[{"text":"x"},{"text":"y","correct":true}]}]}`
	got, err := ParseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"x", "y"}, got[0].Options)
	require.Equal(t, 1, *got[0].CorrectIndex)
}

func TestParseCandidatesErrors(t *testing.T) {
	_, err := ParseCandidates("  ")
	require.ErrorIs(t, err, ErrEmptyResponse)

	_, err = ParseCandidates("no json here")
	require.Error(t, err)

	_, err = ParseCandidates(`{"answer":"x"}`)
	require.Error(t, err)

	got, err := ParseCandidates("[]")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCanonicalKind(t *testing.T) {
	k, ok := CanonicalKind("Fill in the blank")
	require.True(t, ok)
	require.Equal(t, models.KindFillBlank, k)
	_, ok = CanonicalKind("essay")
	require.False(t, ok)
}
