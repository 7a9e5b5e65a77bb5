package activities

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"quizgen/internal/config"
	"quizgen/internal/models"
	"quizgen/internal/providers"
	"quizgen/internal/quiz"
	"quizgen/internal/storage"
	"quizgen/internal/util"
)

const cellText = `Cells are the smallest units that can carry out every process of life.
The nucleus holds the genetic material and directs protein production.
Mitochondria release energy from nutrients through cellular respiration.
The membrane decides which molecules may enter or leave the cell.`

func testConfig(t *testing.T) config.Config {
	return config.Config{
		DataOutRoot:     t.TempDir(),
		BatchSize:       3,
		DefaultLanguage: "en",
	}
}

func newTestActivities(t *testing.T, store *storage.MemoryStore) *Activities {
	gen := quiz.NewLLMGenerator(providers.NewManagerWith(), store, nil)
	return New(testConfig(t), store, gen, nil)
}

func TestGenerateQuizActivityWithMockProvider(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertUnits(context.Background(), []models.ContentUnit{
		{UnitID: "u1", DocumentID: "doc", Title: "Cells", OrderIndex: 1, SourceText: cellText},
	}))
	a := newTestActivities(t, store)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.GenerateQuizActivity, GenerateQuizInput{DocumentID: "doc", Niveau: "light"})
	require.NoError(t, err)
	var out GenerateQuizOutput
	require.NoError(t, val.Get(&out))
	require.Equal(t, string(models.RunReady), out.Status)
	require.Equal(t, 5, out.Target)
	require.Positive(t, out.Accepted)
	require.LessOrEqual(t, out.Accepted, 5)

	run, err := store.GetRun(context.Background(), "doc")
	require.NoError(t, err)
	require.Equal(t, models.RunReady, run.Status)
	require.Equal(t, 100, run.Percent)
	require.NotEmpty(t, store.Calls())
}

func TestGenerateQuizActivityNoUnits(t *testing.T) {
	store := storage.NewMemoryStore()
	a := newTestActivities(t, store)

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)

	val, err := env.ExecuteActivity(a.GenerateQuizActivity, GenerateQuizInput{DocumentID: "empty"})
	require.NoError(t, err)
	var out GenerateQuizOutput
	require.NoError(t, val.Get(&out))
	require.Equal(t, string(models.RunFailed), out.Status)
	require.Equal(t, quiz.ErrNoEligibleUnits.Error(), out.Message)
}

type recordingSink struct {
	finals []models.RunProgress
}

func (r *recordingSink) WriteProgress(context.Context, models.RunProgress) error { return nil }

func (r *recordingSink) WriteFinal(_ context.Context, p models.RunProgress) error {
	r.finals = append(r.finals, p)
	return nil
}

func TestMarkRunFailedActivity(t *testing.T) {
	store := storage.NewMemoryStore()
	bus := &recordingSink{}
	gen := quiz.NewLLMGenerator(providers.NewManagerWith(), nil, nil)
	a := New(testConfig(t), store, gen, nil, bus)

	require.NoError(t, a.MarkRunFailedActivity(context.Background(), MarkRunFailedInput{DocumentID: "doc", Reason: "generation timed out"}))
	run, err := store.GetRun(context.Background(), "doc")
	require.NoError(t, err)
	require.Equal(t, models.RunFailed, run.Status)
	require.Equal(t, "generation timed out", run.Error)
	require.Len(t, bus.finals, 1)
	require.Equal(t, models.RunFailed, bus.finals[0].Status)
}

func TestWriteRunSummaryActivity(t *testing.T) {
	store := storage.NewMemoryStore()
	a := newTestActivities(t, store)

	out, err := a.WriteRunSummaryActivity(context.Background(), WriteRunSummaryInput{
		DocumentID: "../doc",
		Summary:    map[string]any{"status": "ready"},
	})
	require.NoError(t, err)
	require.Equal(t, "generation_summary.json", filepath.Base(out.Path))
	require.Equal(t, "doc", filepath.Base(filepath.Dir(out.Path)))
	raw, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"status": "ready"`)
}

func TestWriteRunSummaryActivityRejectsEmptyDocumentID(t *testing.T) {
	a := newTestActivities(t, storage.NewMemoryStore())

	_, err := a.WriteRunSummaryActivity(context.Background(), WriteRunSummaryInput{
		DocumentID: "..",
		Summary:    map[string]any{"status": "ready"},
	})
	require.ErrorIs(t, err, util.ErrInvalidArtifactName)
}
