package workflows

import (
	"context"
	"errors"
	"testing"

	"quizgen/internal/activities"
	"quizgen/internal/quiz"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerQuizActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "GenerateQuizActivity", func(context.Context, activities.GenerateQuizInput) (activities.GenerateQuizOutput, error) {
		return activities.GenerateQuizOutput{}, nil
	})
	registerActivityName(env, "MarkRunFailedActivity", func(context.Context, activities.MarkRunFailedInput) error { return nil })
	registerActivityName(env, "WriteRunSummaryActivity", func(context.Context, activities.WriteRunSummaryInput) (activities.WriteRunSummaryOutput, error) {
		return activities.WriteRunSummaryOutput{}, nil
	})
}

func TestQuizGenerationWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(QuizGenerationWorkflow)
	registerQuizActivities(env)

	in := activities.GenerateQuizInput{DocumentID: "doc", Niveau: "light", Language: "en"}
	env.OnActivity("GenerateQuizActivity", mock.Anything, in).Return(activities.GenerateQuizOutput{
		DocumentID: "doc",
		Status:     "ready",
		Accepted:   10,
		Target:     10,
		Units: []quiz.UnitOutcome{
			{UnitID: "u1", OrderIndex: 1, Status: "ready", Items: 5},
			{UnitID: "u2", OrderIndex: 2, Status: "ready", Items: 5},
		},
	}, nil)
	env.OnActivity("WriteRunSummaryActivity", mock.Anything, mock.Anything).Return(activities.WriteRunSummaryOutput{Path: "/tmp/doc/generation_summary.json"}, nil)

	env.ExecuteWorkflow(QuizGenerationWorkflow, QuizGenerationInput{DocumentID: "doc", Niveau: "light", Language: "en"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out QuizGenerationResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ready", out.Status)
	require.Equal(t, 10, out.Accepted)
	require.Len(t, out.Units, 2)
	require.Equal(t, "/tmp/doc/generation_summary.json", out.SummaryPath)

	val, err := env.QueryWorkflow(QueryGetRunStatus)
	require.NoError(t, err)
	var st RunStatus
	require.NoError(t, val.Get(&st))
	require.Equal(t, "done", st.CurrentStep)
	require.Equal(t, "done", st.Steps["generate"])
	require.Equal(t, "done", st.Steps["write_summary"])
}

func TestQuizGenerationWorkflowActivityErrorMarksRunFailed(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(QuizGenerationWorkflow)
	registerQuizActivities(env)

	env.OnActivity("GenerateQuizActivity", mock.Anything, mock.Anything).Return(activities.GenerateQuizOutput{}, errors.New("boom"))
	var marked activities.MarkRunFailedInput
	env.OnActivity("MarkRunFailedActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.MarkRunFailedInput) error {
		marked = in
		return nil
	})

	env.ExecuteWorkflow(QuizGenerationWorkflow, QuizGenerationInput{DocumentID: "doc"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out QuizGenerationResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out.Status)
	require.Equal(t, "doc", marked.DocumentID)
	require.Contains(t, marked.Reason, "boom")
	require.Equal(t, marked.Reason, out.Message)
}

func TestQuizGenerationWorkflowSummaryFailureIsIgnored(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(QuizGenerationWorkflow)
	registerQuizActivities(env)

	env.OnActivity("GenerateQuizActivity", mock.Anything, mock.Anything).Return(activities.GenerateQuizOutput{
		DocumentID: "doc",
		Status:     "partial",
		Accepted:   4,
		Target:     10,
	}, nil)
	env.OnActivity("WriteRunSummaryActivity", mock.Anything, mock.Anything).Return(activities.WriteRunSummaryOutput{}, errors.New("disk full"))

	env.ExecuteWorkflow(QuizGenerationWorkflow, QuizGenerationInput{DocumentID: "doc"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out QuizGenerationResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "partial", out.Status)
	require.Empty(t, out.SummaryPath)
}
