package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"quizgen/internal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetRunStatus = "GetRunStatus"

	defaultRunTimeoutSeconds = 900
	generationHeartbeat      = time.Minute
)

// QuizGenerationWorkflow runs one generation pass over a document. The
// generation activity is never retried by Temporal: a second run would
// duplicate the unit work that already persisted items. Whatever happens, the
// run row ends in a terminal state.
func QuizGenerationWorkflow(ctx workflow.Context, input QuizGenerationInput) (QuizGenerationResult, error) {
	status := RunStatus{
		DocumentID:  input.DocumentID,
		CurrentStep: "init",
		Status:      "generating",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetRunStatus, func() (RunStatus, error) {
		return status, nil
	}); err != nil {
		return QuizGenerationResult{}, err
	}
	result := QuizGenerationResult{DocumentID: input.DocumentID}

	timeout := durationOrDefault(input.TimeoutSeconds, defaultRunTimeoutSeconds)
	genCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    generationHeartbeat,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	bookCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	})

	status.CurrentStep = "generate"
	status.Steps[status.CurrentStep] = "processing"
	var genOut activities.GenerateQuizOutput
	err := workflow.ExecuteActivity(genCtx, "GenerateQuizActivity", activities.GenerateQuizInput{
		DocumentID: input.DocumentID,
		Niveau:     input.Niveau,
		ItemTypes:  input.ItemTypes,
		Language:   input.Language,
	}).Get(genCtx, &genOut)
	if err != nil {
		reason := failureReason(err, timeout)
		status.Steps[status.CurrentStep] = "failed"
		status.Status = "failed"
		status.FailReason = reason
		workflow.GetLogger(ctx).Warn("quiz generation failed", "document_id", input.DocumentID, "reason", reason)

		status.CurrentStep = "mark_failed"
		if markErr := workflow.ExecuteActivity(bookCtx, "MarkRunFailedActivity", activities.MarkRunFailedInput{
			DocumentID: input.DocumentID,
			Reason:     reason,
		}).Get(bookCtx, nil); markErr != nil {
			status.Steps[status.CurrentStep] = "failed"
			return result, fmt.Errorf("mark run failed: %w", markErr)
		}
		status.Steps[status.CurrentStep] = "done"
		result.Status = "failed"
		result.Message = reason
		return result, nil
	}
	status.Steps["generate"] = "done"
	status.Status = genOut.Status
	if genOut.Status == "failed" {
		status.FailReason = genOut.Message
	}
	result.Status = genOut.Status
	result.Accepted = genOut.Accepted
	result.Target = genOut.Target
	result.Skipped = genOut.Skipped
	result.Units = genOut.Units
	result.Message = genOut.Message

	status.CurrentStep = "write_summary"
	var sumOut activities.WriteRunSummaryOutput
	if err := workflow.ExecuteActivity(bookCtx, "WriteRunSummaryActivity", activities.WriteRunSummaryInput{
		DocumentID: input.DocumentID,
		Summary: map[string]any{
			"document_id":  input.DocumentID,
			"status":       genOut.Status,
			"accepted":     genOut.Accepted,
			"target":       genOut.Target,
			"skipped":      genOut.Skipped,
			"units":        genOut.Units,
			"message":      genOut.Message,
			"generated_at": workflow.Now(ctx),
		},
	}).Get(bookCtx, &sumOut); err != nil {
		status.Steps[status.CurrentStep] = "failed"
	} else {
		status.Steps[status.CurrentStep] = "done"
		result.SummaryPath = sumOut.Path
	}
	status.CurrentStep = "done"
	return result, nil
}

func failureReason(err error, timeout time.Duration) string {
	if temporal.IsTimeoutError(err) {
		return fmt.Sprintf("generation timed out after %s", timeout)
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return "generation failed: " + appErr.Error()
	}
	return "generation failed: " + strings.TrimSpace(err.Error())
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
