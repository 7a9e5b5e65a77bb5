package api

import (
	"context"
	"errors"
	"fmt"

	"quizgen/internal/workflows"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
)

var ErrRunInProgress = errors.New("generation workflow already running")

// Launcher starts and inspects generation workflows.
type Launcher interface {
	StartGeneration(ctx context.Context, in workflows.QuizGenerationInput) (workflowID, runID string, err error)
	RunStatus(ctx context.Context, documentID string) (workflows.RunStatus, error)
}

type TemporalLauncher struct {
	client    tclient.Client
	taskQueue string
}

func NewTemporalLauncher(c tclient.Client, taskQueue string) *TemporalLauncher {
	return &TemporalLauncher{client: c, taskQueue: taskQueue}
}

// WorkflowID is stable per document so at most one generation runs at a time.
func WorkflowID(documentID string) string {
	return "quizgen-" + documentID
}

func (l *TemporalLauncher) StartGeneration(ctx context.Context, in workflows.QuizGenerationInput) (string, string, error) {
	we, err := l.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       WorkflowID(in.DocumentID),
		TaskQueue:                                l.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.QuizGenerationWorkflow, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return "", "", fmt.Errorf("%w: %s", ErrRunInProgress, WorkflowID(in.DocumentID))
		}
		return "", "", fmt.Errorf("start workflow: %w", err)
	}
	return we.GetID(), we.GetRunID(), nil
}

func (l *TemporalLauncher) RunStatus(ctx context.Context, documentID string) (workflows.RunStatus, error) {
	var st workflows.RunStatus
	resp, err := l.client.QueryWorkflow(ctx, WorkflowID(documentID), "", workflows.QueryGetRunStatus)
	if err != nil {
		return st, fmt.Errorf("query workflow: %w", err)
	}
	if err := resp.Get(&st); err != nil {
		return st, fmt.Errorf("decode workflow status: %w", err)
	}
	return st, nil
}
