package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"quizgen/internal/config"
	"quizgen/internal/logger"
	"quizgen/internal/models"
	"quizgen/internal/quiz"
	"quizgen/internal/util"
)

const defaultHeartbeatInterval = 10 * time.Second

// RunStore is what the activities need from storage: the quiz store contract,
// the run table and the unit listing.
type RunStore interface {
	quiz.Store
	quiz.ProgressSink
	ListUnits(ctx context.Context, documentID string) ([]models.ContentUnit, error)
	MarkFailed(ctx context.Context, documentID, reason string) error
}

type Activities struct {
	cfg          config.Config
	log          *logger.Logger
	store        RunStore
	sinks        quiz.ProgressSinks
	orchestrator *quiz.Orchestrator
}

// New wires the orchestrator. Extra sinks, such as the Redis progress bus,
// receive every progress write after the store.
func New(cfg config.Config, store RunStore, gen quiz.Generator, log *logger.Logger, extra ...quiz.ProgressSink) *Activities {
	if log == nil {
		log = logger.Nop()
	}
	sinks := quiz.ProgressSinks{store}
	sinks = append(sinks, extra...)
	policy := quiz.DefaultPolicy()
	policy.BatchSize = cfg.BatchSize
	policy.RetryDelay = cfg.RetryDelay()
	policy.SweepDelay = cfg.SweepDelay()
	policy.Persistence = quiz.ParsePersistence(cfg.Persistence)
	return &Activities{
		cfg:   cfg,
		log:   log,
		store: store,
		sinks: sinks,
		orchestrator: quiz.NewOrchestrator(gen, store, sinks,
			quiz.WithLogger(log),
			quiz.WithPolicy(policy),
		),
	}
}

func (a *Activities) GenerateQuizActivity(ctx context.Context, in GenerateQuizInput) (GenerateQuizOutput, error) {
	units, err := a.store.ListUnits(ctx, in.DocumentID)
	if err != nil {
		return GenerateQuizOutput{}, fmt.Errorf("load units: %w", err)
	}
	lang := in.Language
	if lang == "" {
		lang = a.cfg.DefaultLanguage
	}
	req := quiz.RunRequest{
		DocumentID: in.DocumentID,
		Language:   lang,
		Config: models.GenerationConfig{
			Niveau:    models.ParseNiveau(in.Niveau),
			ItemTypes: in.ItemTypes,
		},
		Units: units,
	}

	stop := a.startHeartbeat(ctx)
	res, err := a.orchestrator.Run(ctx, req)
	stop()

	out := GenerateQuizOutput{
		DocumentID: res.DocumentID,
		Status:     string(res.Status),
		Accepted:   res.Accepted,
		Target:     res.Target,
		Skipped:    res.Skipped,
		Units:      res.Units,
		Message:    res.Message,
	}
	if err != nil {
		return out, temporal.NewNonRetryableApplicationError(err.Error(), "GenerationAborted", err)
	}
	return out, nil
}

func (a *Activities) MarkRunFailedActivity(ctx context.Context, in MarkRunFailedInput) error {
	if err := a.store.MarkFailed(ctx, in.DocumentID, in.Reason); err != nil {
		return err
	}
	final := models.RunProgress{
		DocumentID: in.DocumentID,
		Status:     models.RunFailed,
		Stage:      quiz.StageFailed,
		Error:      in.Reason,
		UpdatedAt:  time.Now().UTC(),
	}
	// the store already holds the failed status; this only notifies listeners
	for _, sink := range a.sinks[1:] {
		if err := sink.WriteFinal(ctx, final); err != nil {
			a.log.Warn("failed status not published", "document_id", in.DocumentID, "error", err)
		}
	}
	return nil
}

func (a *Activities) WriteRunSummaryActivity(_ context.Context, in WriteRunSummaryInput) (WriteRunSummaryOutput, error) {
	path, err := util.DocumentArtifactPath(a.cfg.DataOutRoot, in.DocumentID, "generation_summary.json")
	if err != nil {
		return WriteRunSummaryOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidDocumentID", err)
	}
	if err := util.WriteJSONAtomic(path, in.Summary); err != nil {
		return WriteRunSummaryOutput{}, err
	}
	return WriteRunSummaryOutput{Path: path}, nil
}

// startHeartbeat reports liveness while the run is going. Outside an activity
// context it does nothing.
func (a *Activities) startHeartbeat(ctx context.Context) func() {
	if !activity.IsActivity(ctx) {
		return func() {}
	}
	interval := defaultHeartbeatInterval
	if hb := activity.GetInfo(ctx).HeartbeatTimeout; hb > 0 && hb/2 < interval {
		interval = hb / 2
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx, "generating")
			}
		}
	}()
	return func() { close(done) }
}
