package quiz

import (
	"context"
	"sync"
	"time"

	"quizgen/internal/logger"
	"quizgen/internal/models"
)

const (
	StageStarting   = "starting"
	StageAnalyzing  = "analyzing"
	StageExtracting = "extracting"
	StageGenerating = "generating"
	StageRetrying   = "retrying"
	StageValidating = "validating"
	StageSaving     = "saving"
	StageComplete   = "complete"
	StageFailed     = "failed"
)

const (
	percentStarting        = 3
	percentAnalyzing       = 8
	percentExtracting      = 15
	percentGenerationStart = 20
	percentGenerationEnd   = 88
	percentSaving          = 95
	percentComplete        = 100

	progressWriteTimeout = 5 * time.Second
)

// ProgressUpdate is one report. Zero fields leave the current value alone;
// Accepted is added to the running total.
type ProgressUpdate struct {
	Stage    string
	Percent  int
	Accepted int
	Target   int
}

// ProgressReporter serializes progress writes for one run. The stored percent
// never goes down, whatever order concurrent units report in, and write
// failures are logged and dropped.
type ProgressReporter struct {
	mu      sync.Mutex
	sink    ProgressSink
	log     *logger.Logger
	current models.RunProgress
	done    bool
	now     func() time.Time
}

func NewProgressReporter(documentID string, sink ProgressSink, log *logger.Logger) *ProgressReporter {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressReporter{
		sink: sink,
		log:  log,
		now:  time.Now,
		current: models.RunProgress{
			DocumentID: documentID,
			Status:     models.RunGenerating,
			Stage:      StageStarting,
		},
	}
}

func (r *ProgressReporter) Report(ctx context.Context, u ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	if u.Stage != "" {
		r.current.Stage = u.Stage
	}
	if u.Percent > r.current.Percent {
		r.current.Percent = min(u.Percent, percentComplete)
	}
	if u.Accepted > 0 {
		r.current.Accepted += u.Accepted
	}
	if u.Target > 0 {
		r.current.Target = u.Target
	}
	r.current.UpdatedAt = r.now().UTC()
	if r.sink == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, progressWriteTimeout)
	defer cancel()
	if err := r.sink.WriteProgress(wctx, r.current); err != nil {
		r.log.Warn("progress write failed", "document_id", r.current.DocumentID, "stage", r.current.Stage, "error", err)
	}
}

// Finish writes the terminal status once. It still writes after ctx is
// canceled, so a canceled run does not stay "generating".
func (r *ProgressReporter) Finish(ctx context.Context, status models.RunStatus, accepted int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.current.Status = status
	r.current.Accepted = accepted
	r.current.Error = message
	if status == models.RunFailed {
		r.current.Stage = StageFailed
	} else {
		r.current.Stage = StageComplete
		r.current.Percent = percentComplete
	}
	r.current.UpdatedAt = r.now().UTC()
	if r.sink == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), progressWriteTimeout)
	defer cancel()
	if err := r.sink.WriteFinal(wctx, r.current); err != nil {
		r.log.Error("final status write failed", "document_id", r.current.DocumentID, "status", status, "error", err)
	}
}

func (r *ProgressReporter) Snapshot() models.RunProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// generationPercent spreads the generation phase over its band by units done.
func generationPercent(done, total int) int {
	if total <= 0 {
		return percentGenerationEnd
	}
	span := percentGenerationEnd - percentGenerationStart
	return percentGenerationStart + span*min(done, total)/total
}
