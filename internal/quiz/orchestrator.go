package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"quizgen/internal/logger"
	"quizgen/internal/models"
)

var tracer = otel.Tracer("quizgen/quiz")

type RunRequest struct {
	DocumentID string                  `json:"document_id"`
	Language   string                  `json:"language"`
	Config     models.GenerationConfig `json:"config"`
	Units      []models.ContentUnit    `json:"units"`
}

// UnitOutcome is the final state of one eligible unit.
type UnitOutcome struct {
	UnitID     string            `json:"unit_id"`
	OrderIndex int               `json:"order_index"`
	Status     models.UnitStatus `json:"status"`
	Items      int               `json:"items"`
	Calls      int               `json:"calls"`
	Fallback   bool              `json:"fallback"`
	Error      string            `json:"error,omitempty"`
}

type RunResult struct {
	DocumentID string             `json:"document_id"`
	Status     models.RunStatus   `json:"status"`
	Accepted   int                `json:"accepted"`
	Target     int                `json:"target"`
	Skipped    []string           `json:"skipped,omitempty"`
	Units      []UnitOutcome      `json:"units"`
	Message    string             `json:"message,omitempty"`
	Progress   models.RunProgress `json:"progress"`
}

type Option func(*Orchestrator)

func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p.withDefaults() }
}

// WithRand seeds the fallback generator, for reproducible runs.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = r }
}

// WithSleep replaces the delay function used between attempts and sweeps.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// Orchestrator runs the generation of all units of a document.
type Orchestrator struct {
	gen    Generator
	store  Store
	sink   ProgressSink
	log    *logger.Logger
	policy Policy
	rng    *rand.Rand
	sleep  func(context.Context, time.Duration) error
}

func NewOrchestrator(gen Generator, store Store, sink ProgressSink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:    gen,
		store:  store,
		sink:   sink,
		log:    logger.Nop(),
		policy: DefaultPolicy(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds the mutable state of one Run call.
type run struct {
	req       RunRequest
	log       *logger.Logger
	reporter  *ProgressReporter
	processor *UnitProcessor
	units     []models.ContentUnit

	mu       sync.Mutex
	outcomes map[string]*UnitOutcome
	done     int
}

// Run generates items for every eligible unit and always leaves the run in a
// terminal status. The returned error is set only for cancellation or an
// unexpected failure; the result is filled in either way.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (res RunResult, err error) {
	ctx, span := tracer.Start(ctx, "quiz.Run")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", req.DocumentID), attribute.String("niveau", string(req.Config.Niveau)))

	log := o.log.With("document_id", req.DocumentID)
	reporter := NewProgressReporter(req.DocumentID, o.sink, log)
	res = RunResult{DocumentID: req.DocumentID}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("generation run panicked: %v", p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			res.Status = models.RunFailed
			res.Message = err.Error()
			res.Accepted = reporter.Snapshot().Accepted
			reporter.Finish(ctx, models.RunFailed, res.Accepted, res.Message)
			res.Progress = reporter.Snapshot()
			log.Error("generation run failed", "error", err)
		}
	}()

	eligible, skipped := eligibleUnits(req.Units, o.policy.MinSourceChars)
	res.Skipped = skipped
	if len(eligible) == 0 {
		res.Status = models.RunFailed
		res.Message = ErrNoEligibleUnits.Error()
		reporter.Finish(ctx, models.RunFailed, 0, res.Message)
		res.Progress = reporter.Snapshot()
		log.Warn("no eligible units", "units", len(req.Units))
		return res, nil
	}

	reporter.Report(ctx, ProgressUpdate{Stage: StageStarting, Percent: percentStarting})
	reporter.Report(ctx, ProgressUpdate{Stage: StageAnalyzing, Percent: percentAnalyzing})
	res.Target = req.Config.UnitQuota() * len(eligible)
	reporter.Report(ctx, ProgressUpdate{Stage: StageExtracting, Percent: percentExtracting, Target: res.Target})

	r := &run{
		req:      req,
		log:      log,
		reporter: reporter,
		units:    eligible,
		outcomes: make(map[string]*UnitOutcome, len(eligible)),
	}
	for _, u := range eligible {
		r.outcomes[u.UnitID] = &UnitOutcome{UnitID: u.UnitID, OrderIndex: u.OrderIndex, Status: models.UnitProcessing}
	}
	r.processor = NewUnitProcessor(o.gen, o.store, NewTracker(o.policy.SimilarityThreshold), log, o.policy, req.DocumentID, req.Language)
	r.processor.sleep = o.sleep
	r.processor.OnPersisted = func(_ string, n int) {
		reporter.Report(ctx, ProgressUpdate{Accepted: n})
	}

	reporter.Report(ctx, ProgressUpdate{Stage: StageGenerating, Percent: percentGenerationStart})
	if err := o.generate(ctx, r); err != nil {
		return res, err
	}

	reporter.Report(ctx, ProgressUpdate{Stage: StageValidating, Percent: percentGenerationEnd})
	if err := o.retrySweeps(ctx, r); err != nil {
		return res, err
	}
	if err := o.fallbackSweep(ctx, r); err != nil {
		return res, err
	}

	reporter.Report(ctx, ProgressUpdate{Stage: StageSaving, Percent: percentSaving})
	o.reconcile(ctx, r, &res)
	span.SetAttributes(attribute.String("run.status", string(res.Status)), attribute.Int("run.accepted", res.Accepted))

	message := ""
	if res.Status == models.RunFailed {
		message = "no items could be generated for any unit"
	}
	res.Message = message
	reporter.Finish(ctx, res.Status, res.Accepted, message)
	res.Progress = reporter.Snapshot()
	log.Info("generation run finished", "status", res.Status, "accepted", res.Accepted, "target", res.Target)
	return res, nil
}

// generate processes the first unit alone, then the rest in sequential
// batches of concurrent units. Each batch completes before the next starts.
func (o *Orchestrator) generate(ctx context.Context, r *run) error {
	first, rest := r.units[0], r.units[1:]
	o.processUnit(ctx, r, first, true)
	for start := 0; start < len(rest); start += o.policy.BatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("generation canceled: %w", err)
		}
		end := min(start+o.policy.BatchSize, len(rest))
		var g errgroup.Group
		for _, unit := range rest[start:end] {
			g.Go(func() error {
				o.processUnit(ctx, r, unit, true)
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("generation canceled: %w", err)
	}
	return nil
}

// processUnit runs the processor and records the outcome. Errors and panics
// fail only this unit.
func (o *Orchestrator) processUnit(ctx context.Context, r *run, unit models.ContentUnit, countsTowardProgress bool) {
	var (
		res UnitResult
		err error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("unit processor panicked: %v", p)
			}
		}()
		res, err = r.processor.Process(ctx, unit, r.req.Config)
	}()

	if err != nil && ctx.Err() == nil {
		r.log.Error("unit failed", "unit_id", unit.UnitID, "error", err)
		if serr := o.store.SetUnitStatus(ctx, unit.UnitID, models.UnitFailed); serr != nil {
			r.log.Warn("unit status not saved", "unit_id", unit.UnitID, "error", serr)
		}
	}

	r.mu.Lock()
	out := r.outcomes[unit.UnitID]
	out.Calls += res.Calls
	out.Items = res.Total()
	switch {
	case err != nil:
		out.Status = models.UnitFailed
		out.Error = err.Error()
	case res.Total() > 0:
		out.Status = models.UnitReady
		out.Error = ""
	default:
		out.Status = models.UnitProcessing
		out.Error = res.LastErr
	}
	if countsTowardProgress {
		r.done++
	}
	done := r.done
	r.mu.Unlock()

	if countsTowardProgress {
		r.reporter.Report(ctx, ProgressUpdate{Percent: generationPercent(done, len(r.units))})
	}
}

// retrySweeps reprocesses units that still hold no items, one unit at a time,
// waiting longer before each sweep.
func (o *Orchestrator) retrySweeps(ctx context.Context, r *run) error {
	for sweep := 1; sweep <= o.policy.RetrySweeps; sweep++ {
		empty := o.emptyUnits(ctx, r)
		if len(empty) == 0 {
			return nil
		}
		r.log.Info("retry sweep", "sweep", sweep, "units", len(empty))
		r.reporter.Report(ctx, ProgressUpdate{Stage: fmt.Sprintf("%s_%d", StageRetrying, sweep)})
		if err := o.sleep(ctx, time.Duration(sweep)*o.policy.SweepDelay); err != nil {
			return fmt.Errorf("retry sweep canceled: %w", err)
		}
		for _, unit := range empty {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry sweep canceled: %w", err)
			}
			o.processUnit(ctx, r, unit, false)
		}
	}
	return nil
}

// fallbackSweep gives every still empty unit template items built from its text.
func (o *Orchestrator) fallbackSweep(ctx context.Context, r *run) error {
	empty := o.emptyUnits(ctx, r)
	if len(empty) == 0 {
		return nil
	}
	r.reporter.Report(ctx, ProgressUpdate{Stage: StageValidating})
	fb := NewFallbackGenerator(o.store, r.log, o.rng, o.policy.MinSourceChars)
	for _, unit := range empty {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fallback canceled: %w", err)
		}
		n, err := fb.Generate(ctx, unit, r.req.Language)
		if err != nil {
			r.log.Error("fallback failed", "unit_id", unit.UnitID, "error", err)
		}
		status := models.UnitFailed
		if n > 0 {
			status = models.UnitReady
			r.reporter.Report(ctx, ProgressUpdate{Accepted: n})
		}
		if serr := o.store.SetUnitStatus(ctx, unit.UnitID, status); serr != nil {
			r.log.Warn("unit status not saved", "unit_id", unit.UnitID, "error", serr)
		}
		r.mu.Lock()
		out := r.outcomes[unit.UnitID]
		out.Items += n
		out.Status = status
		out.Fallback = n > 0
		if err != nil {
			out.Error = err.Error()
		} else if n == 0 && out.Error == "" {
			out.Error = "no usable sentences for fallback items"
		}
		r.mu.Unlock()
		r.log.Info("fallback items stored", "unit_id", unit.UnitID, "items", n)
	}
	return nil
}

// emptyUnits asks the store which units hold no items. When the store cannot
// answer, the in-memory outcomes are used instead.
func (o *Orchestrator) emptyUnits(ctx context.Context, r *run) []models.ContentUnit {
	counts, err := o.store.CountItemsByUnit(ctx, unitIDs(r.units))
	if err != nil {
		r.log.Warn("item count failed, using in-memory counts", "error", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ContentUnit, 0)
	for _, u := range r.units {
		n := r.outcomes[u.UnitID].Items
		if err == nil {
			n = counts[u.UnitID]
			r.outcomes[u.UnitID].Items = n
		}
		if n == 0 {
			out = append(out, u)
		}
	}
	return out
}

func (o *Orchestrator) reconcile(ctx context.Context, r *run, res *RunResult) {
	o.emptyUnits(ctx, r)
	r.mu.Lock()
	defer r.mu.Unlock()
	ready := 0
	res.Accepted = 0
	res.Units = make([]UnitOutcome, 0, len(r.units))
	for _, u := range r.units {
		out := r.outcomes[u.UnitID]
		if out.Items == 0 {
			out.Status = models.UnitFailed
		}
		if out.Status == models.UnitReady {
			ready++
		}
		res.Accepted += out.Items
		res.Units = append(res.Units, *out)
	}
	res.Status = aggregateStatus(res.Accepted, ready, len(r.units))
}

// aggregateStatus: no items at all is failed, every unit ready is ready,
// anything in between is partial.
func aggregateStatus(accepted, ready, total int) models.RunStatus {
	switch {
	case accepted == 0:
		return models.RunFailed
	case ready == total:
		return models.RunReady
	default:
		return models.RunPartial
	}
}

// eligibleUnits keeps units with enough source text, ordered by OrderIndex.
func eligibleUnits(units []models.ContentUnit, minChars int) ([]models.ContentUnit, []string) {
	out := make([]models.ContentUnit, 0, len(units))
	skipped := make([]string, 0)
	for _, u := range units {
		if len([]rune(strings.TrimSpace(u.SourceText))) < minChars {
			skipped = append(skipped, u.UnitID)
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, skipped
}

func unitIDs(units []models.ContentUnit) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.UnitID)
	}
	return out
}

// IsCanceled reports whether a Run error came from cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
