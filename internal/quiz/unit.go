package quiz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"quizgen/internal/logger"
	"quizgen/internal/models"
)

// UnitResult summarizes one processor run over a unit.
type UnitResult struct {
	UnitID   string `json:"unit_id"`
	Existing int    `json:"existing"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Passes   int    `json:"passes"`
	Calls    int    `json:"calls"`
	Covered  int    `json:"covered"`
	Concepts int    `json:"concepts"`
	LastErr  string `json:"last_error,omitempty"`
}

// Total is the number of items the unit holds after the run.
func (r UnitResult) Total() int {
	return r.Existing + r.Accepted
}

// UnitProcessor fills one unit up to its quota with a bounded number of
// passes and attempts. One processor is shared by all units of a run.
type UnitProcessor struct {
	gen        Generator
	store      Store
	tracker    *Tracker
	log        *logger.Logger
	policy     Policy
	documentID string
	language   string
	sleep      func(context.Context, time.Duration) error
	newID      func() string

	// OnPersisted is called after items of a unit are written.
	OnPersisted func(unitID string, n int)
}

func NewUnitProcessor(gen Generator, store Store, tracker *Tracker, log *logger.Logger, policy Policy, documentID, language string) *UnitProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &UnitProcessor{
		gen:        gen,
		store:      store,
		tracker:    tracker,
		log:        log,
		policy:     policy.withDefaults(),
		documentID: documentID,
		language:   language,
		sleep:      sleepCtx,
		newID:      uuid.NewString,
	}
}

// Process runs up to MaxPasses passes over the unit. Generation failures are
// absorbed; the returned error is for persistence failures and cancellation.
// The unit is marked ready only when it holds at least one item.
func (p *UnitProcessor) Process(ctx context.Context, unit models.ContentUnit, cfg models.GenerationConfig) (UnitResult, error) {
	ctx, span := tracer.Start(ctx, "quiz.ProcessUnit", trace.WithAttributes(
		attribute.String("unit.id", unit.UnitID),
		attribute.Int("unit.order", unit.OrderIndex),
	))
	defer span.End()

	log := p.log.With("document_id", p.documentID, "unit_id", unit.UnitID, "order", unit.OrderIndex)
	res := UnitResult{UnitID: unit.UnitID, Concepts: len(unit.Concepts)}

	if err := p.store.SetUnitStatus(ctx, unit.UnitID, models.UnitProcessing); err != nil {
		return res, fmt.Errorf("mark unit processing: %w", err)
	}
	counts, err := p.store.CountItemsByUnit(ctx, []string{unit.UnitID})
	if err != nil {
		return res, fmt.Errorf("count existing items: %w", err)
	}
	res.Existing = counts[unit.UnitID]

	quota := cfg.UnitQuota()
	source := PlainSource(unit)
	norm := Normalizer{Language: p.language, DefaultDifficulty: unit.Difficulty}
	covered := map[string]struct{}{}

	for pass := 1; pass <= p.policy.MaxPasses; pass++ {
		needed := quota - res.Total()
		if needed <= 0 {
			break
		}
		res.Passes = pass
		request := int(math.Ceil(float64(needed) * p.policy.OverRequestFactor))
		req := GenerateRequest{
			DocumentID: p.documentID,
			Unit:       unit,
			SourceText: source,
			Language:   p.language,
			Config:     cfg.WithRequestedCount(request),
			Pass:       pass,
		}

		candidates, calls, out, lastErr := p.runPass(ctx, req, log)
		res.Calls += calls
		if lastErr != nil {
			res.LastErr = lastErr.Error()
		}
		if out == outcomeCanceled {
			return res, ctx.Err()
		}
		if len(candidates) == 0 {
			continue
		}

		filtered := p.tracker.Filter(candidates, unit.OrderIndex, needed)
		res.Rejected += len(filtered.Rejected)
		for _, r := range filtered.Rejected {
			log.Debug("duplicate candidate dropped", "similarity", r.Similarity, "duplicate_of_unit", r.DuplicateOfUnit)
		}
		keep := filtered.Accepted

		items := make([]models.GeneratedItem, 0, len(keep))
		links := make([]models.ItemConceptLink, 0, len(keep))
		for i, c := range keep {
			seq := res.Total() + i
			item, resolved := norm.Normalize(c, p.newID(), unit.UnitID, seq)
			if !resolved {
				log.Warn("ambiguous_answer", "item_id", item.ItemID, "prompt", item.Prompt)
			}
			ids := assignConcepts(unit, c.ConceptIDs, seq)
			if len(ids) > 0 {
				item.ConceptID = &ids[0]
			}
			for _, id := range ids {
				links = append(links, models.ItemConceptLink{ItemID: item.ItemID, ConceptID: id})
			}
			items = append(items, item)
		}

		saved := p.persist(ctx, items, log)
		if lost := unsavedPrompts(keep, items, saved); len(lost) > 0 {
			p.tracker.Forget(lost)
		}
		if len(saved) > 0 {
			p.linkConcepts(ctx, saved, links, log)
			for _, l := range links {
				if _, ok := saved[l.ItemID]; ok {
					covered[l.ConceptID] = struct{}{}
				}
			}
			res.Accepted += len(saved)
			if p.OnPersisted != nil {
				p.OnPersisted(unit.UnitID, len(saved))
			}
		}
		log.Info("pass done", "pass", pass, "requested", request, "candidates", len(candidates), "accepted", len(saved), "total", res.Total())

		if res.Total() >= quota || coverageRatio(len(covered), len(unit.Concepts)) >= p.policy.CoverageTarget {
			break
		}
	}

	res.Covered = len(covered)
	span.SetAttributes(attribute.Int("unit.accepted", res.Accepted), attribute.Int("unit.calls", res.Calls))
	if res.Total() > 0 {
		if err := p.store.SetUnitStatus(ctx, unit.UnitID, models.UnitReady); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return res, fmt.Errorf("mark unit ready: %w", err)
		}
	}
	if err := p.store.SaveUnitCoverage(ctx, unit.UnitID, res.Covered, res.Concepts); err != nil {
		log.Warn("coverage counters not saved", "error", err)
	}
	return res, nil
}

// runPass makes up to AttemptsPerPass calls with linear backoff and returns
// the first non-empty candidate list.
func (p *UnitProcessor) runPass(ctx context.Context, req GenerateRequest, log *logger.Logger) ([]models.CandidateItem, int, outcome, error) {
	var lastErr error
	calls := 0
	for attempt := 0; attempt < p.policy.AttemptsPerPass; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, time.Duration(attempt)*p.policy.RetryDelay); err != nil {
				return nil, calls, outcomeCanceled, err
			}
		}
		req.Attempt = attempt
		calls++
		candidates, err := p.gen.Generate(ctx, req)
		if err == nil && len(candidates) == 0 {
			err = ErrEmptyResponse
		}
		out := classifyAttempt(ctx, err)
		switch out {
		case outcomeOK:
			return candidates, calls, out, nil
		case outcomeCanceled:
			return nil, calls, out, err
		case outcomeNonRetryable:
			log.Warn("generation refused, pass abandoned", "pass", req.Pass, "attempt", attempt, "error", err)
			return nil, calls, out, err
		default:
			lastErr = err
			log.Warn("generation attempt failed", "pass", req.Pass, "attempt", attempt, "error", err)
		}
	}
	return nil, calls, outcomeRetryable, lastErr
}

// persist writes items per the policy and returns the ids that were stored.
// A failed pass insert is retried once in small batches.
func (p *UnitProcessor) persist(ctx context.Context, items []models.GeneratedItem, log *logger.Logger) map[string]struct{} {
	saved := make(map[string]struct{}, len(items))
	if len(items) == 0 {
		return saved
	}
	batch := len(items)
	if p.policy.Persistence == PersistPerItem {
		batch = 1
	} else if err := p.store.InsertItems(ctx, items); err == nil {
		markSaved(saved, items)
		return saved
	} else {
		log.Warn("item insert failed, retrying in small batches", "items", len(items), "error", err)
		batch = p.policy.InsertFallbackBatch
	}
	for start := 0; start < len(items); start += batch {
		end := min(start+batch, len(items))
		chunk := items[start:end]
		if err := p.store.InsertItems(ctx, chunk); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Warn("item batch dropped", "items", len(chunk), "error", err)
			continue
		}
		markSaved(saved, chunk)
	}
	return saved
}

func (p *UnitProcessor) linkConcepts(ctx context.Context, saved map[string]struct{}, links []models.ItemConceptLink, log *logger.Logger) {
	out := make([]models.ItemConceptLink, 0, len(links))
	for _, l := range links {
		if _, ok := saved[l.ItemID]; ok {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return
	}
	if err := p.store.InsertItemConcepts(ctx, out); err != nil {
		log.Warn("concept links not saved", "links", len(out), "error", err)
	}
}

// unsavedPrompts lists the candidate prompts whose items were not stored.
// items[i] was built from keep[i].
func unsavedPrompts(keep []models.CandidateItem, items []models.GeneratedItem, saved map[string]struct{}) []string {
	var out []string
	for i, it := range items {
		if _, ok := saved[it.ItemID]; !ok {
			out = append(out, keep[i].Prompt)
		}
	}
	return out
}

func markSaved(saved map[string]struct{}, items []models.GeneratedItem) {
	for _, it := range items {
		saved[it.ItemID] = struct{}{}
	}
}

// assignConcepts keeps the candidate's concept ids that belong to the unit.
// Without any, it picks one of the unit's concepts round-robin by sequence.
func assignConcepts(unit models.ContentUnit, candidateIDs []string, sequence int) []string {
	if len(unit.Concepts) == 0 {
		return nil
	}
	valid := make(map[string]struct{}, len(unit.Concepts))
	for _, c := range unit.Concepts {
		valid[c.ConceptID] = struct{}{}
	}
	out := make([]string, 0, len(candidateIDs))
	seen := map[string]struct{}{}
	for _, id := range candidateIDs {
		if _, ok := valid[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > 0 {
		return out
	}
	if sequence < 0 {
		sequence = 0
	}
	return []string{unit.Concepts[sequence%len(unit.Concepts)].ConceptID}
}

func coverageRatio(covered, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(covered) / float64(total)
}
