package quiz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizgen/internal/models"
)

func newTestProcessor(gen Generator, store Store) *UnitProcessor {
	p := NewUnitProcessor(gen, store, NewTracker(0), nil, testPolicy(), "doc", "en")
	p.sleep = noSleep
	return p
}

func TestProcessFillsQuotaInOnePass(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	gen := newScriptedGenerator()
	u := unit("u1", 1)
	require.NoError(t, store.UpsertUnits(ctx, []models.ContentUnit{u}))

	res, err := newTestProcessor(gen, store).Process(ctx, u, standardConfig())
	require.NoError(t, err)
	require.Equal(t, 10, res.Accepted)
	require.Equal(t, 1, res.Calls)
	require.Equal(t, 1, res.Passes)

	items, err := store.ListItems(ctx, "doc", "u1")
	require.NoError(t, err)
	require.Len(t, items, 10)
	for i, it := range items {
		require.Equal(t, i, it.Sequence)
		require.Len(t, it.Options, 4)
	}
	require.Equal(t, []models.UnitStatus{models.UnitProcessing, models.UnitReady}, store.UnitStatusHistory("u1"))
}

func TestProcessOverRequestsByHalf(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	var requested []int
	gen.script["u1"] = func(req GenerateRequest, call int) ([]models.CandidateItem, error) {
		requested = append(requested, req.Config.RequestedCount)
		return distinctCandidates("u1", call, 3), nil
	}
	_, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	// 10 needed -> 15 requested, then 7 needed -> 11 requested.
	require.Equal(t, []int{15, 11}, requested)
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(req GenerateRequest, call int) ([]models.CandidateItem, error) {
		if call <= 2 {
			return nil, errors.New("upstream timeout")
		}
		return distinctCandidates("u1", call, req.Config.RequestedCount), nil
	}
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 3, res.Calls)
	require.Equal(t, 10, res.Accepted)
}

func TestProcessBoundedCallsWhenAlwaysFailing(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return nil, errors.New("503 unavailable")
	}
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 6, res.Calls)
	require.Zero(t, res.Accepted)
	require.Equal(t, []models.UnitStatus{models.UnitProcessing}, store.UnitStatusHistory("u1"))
}

func TestProcessNonRetryableAbandonsPass(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return nil, NonRetryable("policy", errors.New("content policy violation"))
	}
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 2, res.Calls, "one call per pass")
	require.Contains(t, res.LastErr, "content policy")
}

func TestProcessEmptyResponsesAreRetried(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(req GenerateRequest, call int) ([]models.CandidateItem, error) {
		if call == 1 {
			return nil, nil
		}
		return distinctCandidates("u1", call, req.Config.RequestedCount), nil
	}
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 2, res.Calls)
	require.Equal(t, 10, res.Accepted)
}

func TestProcessRetriesFailedInsertInSmallBatches(t *testing.T) {
	store := newFlakyStore()
	store.failOver = 5
	gen := newScriptedGenerator()
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 10, res.Accepted)
	// one rejected pass insert, then two batches of five
	require.Equal(t, 3, store.insertCalls)
}

func TestProcessDropsItemsWhenInsertsKeepFailing(t *testing.T) {
	store := newFlakyStore()
	store.failInserts = 100
	gen := newScriptedGenerator()
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Zero(t, res.Accepted)
	require.Equal(t, 2, res.Passes)
}

func TestProcessStopsAtConceptCoverage(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(_ GenerateRequest, call int) ([]models.CandidateItem, error) {
		out := distinctCandidates("u1", call, 3)
		out[0].ConceptIDs = []string{"c1"}
		out[1].ConceptIDs = []string{"c2", "unknown"}
		out[2].ConceptIDs = []string{"c3"}
		return out, nil
	}
	u := unit("u1", 1, "c1", "c2", "c3")
	require.NoError(t, store.UpsertUnits(context.Background(), []models.ContentUnit{u}))
	res, err := newTestProcessor(gen, store).Process(context.Background(), u, standardConfig())
	require.NoError(t, err)
	require.Equal(t, 1, res.Passes)
	require.Equal(t, 3, res.Accepted)
	require.Equal(t, 3, res.Covered)

	units, err := store.ListUnits(context.Background(), "doc")
	require.NoError(t, err)
	require.Equal(t, 3, units[0].ConceptsCovered)
	require.Equal(t, 3, units[0].ConceptsTotal)
	require.Equal(t, models.UnitReady, units[0].Status)
	for _, l := range store.Links() {
		require.NotEqual(t, "unknown", l.ConceptID)
	}
}

func TestProcessRoundRobinConcepts(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	u := unit("u1", 1, "c1", "c2")
	_, err := newTestProcessor(gen, store).Process(context.Background(), u, standardConfig())
	require.NoError(t, err)
	seen := map[string]int{}
	for _, l := range store.Links() {
		seen[l.ConceptID]++
	}
	require.Equal(t, map[string]int{"c1": 5, "c2": 5}, seen)
}

func TestProcessContinuesFromExistingItems(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.InsertItems(ctx, []models.GeneratedItem{{ItemID: "old-1", UnitID: "u1"}, {ItemID: "old-2", UnitID: "u1", Sequence: 1}}))
	store.insertCalls = 0
	gen := newScriptedGenerator()
	var requested int
	gen.script["u1"] = func(req GenerateRequest, call int) ([]models.CandidateItem, error) {
		requested = req.Config.RequestedCount
		return distinctCandidates("u1", call, req.Config.RequestedCount), nil
	}

	res, err := newTestProcessor(gen, store).Process(ctx, unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 2, res.Existing)
	require.Equal(t, 8, res.Accepted)
	require.Equal(t, 12, requested)

	counts, err := store.CountItemsByUnit(ctx, []string{"u1"})
	require.NoError(t, err)
	require.Equal(t, 10, counts["u1"])
}

func TestProcessSecondPassSkipsDuplicates(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return distinctCandidates("u1", 1, 4), nil
	}
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 4, res.Accepted)
	require.Equal(t, 4, res.Rejected)
	require.Equal(t, 2, res.Passes)
}

func TestProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		cancel()
		return nil, context.Canceled
	}
	_, err := newTestProcessor(gen, store).Process(ctx, unit("u1", 1), standardConfig())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, gen.Calls("u1"))
}

func TestAssignConcepts(t *testing.T) {
	u := unit("u1", 1, "a", "b", "c")
	require.Equal(t, []string{"b"}, assignConcepts(u, []string{"x", "b", "b"}, 0))
	require.Equal(t, []string{"c"}, assignConcepts(u, nil, 5))
	require.Nil(t, assignConcepts(unit("u2", 1), []string{"a"}, 0))
}

func TestProcessFailedInsertDoesNotBlockRetry(t *testing.T) {
	store := newFlakyStore()
	// the pass insert and both retry batches of five fail
	store.failInserts = 3
	gen := newScriptedGenerator()
	same := distinctCandidates("u1", 1, 15)
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return same, nil
	}
	res, err := newTestProcessor(gen, store).Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 2, res.Passes)
	require.Equal(t, 10, res.Accepted)
	require.Zero(t, res.Rejected)
}

func TestProcessSurplusCandidatesStayAvailable(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	shared := distinctCandidates("shared", 1, 15)
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return shared, nil
	}
	gen.script["u2"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return shared[10:], nil
	}
	p := newTestProcessor(gen, store)

	first, err := p.Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 10, first.Accepted)

	second, err := p.Process(context.Background(), unit("u2", 2), standardConfig())
	require.NoError(t, err)
	require.Equal(t, 5, second.Accepted)
	// pass 2 sees the same five again
	require.Equal(t, 5, second.Rejected)
}

func TestProcessPerItemPersistence(t *testing.T) {
	store := newFlakyStore()
	store.failInserts = 1
	gen := newScriptedGenerator()
	policy := testPolicy()
	policy.Persistence = PersistPerItem
	p := NewUnitProcessor(gen, store, NewTracker(0), nil, policy, "doc", "en")
	p.sleep = noSleep

	res, err := p.Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	// the first item is lost, pass 2 replaces it
	require.Equal(t, 10, res.Accepted)
	require.Equal(t, 2, res.Passes)
	require.Equal(t, 11, store.insertCalls)
}

func TestProcessLinearBackoff(t *testing.T) {
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return nil, errors.New("503 unavailable")
	}
	policy := testPolicy()
	policy.RetryDelay = 2 * time.Second
	rec := &sleepRecorder{}
	p := NewUnitProcessor(gen, store, NewTracker(0), nil, policy, "doc", "en")
	p.sleep = rec.sleep

	_, err := p.Process(context.Background(), unit("u1", 1), standardConfig())
	require.NoError(t, err)
	d := 2 * time.Second
	require.Equal(t, []time.Duration{d, 2 * d, d, 2 * d}, rec.Delays())
}

func TestProcessCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newFlakyStore()
	gen := newScriptedGenerator()
	gen.script["u1"] = func(GenerateRequest, int) ([]models.CandidateItem, error) {
		return nil, errors.New("503 unavailable")
	}
	p := NewUnitProcessor(gen, store, NewTracker(0), nil, testPolicy(), "doc", "en")
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res, err := p.Process(ctx, unit("u1", 1), standardConfig())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, res.Calls)
	require.Equal(t, 1, gen.Calls("u1"))
}
