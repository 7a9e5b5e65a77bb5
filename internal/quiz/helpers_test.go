package quiz

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"quizgen/internal/models"
	"quizgen/internal/storage"
)

// flakyStore wraps MemoryStore with injectable insert failures.
type flakyStore struct {
	*storage.MemoryStore

	mu          sync.Mutex
	failInserts int
	failOver    int
	insertCalls int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *flakyStore) InsertItems(ctx context.Context, items []models.GeneratedItem) error {
	s.mu.Lock()
	s.insertCalls++
	fail := s.failInserts > 0 || (s.failOver > 0 && len(items) > s.failOver)
	if s.failInserts > 0 {
		s.failInserts--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("insert rejected")
	}
	return s.MemoryStore.InsertItems(ctx, items)
}

// scriptedGenerator answers with per-unit scripts, or with fresh distinct
// candidates when a unit has no script.
type scriptedGenerator struct {
	mu     sync.Mutex
	calls  map[string]int
	script map[string]func(req GenerateRequest, call int) ([]models.CandidateItem, error)
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		calls:  map[string]int{},
		script: map[string]func(GenerateRequest, int) ([]models.CandidateItem, error){},
	}
}

func (g *scriptedGenerator) Generate(ctx context.Context, req GenerateRequest) ([]models.CandidateItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.calls[req.Unit.UnitID]++
	call := g.calls[req.Unit.UnitID]
	fn := g.script[req.Unit.UnitID]
	g.mu.Unlock()
	if fn != nil {
		return fn(req, call)
	}
	return distinctCandidates(req.Unit.UnitID, call, req.Config.RequestedCount), nil
}

func (g *scriptedGenerator) Calls(unitID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[unitID]
}

// distinctCandidates returns n multiple choice candidates with random
// prompts that do not resemble each other or those of other units and calls.
func distinctCandidates(unitID string, call, n int) []models.CandidateItem {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s/%d", unitID, call)))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(call)))
	out := make([]models.CandidateItem, 0, n)
	for i := 0; i < n; i++ {
		letters := make([]byte, 32)
		for j := range letters {
			letters[j] = byte('a' + rng.IntN(26))
		}
		idx := 1
		out = append(out, models.CandidateItem{
			Kind:         "multiple_choice",
			Prompt:       "Explain " + string(letters) + "?",
			Options:      []string{"first", "second", "third", "fourth"},
			CorrectIndex: &idx,
		})
	}
	return out
}

func longText(topic string) string {
	return fmt.Sprintf("%s is studied in this chapter with several worked examples for the reader. "+
		"The first section explains how %s was discovered and why it matters for the field today. "+
		"A second section compares %s with related ideas and lists the common mistakes students make. "+
		"Finally the chapter closes with exercises about %s and a short historical summary.", topic, topic, topic, topic)
}

func unit(id string, order int, concepts ...string) models.ContentUnit {
	u := models.ContentUnit{
		UnitID:     id,
		DocumentID: "doc",
		Title:      "Chapter " + id,
		OrderIndex: order,
		Difficulty: "medium",
		SourceText: longText(id),
	}
	for _, c := range concepts {
		u.Concepts = append(u.Concepts, models.Concept{ConceptID: c, UnitID: id, Title: "concept " + c})
	}
	return u
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// sleepRecorder records requested delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.RetryDelay = 0
	p.SweepDelay = 0
	return p
}

func standardConfig() models.GenerationConfig {
	return models.GenerationConfig{Niveau: models.NiveauStandard}
}
