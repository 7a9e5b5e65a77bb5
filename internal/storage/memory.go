package storage

import (
	"context"
	"sort"
	"sync"

	"quizgen/internal/models"
)

// MemoryStore keeps a run in process memory. It backs the local CLI and tests
// and offers the same calls as QuizStore.
type MemoryStore struct {
	mu       sync.Mutex
	units    map[string]models.ContentUnit
	items    []models.GeneratedItem
	links    []models.ItemConceptLink
	runs     map[string]models.RunProgress
	history  map[string][]models.RunProgress
	calls    []models.LLMCall
	statuses map[string][]models.UnitStatus
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:    map[string]models.ContentUnit{},
		runs:     map[string]models.RunProgress{},
		history:  map[string][]models.RunProgress{},
		statuses: map[string][]models.UnitStatus{},
	}
}

func (m *MemoryStore) UpsertUnits(_ context.Context, units []models.ContentUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range units {
		if old, ok := m.units[u.UnitID]; ok {
			u.Status = old.Status
			u.ConceptsCovered = old.ConceptsCovered
		}
		u.ConceptsTotal = len(u.Concepts)
		m.units[u.UnitID] = u
	}
	return nil
}

func (m *MemoryStore) ListUnits(_ context.Context, documentID string) ([]models.ContentUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ContentUnit, 0)
	for _, u := range m.units {
		if u.DocumentID == documentID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out, nil
}

func (m *MemoryStore) SetUnitStatus(_ context.Context, unitID string, status models.UnitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.units[unitID]
	u.UnitID = unitID
	u.Status = status
	m.units[unitID] = u
	m.statuses[unitID] = append(m.statuses[unitID], status)
	return nil
}

func (m *MemoryStore) SaveUnitCoverage(_ context.Context, unitID string, covered, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.units[unitID]
	u.UnitID = unitID
	u.ConceptsCovered = covered
	u.ConceptsTotal = total
	m.units[unitID] = u
	return nil
}

func (m *MemoryStore) InsertItems(_ context.Context, items []models.GeneratedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
	return nil
}

func (m *MemoryStore) InsertItemConcepts(_ context.Context, links []models.ItemConceptLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, links...)
	return nil
}

func (m *MemoryStore) CountItemsByUnit(_ context.Context, unitIDs []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(unitIDs))
	for _, id := range unitIDs {
		out[id] = 0
	}
	for _, it := range m.items {
		if _, ok := out[it.UnitID]; ok {
			out[it.UnitID]++
		}
	}
	return out, nil
}

// ListItems returns items of a document in unit order, optionally for one unit.
func (m *MemoryStore) ListItems(_ context.Context, documentID, unitID string) ([]models.GeneratedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GeneratedItem, 0)
	for _, it := range m.items {
		u, ok := m.units[it.UnitID]
		if !ok || u.DocumentID != documentID {
			continue
		}
		if unitID != "" && it.UnitID != unitID {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := m.units[out[i].UnitID].OrderIndex, m.units[out[j].UnitID].OrderIndex
		if oi != oj {
			return oi < oj
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (m *MemoryStore) Links() []models.ItemConceptLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ItemConceptLink(nil), m.links...)
}

// UnitStatusHistory lists every status written for a unit, oldest first.
func (m *MemoryStore) UnitStatusHistory(unitID string) []models.UnitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.UnitStatus(nil), m.statuses[unitID]...)
}

func (m *MemoryStore) ClaimRun(_ context.Context, documentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.runs[documentID]; ok && cur.Status == models.RunGenerating {
		return false, nil
	}
	m.runs[documentID] = models.RunProgress{DocumentID: documentID, Status: models.RunGenerating, Stage: "queued"}
	m.history[documentID] = nil
	return true, nil
}

func (m *MemoryStore) WriteProgress(_ context.Context, p models.RunProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[p.DocumentID] = p
	m.history[p.DocumentID] = append(m.history[p.DocumentID], p)
	return nil
}

func (m *MemoryStore) WriteFinal(ctx context.Context, p models.RunProgress) error {
	return m.WriteProgress(ctx, p)
}

func (m *MemoryStore) MarkFailed(_ context.Context, documentID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.runs[documentID]
	p.DocumentID = documentID
	p.Status = models.RunFailed
	p.Stage = "failed"
	p.Error = reason
	m.runs[documentID] = p
	m.history[documentID] = append(m.history[documentID], p)
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, documentID string) (models.RunProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.runs[documentID]
	if !ok {
		return models.RunProgress{}, ErrRunNotFound
	}
	return p, nil
}

// ProgressHistory lists every progress write for a document, oldest first.
func (m *MemoryStore) ProgressHistory(documentID string) []models.RunProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RunProgress(nil), m.history[documentID]...)
}

func (m *MemoryStore) RecordCall(_ context.Context, rec models.LLMCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rec)
	return nil
}

func (m *MemoryStore) Calls() []models.LLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LLMCall(nil), m.calls...)
}
