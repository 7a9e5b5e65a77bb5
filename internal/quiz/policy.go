package quiz

import (
	"context"
	"strings"
	"time"
)

// Persistence says when accepted items of a unit are written.
type Persistence string

const (
	// PersistPerPass writes the items of one pass in a single call.
	PersistPerPass Persistence = "per_pass"
	// PersistPerItem writes items one at a time so a bad item costs only itself.
	PersistPerItem Persistence = "per_item"
)

// Policy bounds the work of a run. Every retry, sweep and batch limit lives here.
type Policy struct {
	MinSourceChars      int
	MaxPasses           int
	AttemptsPerPass     int
	OverRequestFactor   float64
	CoverageTarget      float64
	RetryDelay          time.Duration
	BatchSize           int
	RetrySweeps         int
	SweepDelay          time.Duration
	InsertFallbackBatch int
	SimilarityThreshold float64
	Persistence         Persistence
}

func DefaultPolicy() Policy {
	return Policy{
		MinSourceChars:      100,
		MaxPasses:           2,
		AttemptsPerPass:     3,
		OverRequestFactor:   1.5,
		CoverageTarget:      0.8,
		RetryDelay:          2 * time.Second,
		BatchSize:           3,
		RetrySweeps:         3,
		SweepDelay:          5 * time.Second,
		InsertFallbackBatch: 5,
		SimilarityThreshold: DefaultSimilarityThreshold,
		Persistence:         PersistPerPass,
	}
}

// ParsePersistence maps a config value to a Persistence. Unknown values
// fall back to PersistPerPass.
func ParsePersistence(s string) Persistence {
	switch p := Persistence(strings.ToLower(strings.TrimSpace(s))); p {
	case PersistPerPass, PersistPerItem:
		return p
	}
	return PersistPerPass
}

// withDefaults fills zero fields from DefaultPolicy. Delays are left alone so
// tests can run with no waiting.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MinSourceChars <= 0 {
		p.MinSourceChars = d.MinSourceChars
	}
	if p.MaxPasses <= 0 {
		p.MaxPasses = d.MaxPasses
	}
	if p.AttemptsPerPass <= 0 {
		p.AttemptsPerPass = d.AttemptsPerPass
	}
	if p.OverRequestFactor < 1 {
		p.OverRequestFactor = d.OverRequestFactor
	}
	if p.CoverageTarget <= 0 || p.CoverageTarget > 1 {
		p.CoverageTarget = d.CoverageTarget
	}
	if p.BatchSize <= 0 {
		p.BatchSize = d.BatchSize
	}
	if p.RetrySweeps < 0 {
		p.RetrySweeps = 0
	}
	if p.InsertFallbackBatch <= 0 {
		p.InsertFallbackBatch = d.InsertFallbackBatch
	}
	if p.SimilarityThreshold <= 0 || p.SimilarityThreshold > 1 {
		p.SimilarityThreshold = d.SimilarityThreshold
	}
	switch p.Persistence {
	case PersistPerPass, PersistPerItem:
	default:
		p.Persistence = d.Persistence
	}
	return p
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
