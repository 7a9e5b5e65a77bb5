package quiz

import (
	"strings"
	"sync"
	"unicode"

	"quizgen/internal/models"
)

const DefaultSimilarityThreshold = 0.9

type seenPrompt struct {
	key       string
	bigrams   map[string]int
	size      int
	unitOrder int
}

// Rejection records a candidate dropped as a near duplicate of an earlier prompt.
type Rejection struct {
	Candidate       models.CandidateItem
	DuplicateOfUnit int
	Similarity      float64
}

type FilterResult struct {
	Accepted []models.CandidateItem
	Rejected []Rejection
}

// Tracker remembers every accepted prompt of a run. It only grows, and is
// shared by all units of the run, including concurrently processed ones.
type Tracker struct {
	mu        sync.Mutex
	threshold float64
	seen      []seenPrompt
}

func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Tracker{threshold: threshold}
}

// Filter splits candidates into accepted and rejected, accepting at most limit
// candidates (no limit when limit <= 0). Accepted prompts are remembered
// before the next candidate is checked, so duplicates inside one batch are
// caught too. Candidates past the limit are neither accepted nor remembered.
// Candidates with a blank prompt are rejected.
func (t *Tracker) Filter(candidates []models.CandidateItem, unitOrder, limit int) FilterResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := FilterResult{Accepted: make([]models.CandidateItem, 0, len(candidates))}
	for _, c := range candidates {
		if limit > 0 && len(res.Accepted) >= limit {
			break
		}
		norm := normalizePrompt(c.Prompt)
		if norm == "" {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, DuplicateOfUnit: -1})
			continue
		}
		grams, size := bigrams(norm)
		if match, score, dup := t.closest(grams, size); dup {
			res.Rejected = append(res.Rejected, Rejection{Candidate: c, DuplicateOfUnit: match, Similarity: score})
			continue
		}
		t.seen = append(t.seen, seenPrompt{key: norm, bigrams: grams, size: size, unitOrder: unitOrder})
		res.Accepted = append(res.Accepted, c)
	}
	return res
}

// Forget drops prompts that Filter accepted but that never made it into the
// run, so later candidates are not rejected against them.
func (t *Tracker) Forget(prompts []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range prompts {
		key := normalizePrompt(p)
		if key == "" {
			continue
		}
		for i := len(t.seen) - 1; i >= 0; i-- {
			if t.seen[i].key == key {
				t.seen = append(t.seen[:i], t.seen[i+1:]...)
				break
			}
		}
	}
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

func (t *Tracker) closest(grams map[string]int, size int) (int, float64, bool) {
	best := 0.0
	unit := -1
	for _, s := range t.seen {
		score := dice(grams, size, s.bigrams, s.size)
		if score > best {
			best = score
			unit = s.unitOrder
		}
		if score >= t.threshold {
			return s.unitOrder, score, true
		}
	}
	return unit, best, false
}

// Similarity is the Sørensen–Dice coefficient over character bigrams of the
// normalized prompts, in [0,1].
func Similarity(a, b string) float64 {
	ga, sa := bigrams(normalizePrompt(a))
	gb, sb := bigrams(normalizePrompt(b))
	return dice(ga, sa, gb, sb)
}

func normalizePrompt(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func bigrams(s string) (map[string]int, int) {
	runes := []rune(s)
	if len(runes) < 2 {
		if len(runes) == 1 {
			return map[string]int{s: 1}, 1
		}
		return map[string]int{}, 0
	}
	out := make(map[string]int, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out[string(runes[i:i+2])]++
	}
	return out, len(runes) - 1
}

func dice(a map[string]int, sa int, b map[string]int, sb int) float64 {
	if sa == 0 || sb == 0 {
		return 0
	}
	inter := 0
	for g, n := range a {
		if m, ok := b[g]; ok {
			inter += min(n, m)
		}
	}
	return 2 * float64(inter) / float64(sa+sb)
}
