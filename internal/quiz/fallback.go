package quiz

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"quizgen/internal/logger"
	"quizgen/internal/models"
	"quizgen/internal/util"
)

const (
	fallbackMinWords  = 8
	fallbackMaxWords  = 40
	fallbackMaxItems  = 5
	fallbackTrueRatio = 0.7
)

// FallbackGenerator builds true/false items straight from a unit's sentences
// without calling the generation service. It is the last resort for units
// that ended up with no items at all.
type FallbackGenerator struct {
	store          Store
	log            *logger.Logger
	minSourceChars int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewFallbackGenerator(store Store, log *logger.Logger, rng *rand.Rand, minSourceChars int) *FallbackGenerator {
	if log == nil {
		log = logger.Nop()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &FallbackGenerator{store: store, log: log, rng: rng, minSourceChars: minSourceChars}
}

// Build returns up to five true/false candidates. About 70% restate a source
// sentence and are true; the rest wrap it in a negation and are false.
func (f *FallbackGenerator) Build(unit models.ContentUnit, language string) []models.CandidateItem {
	if len([]rune(strings.TrimSpace(unit.SourceText))) < f.minSourceChars {
		return nil
	}
	text := plainText(unit.SourceText)
	loc := localeFor(language)
	title := strings.TrimSpace(unit.Title)
	out := make([]models.CandidateItem, 0, fallbackMaxItems)
	for _, s := range util.SplitSentences(text) {
		if len(out) == fallbackMaxItems {
			break
		}
		s = util.CollapseSpace(s)
		if wc := util.WordCount(s); wc < fallbackMinWords || wc > fallbackMaxWords {
			continue
		}
		truth := f.keepTrue()
		statement := s
		if !truth {
			statement = fmt.Sprintf(loc.Negation, lowerFirst(strings.TrimRight(s, ".!?")))
		}
		out = append(out, models.CandidateItem{
			Kind:           string(models.KindTrueFalse),
			Prompt:         statement,
			Truth:          &truth,
			Explanation:    fmt.Sprintf(loc.Explanation, title),
			SourceExcerpt:  s,
			CognitiveLevel: "remember",
		})
	}
	return out
}

// Generate builds, persists and links fallback items for one unit and returns
// how many were stored. Zero with a nil error means the text was too short.
func (f *FallbackGenerator) Generate(ctx context.Context, unit models.ContentUnit, language string) (int, error) {
	candidates := f.Build(unit, language)
	if len(candidates) == 0 {
		return 0, nil
	}
	existing, err := f.store.CountItemsByUnit(ctx, []string{unit.UnitID})
	if err != nil {
		return 0, fmt.Errorf("count items for fallback: %w", err)
	}
	norm := Normalizer{Language: language, DefaultDifficulty: "easy"}
	start := existing[unit.UnitID]
	items := make([]models.GeneratedItem, 0, len(candidates))
	links := make([]models.ItemConceptLink, 0, len(candidates))
	for i, c := range candidates {
		item, _ := norm.Normalize(c, uuid.NewString(), unit.UnitID, start+i)
		ids := assignConcepts(unit, nil, start+i)
		if len(ids) > 0 {
			item.ConceptID = &ids[0]
		}
		for _, id := range ids {
			links = append(links, models.ItemConceptLink{ItemID: item.ItemID, ConceptID: id})
		}
		items = append(items, item)
	}
	if err := f.store.InsertItems(ctx, items); err != nil {
		return 0, fmt.Errorf("insert fallback items: %w", err)
	}
	if err := f.store.InsertItemConcepts(ctx, links); err != nil {
		f.log.Warn("fallback concept links not saved", "unit_id", unit.UnitID, "error", err)
	}
	return len(items), nil
}

func (f *FallbackGenerator) keepTrue() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < fallbackTrueRatio
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	// Keep acronyms like "ADN" or "HTTP" intact.
	if len(r) > 1 && unicode.IsUpper(r[1]) {
		return s
	}
	return strings.ToLower(string(r[:1])) + string(r[1:])
}
