package quiz

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"quizgen/internal/models"
	"quizgen/internal/storage"
)

const fallbackSource = `# Cells

All living organisms are made of one or more cells that carry out life processes.
Short line.
The nucleus stores the genetic information of the cell in long molecules of DNA.
Mitochondria convert nutrients into usable chemical energy for the whole cell.
Ribosomes read messenger RNA and assemble proteins from individual amino acids.
The cell membrane controls which substances may enter or leave the cell interior.
Plant cells also contain chloroplasts that capture light energy for photosynthesis.`

func TestFallbackBuildPicksSentences(t *testing.T) {
	fb := NewFallbackGenerator(storage.NewMemoryStore(), nil, rand.New(rand.NewPCG(1, 2)), 100)
	u := models.ContentUnit{UnitID: "u1", Title: "Cells", SourceText: fallbackSource}

	got := fb.Build(u, "en")
	require.Len(t, got, 5)
	for _, c := range got {
		require.Equal(t, string(models.KindTrueFalse), c.Kind)
		require.NotNil(t, c.Truth)
		require.NotContains(t, c.Prompt, "Short line")
		wc := len(strings.Fields(c.SourceExcerpt))
		require.GreaterOrEqual(t, wc, fallbackMinWords)
		require.LessOrEqual(t, wc, fallbackMaxWords)
		if *c.Truth {
			require.Equal(t, c.SourceExcerpt, c.Prompt)
		} else {
			require.True(t, strings.HasPrefix(c.Prompt, "It is not true that: "))
		}
	}
}

func TestFallbackBuildIsSeeded(t *testing.T) {
	u := models.ContentUnit{UnitID: "u1", SourceText: fallbackSource}
	a := NewFallbackGenerator(nil, nil, rand.New(rand.NewPCG(7, 7)), 100).Build(u, "fr")
	b := NewFallbackGenerator(nil, nil, rand.New(rand.NewPCG(7, 7)), 100).Build(u, "fr")
	require.Equal(t, a, b)
}

func TestFallbackGenerateRespectsMinimumLength(t *testing.T) {
	store := storage.NewMemoryStore()
	fb := NewFallbackGenerator(store, nil, nil, 100)
	n, err := fb.Generate(context.Background(), models.ContentUnit{UnitID: "u1", SourceText: "Too short to use."}, "fr")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFallbackGeneratePersistsAndLinks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	u := models.ContentUnit{
		UnitID: "u1", DocumentID: "doc", Title: "Cells", SourceText: fallbackSource,
		Concepts: []models.Concept{{ConceptID: "c1"}, {ConceptID: "c2"}},
	}
	require.NoError(t, store.UpsertUnits(ctx, []models.ContentUnit{u}))

	fb := NewFallbackGenerator(store, nil, rand.New(rand.NewPCG(3, 4)), 100)
	n, err := fb.Generate(ctx, u, "fr")
	require.NoError(t, err)
	require.Equal(t, 5, n)

	items, err := store.ListItems(ctx, "doc", "u1")
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i, it := range items {
		require.Equal(t, i, it.Sequence)
		require.Equal(t, []string{"Vrai", "Faux"}, it.Options)
		require.Equal(t, "easy", it.Difficulty)
		require.NotNil(t, it.ConceptID)
	}
	require.Len(t, store.Links(), 5)
}

func TestFallbackBuildIndentedSource(t *testing.T) {
	indented := "    " + strings.ReplaceAll(strings.TrimPrefix(fallbackSource, "# Cells\n\n"), "\n", "\n    ")
	u := models.ContentUnit{UnitID: "u1", SourceText: indented}
	got := NewFallbackGenerator(nil, nil, rand.New(rand.NewPCG(1, 2)), 100).Build(u, "en")
	require.Len(t, got, 5)
}
