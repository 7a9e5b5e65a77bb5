package models

import (
	"math"
	"strings"
)

// Niveau is the difficulty/volume tier requested for a run.
type Niveau string

const (
	NiveauLight      Niveau = "light"
	NiveauStandard   Niveau = "standard"
	NiveauDeep       Niveau = "deep"
	NiveauExhaustive Niveau = "exhaustive"
)

const (
	BaseUnitQuota  = 10
	ExhaustiveCap  = 40
	DefaultNiveau  = NiveauStandard
	defaultTypeKey = "multiple_choice"
)

var niveauScale = map[Niveau]float64{
	NiveauLight:    0.5,
	NiveauStandard: 1.0,
	NiveauDeep:     1.5,
}

// ParseNiveau maps user input to a known tier; unknown values fall back to standard.
func ParseNiveau(s string) Niveau {
	n := Niveau(strings.ToLower(strings.TrimSpace(s)))
	if n == NiveauExhaustive {
		return n
	}
	if _, ok := niveauScale[n]; ok {
		return n
	}
	return DefaultNiveau
}

// GenerationConfig is immutable for a run. RequestedCount is advisory and only
// ever changed on copies handed to the generation service.
type GenerationConfig struct {
	Niveau         Niveau          `json:"niveau"`
	ItemTypes      map[string]bool `json:"item_types"`
	RequestedCount int             `json:"requested_count,omitempty"`
}

func (c GenerationConfig) WithRequestedCount(n int) GenerationConfig {
	c.RequestedCount = n
	return c
}

// UnitQuota is the number of items one unit should end up with.
func (c GenerationConfig) UnitQuota() int {
	if c.Niveau == NiveauExhaustive {
		return ExhaustiveCap
	}
	scale, ok := niveauScale[c.Niveau]
	if !ok {
		scale = niveauScale[DefaultNiveau]
	}
	q := int(math.Round(BaseUnitQuota * scale))
	if q < 1 {
		q = 1
	}
	return q
}

// EnabledKinds lists the enabled item kinds in a stable order. With no flags
// set, multiple choice is the only kind.
func (c GenerationConfig) EnabledKinds() []ItemKind {
	out := make([]ItemKind, 0, 3)
	for _, k := range []ItemKind{KindMultipleChoice, KindTrueFalse, KindFillBlank} {
		if c.ItemTypes[string(k)] {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		out = append(out, ItemKind(defaultTypeKey))
	}
	return out
}
