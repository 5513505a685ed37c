package pricing

import (
	"math"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// Metadata carries caller-supplied action details. Keys the catalog does not
// know are ignored, so callers can pass their full request context.
type Metadata map[string]interface{}

// Multiplier scales an action's base cost when a metadata threshold is met.
// Multipliers on the same action compose multiplicatively; the final cost is
// floor-rounded once after composition.
type Multiplier struct {
	Name   string
	Factor float64
	Match  func(md Metadata) bool
}

// Rule is the pricing configuration for one action type.
type Rule struct {
	BaseCost    int64
	Multipliers []Multiplier
}

// Catalog maps action types to pricing rules. The zero value prices every
// action at zero; use Default() for the production table.
type Catalog struct {
	rules map[string]Rule
}

// New builds a catalog from explicit rules.
func New(rules map[string]Rule) *Catalog {
	return &Catalog{rules: rules}
}

// Default returns the production pricing table.
func Default() *Catalog {
	return New(map[string]Rule{
		models.ActionChatMessage: {
			BaseCost: 1,
			Multipliers: []Multiplier{
				{Name: "long_context", Factor: 1.5, Match: numberAtLeast("context_length", 8000)},
				{Name: "huge_context", Factor: 2.0, Match: numberAtLeast("context_length", 32000)},
			},
		},
		models.ActionDocumentAnalysis: {
			BaseCost: 8,
			Multipliers: []Multiplier{
				{Name: "large_file", Factor: 2.0, Match: numberGreaterThan("file_size_mb", 10)},
				{Name: "comprehensive", Factor: 1.5, Match: boolFlag("comprehensive")},
			},
		},
		models.ActionHealthReport: {
			BaseCost: 15,
			Multipliers: []Multiplier{
				{Name: "comprehensive", Factor: 2.0, Match: boolFlag("comprehensive")},
			},
		},
		models.ActionVoiceTranscription: {
			BaseCost: 5,
			Multipliers: []Multiplier{
				{Name: "long_recording", Factor: 2.0, Match: numberAtLeast("duration_minutes", 10)},
			},
		},
		models.ActionBookGeneration: {
			BaseCost: 120,
			Multipliers: []Multiplier{
				{Name: "many_chapters", Factor: 1.5, Match: numberAtLeast("chapter_count", 20)},
			},
		},
	})
}

// Cost computes the credit cost for an action. It is pure: no state is read
// or written, so it doubles as the pre-commit estimate. Unknown actions cost
// zero; callers gate unknown actions before pricing.
func (c *Catalog) Cost(action string, md Metadata) int64 {
	rule, ok := c.rules[action]
	if !ok {
		return 0
	}

	cost := float64(rule.BaseCost)
	for _, m := range rule.Multipliers {
		if m.Match != nil && m.Match(md) {
			cost *= m.Factor
		}
	}
	if cost < 0 {
		return 0
	}
	return int64(math.Floor(cost))
}

// Knows reports whether the catalog has a rule for the action.
func (c *Catalog) Knows(action string) bool {
	_, ok := c.rules[action]
	return ok
}

func numberAtLeast(key string, threshold float64) func(Metadata) bool {
	return func(md Metadata) bool {
		v, ok := numberValue(md, key)
		return ok && v >= threshold
	}
}

func numberGreaterThan(key string, threshold float64) func(Metadata) bool {
	return func(md Metadata) bool {
		v, ok := numberValue(md, key)
		return ok && v > threshold
	}
}

func boolFlag(key string) func(Metadata) bool {
	return func(md Metadata) bool {
		v, ok := md[key].(bool)
		return ok && v
	}
}

// numberValue tolerates the numeric types JSON decoding produces.
func numberValue(md Metadata, key string) (float64, bool) {
	switch v := md[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
