package nutrients

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Flat is the raw nutriments object of a product, keyed by compound names such as
// "energy-kcal_100g" or "fat_unit". Key order follows the upstream document.
type Flat = orderedmap.OrderedMap[string, any]

// Measurements holds the retained measurements of a single nutrient, keyed by the compound
// key with the nutrient prefix removed (e.g. "value" or "100g_unit").
type Measurements = orderedmap.OrderedMap[string, any]

// Grouped maps a nutrient name to its measurements.
type Grouped = orderedmap.OrderedMap[string, *Measurements]

// Pair is a single key/value entry used to build a Flat in a fixed order.
type Pair struct {
	Key   string
	Value any
}

func NewFlat() *Flat { return orderedmap.New[string, any]() }

func NewMeasurements() *Measurements { return orderedmap.New[string, any]() }

func NewGrouped() *Grouped { return orderedmap.New[string, *Measurements]() }

// FlatFromPairs builds a Flat preserving the order of pairs. A repeated key keeps its
// first position and takes the last value.
func FlatFromPairs(pairs ...Pair) *Flat {
	flat := orderedmap.New[string, any](len(pairs))
	for _, p := range pairs {
		flat.Set(p.Key, p.Value)
	}
	return flat
}

// ToMap converts grouped nutrients into plain nested maps. Order is lost.
func ToMap(grouped *Grouped) map[string]any {
	out := make(map[string]any)
	if grouped == nil {
		return out
	}
	for g := grouped.Oldest(); g != nil; g = g.Next() {
		inner := make(map[string]any, g.Value.Len())
		for m := g.Value.Oldest(); m != nil; m = m.Next() {
			inner[m.Key] = m.Value
		}
		out[g.Key] = inner
	}
	return out
}

// Outcome classifies how a fetch ended. Every outcome other than OutcomeFound yields an
// empty Flat, so callers that only look at the map cannot tell them apart.
type Outcome string

const (
	OutcomeFound        Outcome = "found"
	OutcomeNoProducts   Outcome = "no_products"
	OutcomeNoNutriments Outcome = "no_nutriments"
	OutcomeFailed       Outcome = "failed"
)

func (o Outcome) String() string { return string(o) }
