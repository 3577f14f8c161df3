package nutrients

import (
	"log/slog"
	"strings"
)

// delimiter separates the nutrient name from its measurement suffix in a compound key.
const delimiter = "_"

// role is one kind of measurement kept by Group, identified by a suffix rule.
type role struct {
	name  string
	match func(key string) bool
}

// roles are scanned in this order and independently of each other: a key satisfying
// more than one rule is recorded by each scan.
var roles = []role{
	{name: "value", match: func(key string) bool { return strings.Contains(key, "_value") }},
	{name: "unit", match: func(key string) bool { return strings.Contains(key, "_unit") }},
	{name: "serving", match: func(key string) bool { return strings.HasSuffix(key, "_serving") }},
}

// GroupKey returns the nutrient name of a compound key: everything before the first
// delimiter, or the whole key when there is none.
func GroupKey(key string) string {
	if i := strings.Index(key, delimiter); i >= 0 {
		return key[:i]
	}
	return key
}

// Group reorganizes a flat nutriments object into per-nutrient groups.
//
// Keys are bucketed by GroupKey. Within a bucket only keys matching a role are kept, each
// under its key with the first "<group>_" removed. Buckets without any match are dropped,
// which includes every key without a delimiter. Groups appear in order of first
// occurrence; within a group, value matches come first, then unit, then serving.
func Group(flat *Flat) *Grouped {
	grouped := NewGrouped()
	if flat == nil || flat.Len() == 0 {
		return grouped
	}

	buckets := NewGrouped()
	for pair := flat.Oldest(); pair != nil; pair = pair.Next() {
		name := GroupKey(pair.Key)
		bucket, ok := buckets.Get(name)
		if !ok {
			bucket = NewMeasurements()
			buckets.Set(name, bucket)
		}
		bucket.Set(pair.Key, pair.Value)
	}

	for b := buckets.Oldest(); b != nil; b = b.Next() {
		name, bucket := b.Key, b.Value
		prefix := name + delimiter

		kept := NewMeasurements()
		for _, r := range roles {
			for m := bucket.Oldest(); m != nil; m = m.Next() {
				if r.match(m.Key) {
					kept.Set(strings.Replace(m.Key, prefix, "", 1), m.Value)
				}
			}
		}

		if kept.Len() > 0 {
			grouped.Set(name, kept)
		}
	}

	slog.Debug("GROUPER: Grouped nutriments", "input_keys", flat.Len(), "buckets", buckets.Len(), "groups", grouped.Len())
	return grouped
}

// Flatten re-encodes grouped nutrients with the "<group>_<key>" convention. Grouping the
// result again yields an equivalent structure.
func Flatten(grouped *Grouped) *Flat {
	flat := NewFlat()
	if grouped == nil {
		return flat
	}
	for g := grouped.Oldest(); g != nil; g = g.Next() {
		for m := g.Value.Oldest(); m != nil; m = m.Next() {
			flat.Set(g.Key+delimiter+m.Key, m.Value)
		}
	}
	return flat
}
