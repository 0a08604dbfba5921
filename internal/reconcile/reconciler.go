// Package reconcile merges conflicting per-provider field values into one
// golden record, weighted by each provider's GPS success rate. Grounded
// directly on original_source/scrapegoat/app/enrichment/reconciler.py.
package reconcile

import "strings"

// reservedFields are the fields subject to weighted per-field selection;
// everything else is "extra" and only carried over from high-weight
// providers.
var reservedFields = []string{"phone", "age", "income", "email", "address", "city", "state", "zipcode"}

// ProviderRecord is one provider's extracted fields for a single lead.
type ProviderRecord struct {
	Provider string
	Fields   map[string]any
}

// WeightLookup returns a provider's success_rate in [0,1]; callers typically
// back this with router.Rankings. Unknown providers default to 0.5.
type WeightLookup func(provider string) float64

// Reconcile merges records into a single golden record: for each reserved
// field, the value from the highest-weight provider wins (non-null beats
// null; ties keep the first-listed provider). Extra non-reserved fields are
// carried over from any provider whose weight ≥ 0.5, without overwriting an
// already-chosen value.
func Reconcile(records []ProviderRecord, weight WeightLookup) map[string]any {
	if weight == nil {
		weight = func(string) float64 { return 0.5 }
	}

	out := make(map[string]any)
	for _, field := range reservedFields {
		var bestVal any
		bestWeight := -1.0
		for _, rec := range records {
			v, ok := rec.Fields[field]
			if !ok || !nonNull(v) {
				continue
			}
			w := weight(rec.Provider)
			if w > bestWeight {
				bestWeight = w
				bestVal = v
			}
		}
		if bestVal != nil {
			out[field] = bestVal
		}
	}

	reserved := make(map[string]struct{}, len(reservedFields))
	for _, f := range reservedFields {
		reserved[f] = struct{}{}
	}
	for _, rec := range records {
		if weight(rec.Provider) < 0.5 {
			continue
		}
		for k, v := range rec.Fields {
			if _, isReserved := reserved[k]; isReserved {
				continue
			}
			if _, already := out[k]; already {
				continue
			}
			if nonNull(v) {
				out[k] = v
			}
		}
	}
	return out
}

func nonNull(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}
