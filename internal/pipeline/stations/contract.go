// Package stations holds the concrete enrichment pipeline stages of
// spec.md §4.1: identity resolution, blueprint loading, scraper
// enrichment, skip-tracing fallback, phone gatekeeping, DNC gatekeeping,
// demographics, and persistence.
package stations

// set builds a required/produced field set literal for a StationContract.
func set(fields ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
