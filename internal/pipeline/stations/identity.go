package stations

import (
	"context"
	"strings"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// Identity resolves a lead's canonical first/last name from the
// normalized "name" field, passing through whatever other identity
// fields (city, state, zipcode, linkedinUrl, company, title) the lead
// already carried in from intake. It never calls out to an external
// service: spec.md §4.1 scopes person-search enrichment to the scraper
// and skip-trace stations, not identity resolution.
type Identity struct{}

// Contract implements Station.
func (Identity) Contract() domain.StationContract {
	return domain.StationContract{
		Name:           "identity_resolution",
		RequiredInputs: set("name"),
		ProducesOutputs: set(
			"firstName", "lastName", "city", "state", "zipcode",
			"linkedinUrl", "company", "title",
		),
		CostEstimate: 0,
	}
}

// Process implements Station.
func (Identity) Process(_ context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	name, _ := pctx.Data["name"].(string)
	first, last := splitName(name)
	if first == "" && last == "" {
		return nil, domain.Fail, domain.NewEnrichmentError("identity_resolution", "cannot derive first/last name from empty name")
	}

	fields := map[string]any{"firstName": first, "lastName": last}
	for _, passthrough := range []string{"city", "state", "zipcode", "linkedinUrl", "company", "title"} {
		if v, ok := pctx.Data[passthrough]; ok {
			fields[passthrough] = v
		}
	}
	return fields, domain.Continue, nil
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}
