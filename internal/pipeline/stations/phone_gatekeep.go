package stations

import (
	"context"
	"strings"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// PhoneValidation is the outcome of a carrier lookup against a phone
// number: mobile/VOIP/landline classification plus a junk-carrier flag.
type PhoneValidation struct {
	IsValid    bool
	IsMobile   bool
	IsVOIP     bool
	IsLandline bool
	Carrier    string
	IsJunk     bool
}

// PhoneValidator looks up a phone number's line type and carrier. The
// concrete implementation calls an external carrier-lookup API.
type PhoneValidator interface {
	Validate(ctx context.Context, phone string) (PhoneValidation, error)
}

// junkCarriers lists known VOIP/forwarding providers that produce
// unreachable or disposable numbers, mirrored from the carrier-lookup
// gatekeep's reject list.
var junkCarriers = []string{
	"google voice", "textnow", "burner", "twilio", "bandwidth",
	"vonage", "ringcentral", "8x8", "nextiva", "ooma", "magicjack", "grasshopper",
}

// PhoneGatekeep validates the phone the scraper/skip-trace stations found
// and SKIP_REMAINING's the pipeline when the number is invalid, VOIP, a
// landline not also flagged mobile, or on a junk carrier, to avoid spending the DNC and demographics budget on a dead lead.
type PhoneGatekeep struct {
	Validator PhoneValidator
}

// Contract implements Station.
func (PhoneGatekeep) Contract() domain.StationContract {
	return domain.StationContract{
		Name:            "phone_gatekeep",
		RequiredInputs:  set("phone"),
		ProducesOutputs: set("is_valid", "is_mobile", "is_voip", "is_landline", "carrier", "is_junk"),
		CostEstimate:    0.01,
	}
}

// Process implements Station.
func (pg PhoneGatekeep) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	phone, _ := pctx.Data["phone"].(string)
	if phone == "" {
		return nil, domain.Fail, domain.NewEnrichmentError("phone_gatekeep", "no phone to validate")
	}

	if pg.Validator == nil {
		// No carrier-lookup configured: permissive pass-through, matching
		// the original gatekeep's development-mode default.
		return map[string]any{
			"is_valid": true, "is_mobile": true, "is_voip": false,
			"is_landline": false, "carrier": "", "is_junk": false,
		}, domain.Continue, nil
	}

	validation, err := pg.Validator.Validate(ctx, phone)
	if err != nil {
		// Fail open: a carrier-lookup outage shouldn't stall every mission
		// behind it, only cost accuracy on this one lead.
		return nil, domain.Continue, nil
	}

	fields := map[string]any{
		"is_valid":    validation.IsValid,
		"is_mobile":   validation.IsMobile,
		"is_voip":     validation.IsVOIP,
		"is_landline": validation.IsLandline,
		"carrier":     validation.Carrier,
		"is_junk":     validation.IsJunk || isJunkCarrier(validation.Carrier),
	}

	if !validation.IsValid || validation.IsVOIP || (validation.IsLandline && !validation.IsMobile) || fields["is_junk"].(bool) {
		return fields, domain.SkipRemaining, nil
	}
	return fields, domain.Continue, nil
}

func isJunkCarrier(carrier string) bool {
	if carrier == "" {
		return false
	}
	lower := strings.ToLower(carrier)
	for _, junk := range junkCarriers {
		if strings.Contains(lower, junk) {
			return true
		}
	}
	return false
}
