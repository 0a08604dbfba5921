package stations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
)

type stubValidator struct {
	result PhoneValidation
	err    error
}

func (s stubValidator) Validate(ctx context.Context, phone string) (PhoneValidation, error) {
	return s.result, s.err
}

func TestPhoneGatekeep_MobileCarrierContinues(t *testing.T) {
	gate := PhoneGatekeep{Validator: stubValidator{result: PhoneValidation{IsValid: true, IsMobile: true, Carrier: "Verizon"}}}
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	fields, cond, err := gate.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, "Verizon", fields["carrier"])
	assert.Equal(t, false, fields["is_junk"])
}

func TestPhoneGatekeep_VOIPStopsEnrichment(t *testing.T) {
	gate := PhoneGatekeep{Validator: stubValidator{result: PhoneValidation{IsValid: true, IsVOIP: true, Carrier: "Twilio"}}}
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	_, cond, err := gate.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.SkipRemaining, cond)
}

func TestPhoneGatekeep_JunkCarrierNameStopsEnrichment(t *testing.T) {
	gate := PhoneGatekeep{Validator: stubValidator{result: PhoneValidation{IsValid: true, IsMobile: true, Carrier: "Bandwidth.com"}}}
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	fields, cond, err := gate.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.SkipRemaining, cond)
	assert.Equal(t, true, fields["is_junk"])
}

func TestPhoneGatekeep_ValidatorErrorFailsOpen(t *testing.T) {
	gate := PhoneGatekeep{Validator: stubValidator{err: errors.New("timeout")}}
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	_, cond, err := gate.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
}

func TestPhoneGatekeep_NoPhoneFails(t *testing.T) {
	gate := PhoneGatekeep{}
	pctx := domain.NewPipelineContext(map[string]any{}, 10)

	_, cond, err := gate.Process(context.Background(), pctx)

	assert.Error(t, err)
	assert.Equal(t, domain.Fail, cond)
}
