package domain

import (
	"errors"
	"fmt"
)

// EnrichmentError is the structured domain error a station raises when it
// fails in a way the engine should localize precisely: which step, why, and
// (optionally) how to fix it. Mirrors the original pipeline's
// ChimeraEnrichmentError message format exactly: "[step] reason".
type EnrichmentError struct {
	Step         string
	Reason       string
	SuggestedFix string
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Step, e.Reason)
}

// NewEnrichmentError constructs an EnrichmentError without a suggested fix.
func NewEnrichmentError(step, reason string) *EnrichmentError {
	return &EnrichmentError{Step: step, Reason: reason}
}

// WithSuggestedFix attaches a suggested remediation and returns the receiver
// for chaining.
func (e *EnrichmentError) WithSuggestedFix(fix string) *EnrichmentError {
	e.SuggestedFix = fix
	return e
}

// AsEnrichmentError unwraps err looking for an *EnrichmentError.
func AsEnrichmentError(err error) (*EnrichmentError, bool) {
	var ee *EnrichmentError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
