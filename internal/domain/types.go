// Package domain holds the shared data model for the enrichment pipeline,
// mission dispatcher, and provider router: leads, pipeline context, station
// contracts, missions, blueprints, and the Redis-backed statistics types.
package domain

import (
	"strings"
	"time"
)

// StopCondition is the per-station signal back to the pipeline engine.
type StopCondition int

const (
	// Continue lets the engine proceed to the next station.
	Continue StopCondition = iota
	// SkipRemaining terminates the pipeline cleanly (budget exhaustion, a
	// business gate such as a DNC hit).
	SkipRemaining
	// Fail marks one station failed; the engine proceeds to the next station.
	Fail
)

func (c StopCondition) String() string {
	switch c {
	case Continue:
		return "continue"
	case SkipRemaining:
		return "skip_remaining"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Lead is the input record for one enrichment run: identity, location, and
// the canonical dedup key.
type Lead struct {
	LinkedInURL string
	Name        string
	FirstName   string
	LastName    string
	City        string
	State       string
	ZipCode     string
	Employer    string
	Title       string
	Extra       map[string]any
}

// MissionStatus is the lifecycle state of a dispatched mission.
type MissionStatus string

const (
	MissionQueued    MissionStatus = "queued"
	MissionClaimed   MissionStatus = "claimed"
	MissionExecuting MissionStatus = "executing"
	MissionCompleted MissionStatus = "completed"
	MissionFailed    MissionStatus = "failed"
	MissionTimedOut  MissionStatus = "timed_out"
)

// Mission is the unit of work dispatched to a worker.
type Mission struct {
	ID              string
	Lead            Lead
	TargetProvider  string
	Blueprint       *Blueprint
	CarrierHint     string
	SessionID       string
	Status          MissionStatus
	RotationCount   int
}

// Result is the terminal outcome of a mission, published once per mission id.
type Result struct {
	Status          MissionStatus
	Provider        string
	VisionConfidence float64
	CaptchaSolved   bool
	DurationSeconds float64
	Extracted       map[string]string
	TraumaSignals   []string
}

// BlueprintStepType enumerates the instruction kinds a blueprint step may carry.
type BlueprintStepType string

const (
	StepGoto      BlueprintStepType = "goto"
	StepWait      BlueprintStepType = "wait"
	StepClick     BlueprintStepType = "click"
	StepInput     BlueprintStepType = "input"
	StepVLMGround BlueprintStepType = "vlm_ground"
)

// BlueprintStep is one ordered instruction within a Blueprint.
type BlueprintStep struct {
	Type     BlueprintStepType
	Selector string
	URL      string
	Value    string
	Intent   string
}

// Blueprint is the site-specific instruction list for one provider domain.
type Blueprint struct {
	Domain string
	Steps  []BlueprintStep
}

// ResolvePlaceholders substitutes "{field}" templates in step values against
// the lead's fields, mirroring the original blueprint interpreter's template
// resolution.
func (b Blueprint) ResolvePlaceholders(lead Lead) Blueprint {
	fields := map[string]string{
		"firstName": lead.FirstName,
		"lastName":  lead.LastName,
		"city":      lead.City,
		"state":     lead.State,
		"zipcode":   lead.ZipCode,
		"name":      lead.Name,
	}
	resolved := Blueprint{Domain: b.Domain, Steps: make([]BlueprintStep, len(b.Steps))}
	for i, step := range b.Steps {
		step.Value = substitute(step.Value, fields)
		step.URL = substitute(step.URL, fields)
		resolved.Steps[i] = step
	}
	return resolved
}

func substitute(s string, fields map[string]string) string {
	if s == "" {
		return s
	}
	out := s
	for k, v := range fields {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// ProviderStats are the raw counters tracked per provider in the GPS router.
type ProviderStats struct {
	SuccessCount     int64
	FailureCount     int64
	CaptchaCount     int64
	TotalLatencyMs   int64
}

// Experience is one stored (embedding, action plan) pair keyed by screenshot
// hash, recalled by the Hive Mind for near-identical future states.
type Experience struct {
	ScreenshotHash string
	Embedding      []float32
	ActionPlan     string
	AXTreeSummary  string
	StoredAt       time.Time
}

// EnrichmentPattern is a stored (lead-shape embedding, provider) pair used to
// predict a preferred provider before a mission runs.
type EnrichmentPattern struct {
	Embedding     []float32
	Provider      string
	RecoveredShape []string
}

// SelectorKind distinguishes CSS from XPath selectors in the registry.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

// SelectorRecord is the last-known-good selector for a (domain, intent) pair.
type SelectorRecord struct {
	Domain               string
	Intent               string
	Selector             string
	Kind                 SelectorKind
	Confidence           float64
	LastUsed             time.Time
	ConsecutiveFailures  int
}

// HardwareEntropySeeds are the three deterministic RNG seeds persisted per
// (worker, mission) for fingerprint reproducibility.
type HardwareEntropySeeds struct {
	WorkerID  string
	MissionID string
	GPUSeed   int32
	AudioSeed int32
	CanvasSeed int32
}
