// Package selector implements the Selector Registry / Trauma Center: a
// per-(domain, intent) store of the last-known-good DOM selector, a running
// consecutive-failure counter, and the vision-assisted remap flow that
// kicks in once a selector goes stale, per spec.md §4.8.
//
// Grounded on theRebelliousNerd-codenerd/internal/browser/honeypot.go's
// calculateConfidence accumulation style (base + per-signal increments),
// adapted to the registry's own recovery-confidence semantics, and persisted
// the way internal/router persists provider counters: one Redis hash per
// key, read with HGetAll, written with HSet.
package selector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/vision"
)

const (
	registryKeyPrefix = "trauma:selector:"

	// LowConfidenceThreshold triggers a remap when a vision grounding hit's
	// confidence falls below this value even with zero recorded failures.
	LowConfidenceThreshold = 0.7

	// FailureRemapThreshold triggers a remap once the consecutive-failure
	// counter reaches this value regardless of confidence.
	FailureRemapThreshold = 3

	// SelectorRemapConfidence is the minimum confidence a freshly found
	// selector must carry to be registered. This literal is carried
	// unchanged from the specification; whether it was calibrated or a
	// placeholder is not documented upstream.
	SelectorRemapConfidence = 0.5

	// CriticalAlertThreshold is the number of successive recovery failures
	// on the same (domain, intent) pair after which the registry stops
	// retrying and surfaces a critical alert for manual review.
	CriticalAlertThreshold = 3
)

func registryKey(domainName, intent string) string {
	return registryKeyPrefix + domainName + ":" + intent
}

// Finder is the vision-driven "find a new selector for this intent"
// capability the registry calls out to on a remap. It is satisfied by
// internal/vision.Client via an adapter in the worker package.
type Finder interface {
	FindSelector(ctx context.Context, domainName, intent string) (selector string, kind domain.SelectorKind, confidence float64, err error)
}

// CriticalAlert is published when a (domain, intent) pair exhausts its
// recovery attempts. The registry never retries indefinitely past this
// point; the caller decides what to do with the alert (log, page, skip).
type CriticalAlert struct {
	Domain string
	Intent string
	Cause  string
}

// Registry is the Redis-backed selector store.
type Registry struct {
	client *redis.Client
	finder Finder
}

// New constructs a Registry backed by client, consulting finder for remaps.
func New(client *redis.Client, finder Finder) *Registry {
	return &Registry{client: client, finder: finder}
}

// Lookup returns the current selector record for (domain, intent), or the
// zero record with ok=false if none has ever been registered.
func (r *Registry) Lookup(ctx context.Context, domainName, intent string) (domain.SelectorRecord, bool, error) {
	raw, err := r.client.HGetAll(ctx, registryKey(domainName, intent)).Result()
	if err != nil {
		return domain.SelectorRecord{}, false, fmt.Errorf("lookup selector %s/%s: %w", domainName, intent, err)
	}
	if len(raw) == 0 {
		return domain.SelectorRecord{}, false, nil
	}
	failures, _ := strconv.Atoi(raw["consecutive_failures"])
	confidence, _ := strconv.ParseFloat(raw["confidence"], 64)
	lastUsed, _ := time.Parse(time.RFC3339, raw["last_used"])
	return domain.SelectorRecord{
		Domain:              domainName,
		Intent:              intent,
		Selector:            raw["selector"],
		Kind:                domain.SelectorKind(raw["kind"]),
		Confidence:          confidence,
		LastUsed:            lastUsed,
		ConsecutiveFailures: failures,
	}, true, nil
}

func (r *Registry) save(ctx context.Context, rec domain.SelectorRecord) error {
	return r.client.HSet(ctx, registryKey(rec.Domain, rec.Intent), map[string]any{
		"selector":             rec.Selector,
		"kind":                 string(rec.Kind),
		"confidence":           rec.Confidence,
		"last_used":            rec.LastUsed.Format(time.RFC3339),
		"consecutive_failures": rec.ConsecutiveFailures,
	}).Err()
}

// RecordSuccess resets the failure counter for (domain, intent) and bumps
// last_used, without altering the stored selector.
func (r *Registry) RecordSuccess(ctx context.Context, domainName, intent string) error {
	rec, ok, err := r.Lookup(ctx, domainName, intent)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	rec.ConsecutiveFailures = 0
	rec.LastUsed = time.Now().UTC()
	return r.save(ctx, rec)
}

// Resolve returns the selector to use for (domain, intent): the
// last-known-good one if it is still healthy, or a freshly recovered one
// via Finder when visionConfidence is low or the failure count has crossed
// FailureRemapThreshold. A nil *CriticalAlert means no escalation occurred.
func (r *Registry) Resolve(ctx context.Context, domainName, intent string, visionConfidence float64) (string, *CriticalAlert, error) {
	rec, ok, err := r.Lookup(ctx, domainName, intent)
	if err != nil {
		return "", nil, err
	}

	needsRemap := !ok || visionConfidence < LowConfidenceThreshold || rec.ConsecutiveFailures >= FailureRemapThreshold
	if !needsRemap {
		return rec.Selector, nil, nil
	}

	newSelector, kind, confidence, err := r.finder.FindSelector(ctx, domainName, intent)
	if err != nil {
		return r.afterFailedRecovery(ctx, domainName, intent, rec, ok, "find_new_selector error: "+err.Error())
	}
	if confidence <= 0 {
		return r.afterFailedRecovery(ctx, domainName, intent, rec, ok, "find_new_selector returned no usable selector")
	}
	if confidence <= SelectorRemapConfidence {
		return r.afterFailedRecovery(ctx, domainName, intent, rec, ok, "recovered selector confidence too low")
	}

	fresh := domain.SelectorRecord{
		Domain:              domainName,
		Intent:              intent,
		Selector:            newSelector,
		Kind:                kind,
		Confidence:          confidence,
		LastUsed:            time.Now().UTC(),
		ConsecutiveFailures: 0,
	}
	if err := r.save(ctx, fresh); err != nil {
		return "", nil, err
	}
	return fresh.Selector, nil, nil
}

// afterFailedRecovery increments the consecutive-failure counter and, once
// it reaches CriticalAlertThreshold, returns a non-nil *CriticalAlert
// instead of retrying again.
func (r *Registry) afterFailedRecovery(ctx context.Context, domainName, intent string, rec domain.SelectorRecord, hadRecord bool, cause string) (string, *CriticalAlert, error) {
	if !hadRecord {
		rec = domain.SelectorRecord{Domain: domainName, Intent: intent}
	}
	rec.ConsecutiveFailures++
	rec.LastUsed = time.Now().UTC()
	if err := r.save(ctx, rec); err != nil {
		return "", nil, err
	}
	if rec.ConsecutiveFailures >= CriticalAlertThreshold {
		return rec.Selector, &CriticalAlert{Domain: domainName, Intent: intent, Cause: cause}, nil
	}
	return rec.Selector, nil, nil
}

// VisionFinder adapts an internal/vision.Client into a Finder, implementing
// the universal-selector fallback documented in spec.md §9: when the vision
// service cannot resolve a concrete selector, it returns "*" with
// confidence 0, which Resolve above treats as no usable selector rather
// than registering it.
type VisionFinder struct {
	Client *vision.Client
}

// FindSelector asks the vision service to ground "find a new selector for
// this intent" and maps its answer onto a SelectorRecord candidate.
func (f VisionFinder) FindSelector(ctx context.Context, domainName, intent string) (string, domain.SelectorKind, float64, error) {
	result, err := f.Client.Ground(ctx, vision.GroundRequest{
		TextCommand: fmt.Sprintf("find a new selector for intent %q on domain %q", intent, domainName),
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("vision find selector: %w", err)
	}
	if !result.Found {
		return "*", domain.SelectorCSS, 0, nil
	}
	return result.Description, domain.SelectorCSS, result.Confidence, nil
}
