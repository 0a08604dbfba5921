// Package vision implements the thin façade the Worker Runtime and Honeypot
// Guard use to call the external vision service: screenshot→coordinates
// grounding, memory lookup, and world-model updates. The backend
// remains opaque per spec.md §1's explicit non-goal of training/hosting it.
//
// Grounded on theRebelliousNerd-codenerd's
// internal/tools/research/grounding.go GroundingHelper: a capability-
// detecting wrapper around an LLM client that captures confidence/sources
// under a mutex, generalized here from search-grounding to vision-coordinate
// grounding.
package vision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// GroundRequest carries a screenshot and the natural-language instruction to
// ground against it, mirroring the external interface in spec.md §6.
type GroundRequest struct {
	ScreenshotBytes []byte
	Context         string
	TextCommand     string
}

// GroundResult is the vision service's answer: a found flag, a coordinate +
// bounding box, a confidence, and a human-readable description of what was
// found (used to compose honeypot-guard descriptions).
type GroundResult struct {
	Found       bool
	X, Y        float64
	Width       float64
	Height      float64
	Confidence  float64
	Description string
}

// MemoryQuery requests a semantic/experience lookup, matching the
// query_memory operation in spec.md §6.
type MemoryQuery struct {
	Query          string
	AXTreeSummary  string
	ScreenshotHash string
	TopK           int
}

// MemoryHit is one result row from a memory query.
type MemoryHit struct {
	Text       string
	Similarity float64
	ActionPlan string
}

// Backend is the external service this façade calls out to. It is
// implemented by an RPC/HTTP client against the out-of-scope vision
// service; this package never implements vision itself.
type Backend interface {
	ProcessVision(ctx context.Context, req GroundRequest) (GroundResult, error)
	QueryMemory(ctx context.Context, req MemoryQuery) ([]MemoryHit, error)
	UpdateWorldModel(ctx context.Context, stateID string, attrs map[string]any) (bool, string, error)
}

// Client wraps a Backend with a circuit breaker and counts its grounding
// calls and hits, following GroundingHelper's CaptureGroundingSources
// bookkeeping.
type Client struct {
	backend Backend
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	mu           sync.Mutex
	totalCalls   int64
	totalHits    int64
	lastResult   GroundResult
}

// New constructs a Client around a Backend implementation.
func New(backend Backend, logger *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "vision-client",
		Timeout: 20 * time.Second,
	})
	return &Client{backend: backend, breaker: breaker, logger: logger}
}

// Ground calls ProcessVision through the circuit breaker and records the
// outcome for CaptureGroundingSources-style observability.
func (c *Client) Ground(ctx context.Context, req GroundRequest) (GroundResult, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.backend.ProcessVision(ctx, req)
	})
	c.mu.Lock()
	c.totalCalls++
	if err == nil {
		c.lastResult = out.(GroundResult)
		if c.lastResult.Found {
			c.totalHits++
		}
	}
	c.mu.Unlock()
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("vision ground call failed", zap.Error(err))
		}
		return GroundResult{}, fmt.Errorf("vision ground: %w", err)
	}
	return out.(GroundResult), nil
}

// QueryMemory looks up stored experiences or patterns by free-text query,
// AX-tree summary, or screenshot hash.
func (c *Client) QueryMemory(ctx context.Context, req MemoryQuery) ([]MemoryHit, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		return c.backend.QueryMemory(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("vision query memory: %w", err)
	}
	return out.([]MemoryHit), nil
}

// UpdateWorldModel reports an observed state transition back to the vision
// service's world model.
func (c *Client) UpdateWorldModel(ctx context.Context, stateID string, attrs map[string]any) (bool, string, error) {
	type result struct {
		ok         bool
		prediction string
	}
	out, err := c.breaker.Execute(func() (any, error) {
		ok, prediction, err := c.backend.UpdateWorldModel(ctx, stateID, attrs)
		return result{ok, prediction}, err
	})
	if err != nil {
		return false, "", fmt.Errorf("vision update world model: %w", err)
	}
	r := out.(result)
	return r.ok, r.prediction, nil
}

// Stats reports a confidence snapshot for observability, mirroring
// GroundingHelper's totalSearches/totalURLs counters.
func (c *Client) Stats() (calls, hits int64, lastConfidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCalls, c.totalHits, c.lastResult.Confidence
}
