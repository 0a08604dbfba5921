package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPBackend implements Backend against the out-of-scope vision service's
// HTTP API (config key vision.brain_http_url), the one concrete Backend this
// module ships. No example repo carries a generated client for a bespoke
// internal service, so this is built directly on net/http, mirroring the
// same stdlib-boundary call this module's DESIGN.md entry makes for
// internal/external's gatekeeping lookups.
type HTTPBackend struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPBackend constructs an HTTPBackend with the given request timeout.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

type groundRequestBody struct {
	ScreenshotB64 string `json:"screenshot_b64"`
	Context       string `json:"context"`
	TextCommand   string `json:"text_command"`
}

type groundResponseBody struct {
	Found       bool    `json:"found"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// ProcessVision implements Backend by POSTing the screenshot and
// instruction to the brain service's /ground endpoint.
func (b *HTTPBackend) ProcessVision(ctx context.Context, req GroundRequest) (GroundResult, error) {
	body := groundRequestBody{
		ScreenshotB64: base64.StdEncoding.EncodeToString(req.ScreenshotBytes),
		Context:       req.Context,
		TextCommand:   req.TextCommand,
	}
	var parsed groundResponseBody
	if err := b.post(ctx, "/ground", body, &parsed); err != nil {
		return GroundResult{}, err
	}
	return GroundResult{
		Found:       parsed.Found,
		X:           parsed.X,
		Y:           parsed.Y,
		Width:       parsed.Width,
		Height:      parsed.Height,
		Confidence:  parsed.Confidence,
		Description: parsed.Description,
	}, nil
}

type memoryQueryBody struct {
	Query          string `json:"query"`
	AXTreeSummary  string `json:"ax_tree_summary"`
	ScreenshotHash string `json:"screenshot_hash"`
	TopK           int    `json:"top_k"`
}

type memoryHitBody struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	ActionPlan string  `json:"action_plan"`
}

// QueryMemory implements Backend by POSTing to the brain service's
// /memory/query endpoint.
func (b *HTTPBackend) QueryMemory(ctx context.Context, req MemoryQuery) ([]MemoryHit, error) {
	body := memoryQueryBody{
		Query:          req.Query,
		AXTreeSummary:  req.AXTreeSummary,
		ScreenshotHash: req.ScreenshotHash,
		TopK:           req.TopK,
	}
	var parsed []memoryHitBody
	if err := b.post(ctx, "/memory/query", body, &parsed); err != nil {
		return nil, err
	}
	hits := make([]MemoryHit, len(parsed))
	for i, h := range parsed {
		hits[i] = MemoryHit{Text: h.Text, Similarity: h.Similarity, ActionPlan: h.ActionPlan}
	}
	return hits, nil
}

type worldModelRequestBody struct {
	StateID    string         `json:"state_id"`
	Attributes map[string]any `json:"attributes"`
}

type worldModelResponseBody struct {
	Accepted   bool   `json:"accepted"`
	Prediction string `json:"prediction"`
}

// UpdateWorldModel implements Backend by POSTing to the brain service's
// /world-model endpoint.
func (b *HTTPBackend) UpdateWorldModel(ctx context.Context, stateID string, attrs map[string]any) (bool, string, error) {
	body := worldModelRequestBody{StateID: stateID, Attributes: attrs}
	var parsed worldModelResponseBody
	if err := b.post(ctx, "/world-model", body, &parsed); err != nil {
		return false, "", err
	}
	return parsed.Accepted, parsed.Prediction, nil
}

func (b *HTTPBackend) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("vision brain request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision brain request %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode vision brain response %s: %w", path, err)
	}
	return nil
}
