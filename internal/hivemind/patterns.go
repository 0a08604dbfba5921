package hivemind

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
)

// PatternStore holds cross-site semantic success patterns such as "phone
// numbers on people-search sites are usually under a header containing the
// word Contact", kept in a Redis list with a per-domain index. Nothing
// else in this module calls it. Grounded directly on
// original_source/scrapegoat/app/pipeline/memory.py.
type PatternStore struct {
	client *redis.Client
}

// NewPatternStore constructs a Redis-backed PatternStore.
func NewPatternStore(client *redis.Client) *PatternStore {
	return &PatternStore{client: client}
}

const (
	patternsKey    = "semantic_memory:patterns"
	patternIndexPfx = "semantic_memory:by_domain:"
)

// SuccessPattern is one stored free-text pattern entry.
type SuccessPattern struct {
	Pattern  string         `json:"pattern"`
	Sites    []string       `json:"sites"`
	IntentID string         `json:"intent_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Store appends a success pattern to the list and indexes it per site.
// Failures are swallowed (best-effort), matching the original's
// except-Exception-pass behavior: a missing memory layer must never break
// the enrichment pipeline.
func (ps *PatternStore) Store(ctx context.Context, p SuccessPattern) {
	entry, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = ps.client.RPush(ctx, patternsKey, entry).Err()
	for _, site := range p.Sites {
		if site == "" {
			continue
		}
		truncated := site
		if len(truncated) > 200 {
			truncated = truncated[:200]
		}
		_ = ps.client.SAdd(ctx, patternIndexPfx+site, truncated).Err()
	}
}

// ForDomain returns success patterns that mention this domain or carry no
// site restriction (generic patterns), most-recent first, up to limit.
func (ps *PatternStore) ForDomain(ctx context.Context, domain string, limit int64) []SuccessPattern {
	raw, err := ps.client.LRange(ctx, patternsKey, -limit, -1).Result()
	if err != nil {
		return nil
	}
	var out []SuccessPattern
	for i := len(raw) - 1; i >= 0; i-- {
		var p SuccessPattern
		if json.Unmarshal([]byte(raw[i]), &p) != nil {
			continue
		}
		if len(p.Sites) == 0 || containsSubstring(p.Sites, domain) {
			out = append(out, p)
		}
		if int64(len(out)) >= limit {
			break
		}
	}
	return out
}

// ForIntent returns patterns tagged with the given intent id, oldest-first
// scan order over the most recent 100 entries, mirroring the original.
func (ps *PatternStore) ForIntent(ctx context.Context, intentID string, limit int64) []SuccessPattern {
	raw, err := ps.client.LRange(ctx, patternsKey, -100, -1).Result()
	if err != nil {
		return nil
	}
	var out []SuccessPattern
	for _, s := range raw {
		var p SuccessPattern
		if json.Unmarshal([]byte(s), &p) != nil {
			continue
		}
		if p.IntentID == intentID {
			out = append(out, p)
		}
	}
	if int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out
}

func containsSubstring(sites []string, domain string) bool {
	for _, s := range sites {
		if s == domain || strings.Contains(domain, s) || strings.Contains(s, domain) {
			return true
		}
	}
	return false
}
