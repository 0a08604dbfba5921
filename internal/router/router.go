// Package router implements the Adaptive Provider Router ("GPS"): an
// ε-greedy bandit over a configurable magazine of people-search providers,
// contextualized by the lead's US state and by per-datatype latency.
//
// Grounded directly on original_source/scrapegoat/app/pipeline/router.py —
// the magazine list, reward weights, score formula, and state-boost
// constants are carried over exactly.
package router

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// DefaultMagazine is the rotational list of people-search providers, in the
// exact order carried over from the original router.py MAGAZINE constant.
var DefaultMagazine = []string{
	"FastPeopleSearch",
	"TruePeopleSearch",
	"ZabaSearch",
	"SearchPeopleFree",
	"ThatsThem",
	"AnyWho",
}

// Reward deltas applied to provider stats on each recorded outcome.
const (
	RewardSuccess = 1.0
	RewardCaptcha = -0.5
	RewardFail    = -5.0
)

const (
	providerPrefix = "gps:provider:"
	statePrefix    = "gps:state:"
	datatypePrefix = "gps:datatype:"
)

// Config parameterizes the ε-greedy policy.
type Config struct {
	Magazine             []string
	Epsilon              float64
	PreferredProbability float64
	StateBoostMinSamples int
	StateBoostWeight     float64
}

// DefaultConfig matches the original's literal constants: ε=0.1, preferred
// shortcut probability 0.8, state-boost activates at n≥3 samples with
// weight 0.15.
func DefaultConfig() Config {
	return Config{
		Magazine:             DefaultMagazine,
		Epsilon:              0.1,
		PreferredProbability: 0.8,
		StateBoostMinSamples: 3,
		StateBoostWeight:     0.15,
	}
}

// Blacklist reports whether a provider is currently unusable. An external
// subsystem (not modeled here) may mark providers blacklisted; the router
// MUST exclude them from both Select and NextAfterFailure.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, provider string) bool
}

// NoBlacklist never excludes a provider.
type NoBlacklist struct{}

func (NoBlacklist) IsBlacklisted(context.Context, string) bool { return false }

// Router selects providers and records outcomes against Redis-backed
// statistics.
type Router struct {
	client    *redis.Client
	cfg       Config
	blacklist Blacklist
	rng       *rand.Rand
}

// New constructs a Router. rng may be nil to use the default source.
func New(client *redis.Client, cfg Config, blacklist Blacklist, rng *rand.Rand) *Router {
	if len(cfg.Magazine) == 0 {
		cfg.Magazine = DefaultMagazine
	}
	if blacklist == nil {
		blacklist = NoBlacklist{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Router{client: client, cfg: cfg, blacklist: blacklist, rng: rng}
}

func providerKey(name string) string { return providerPrefix + name }
func stateKey(state, name string) string { return fmt.Sprintf("%s%s:%s", statePrefix, state, name) }
func datatypeKey(dt, name string) string { return fmt.Sprintf("%s%s:%s", datatypePrefix, dt, name) }

type providerStats struct {
	successRate  float64
	rewardPerOp  float64
	avgLatencyMs float64
	score        float64
	n            int64
}

func (r *Router) getProviderStats(ctx context.Context, name string) providerStats {
	raw, _ := r.client.HGetAll(ctx, providerKey(name)).Result()
	s := int64FromHash(raw, "success_count")
	f := int64FromHash(raw, "failure_count")
	c := int64FromHash(raw, "captcha_count")
	t := int64FromHash(raw, "total_latency_ms")
	n := s + f
	if n == 0 {
		return providerStats{successRate: 0.5, rewardPerOp: 0.0, avgLatencyMs: 5000.0, score: 0.0}
	}
	reward := float64(s)*RewardSuccess + float64(c)*RewardCaptcha + float64(f)*RewardFail
	avgLat := float64(t) / float64(n)
	successRate := float64(s) / float64(n)
	score := (reward / float64(n)) - (avgLat / 8000.0)
	return providerStats{successRate: successRate, rewardPerOp: reward / float64(n), avgLatencyMs: avgLat, score: score, n: n}
}

func (r *Router) getStateBoost(ctx context.Context, state, name string) float64 {
	if state == "" {
		return 0.0
	}
	raw, _ := r.client.HGetAll(ctx, stateKey(state, name)).Result()
	s := int64FromHash(raw, "success_count")
	f := int64FromHash(raw, "failure_count")
	n := s + f
	if n < int64(r.cfg.StateBoostMinSamples) {
		return 0.0
	}
	return r.cfg.StateBoostWeight * (float64(s) / float64(n))
}

func int64FromHash(raw map[string]string, field string) int64 {
	v, ok := raw[field]
	if !ok || v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// LeadState normalizes a lead's US state from its State field or, failing
// that, by scanning a free-text location/region string for a two-letter
// alpha token, matching get_lead_state in the original.
func LeadState(lead domain.Lead, location string) string {
	if lead.State != "" {
		return normState(lead.State)
	}
	if location == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(location, ",", " "))
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if len(p) == 2 && isAlpha(p) {
			return strings.ToUpper(p)
		}
	}
	return ""
}

func normState(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 2 {
		s = s[:2]
	}
	return s
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Select implements the ε-greedy policy of spec.md §4.3:
//  1. candidates = magazine − tried − blacklisted
//  2. if preferred ∈ candidates and U(0,1) < preferredProbability, return preferred
//  3. with probability epsilon, return a uniform random candidate
//  4. otherwise return argmax score(c) + state_boost(c)
func (r *Router) Select(ctx context.Context, state string, tried map[string]struct{}, preferred string) string {
	candidates := r.candidates(ctx, tried)
	if len(candidates) == 0 {
		return r.cfg.Magazine[0]
	}

	if preferred != "" && contains(candidates, preferred) && r.rng.Float64() < r.cfg.PreferredProbability {
		return preferred
	}

	if r.rng.Float64() < r.cfg.Epsilon {
		return candidates[r.rng.Intn(len(candidates))]
	}

	best := candidates[0]
	bestScore := -1e9
	for _, name := range candidates {
		st := r.getProviderStats(ctx, name)
		boost := r.getStateBoost(ctx, state, name)
		score := st.score + boost
		if score > bestScore {
			bestScore = score
			best = name
		}
	}
	return best
}

func (r *Router) candidates(ctx context.Context, tried map[string]struct{}) []string {
	candidates := make([]string, 0, len(r.cfg.Magazine))
	for _, p := range r.cfg.Magazine {
		if _, skip := tried[p]; skip {
			continue
		}
		if r.blacklist.IsBlacklisted(ctx, p) {
			continue
		}
		candidates = append(candidates, p)
	}
	return candidates
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// NextAfterFailure returns the next provider in the magazine to try after a
// failure, excluding tried ∪ {failed} and blacklisted providers. Returns ""
// if every candidate has been exhausted.
func (r *Router) NextAfterFailure(ctx context.Context, failed string, tried map[string]struct{}) string {
	excluded := make(map[string]struct{}, len(tried)+1)
	for k := range tried {
		excluded[k] = struct{}{}
	}
	excluded[failed] = struct{}{}
	for _, p := range r.cfg.Magazine {
		if _, skip := excluded[p]; skip {
			continue
		}
		if r.blacklist.IsBlacklisted(ctx, p) {
			continue
		}
		return p
	}
	return ""
}

// RecordResult updates Redis stats after a mission completes. Rewards are
// tracked implicitly via the counters that feed getProviderStats' scoring.
func (r *Router) RecordResult(ctx context.Context, provider, state string, success bool, latencyMs float64, captchaSolved bool, datatypesFound []string) error {
	pk := providerKey(provider)
	pipe := r.client.TxPipeline()
	if success {
		pipe.HIncrBy(ctx, pk, "success_count", 1)
	} else {
		pipe.HIncrBy(ctx, pk, "failure_count", 1)
	}
	if captchaSolved {
		pipe.HIncrBy(ctx, pk, "captcha_count", 1)
	}
	pipe.HIncrBy(ctx, pk, "total_latency_ms", int64(latencyMs))

	if state != "" {
		sk := stateKey(state, provider)
		if success {
			pipe.HIncrBy(ctx, sk, "success_count", 1)
		} else {
			pipe.HIncrBy(ctx, sk, "failure_count", 1)
		}
	}

	n := len(datatypesFound)
	for _, dt := range datatypesFound {
		if dt != "age" && dt != "income" && dt != "phone" {
			continue
		}
		dk := datatypeKey(dt, provider)
		share := latencyMs
		if n > 1 {
			share = latencyMs / float64(n)
		}
		pipe.HIncrBy(ctx, dk, "total_latency_ms", int64(share))
		pipe.HIncrBy(ctx, dk, "count", 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Ranking is one row of the GPS dashboard.
type Ranking struct {
	Provider       string
	SuccessRatePct float64
	AvgLatencyMs   float64
	Score          float64
	N              int64
}

// Rankings returns the GPS dashboard data, sorted by (-success_rate,
// avg_latency_ms), as in the original get_rankings.
func (r *Router) Rankings(ctx context.Context) []Ranking {
	out := make([]Ranking, 0, len(r.cfg.Magazine))
	for _, name := range r.cfg.Magazine {
		st := r.getProviderStats(ctx, name)
		out = append(out, Ranking{
			Provider:       name,
			SuccessRatePct: round1(st.successRate * 100),
			AvgLatencyMs:   roundTo(st.avgLatencyMs, 0),
			Score:          roundTo(st.score, 3),
			N:              st.n,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuccessRatePct != out[j].SuccessRatePct {
			return out[i].SuccessRatePct > out[j].SuccessRatePct
		}
		return out[i].AvgLatencyMs < out[j].AvgLatencyMs
	})
	return out
}

func round1(v float64) float64 { return roundTo(v, 1) }
func roundTo(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}
