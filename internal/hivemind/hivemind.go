// Package hivemind implements the shared vector-similarity memory: a 384-d
// experience index for action-plan recall, an enrichment-pattern index for
// provider prediction, and a free-text success-pattern store.
//
// Grounded on theRebelliousNerd-codenerd's internal/store vector-store
// pattern (StoreVectorWithEmbedding, the sqlite-vec cgo registration in
// init_vec.go) generalized from a general memory store down to the two
// specific indices spec.md §4.7 names, plus
// original_source/scrapegoat/app/pipeline/memory.py for the auxiliary
// free-text pattern store.
package hivemind

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// EmbeddingEngine produces a 384-d embedding for a text, mirroring the
// capability-detection interface theRebelliousNerd-codenerd's
// internal/embedding.EmbeddingEngine exposes over google.golang.org/genai.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	embeddingDims        = 384
	experienceHitCosine  = 0.02
	semanticHitSimilarity = 0.7
	patternHitSimilarity  = 0.6
)

// HiveMind is the process handle for the vector-similarity memory. It owns a
// SQLite database (with the sqlite-vec extension registered via the cgo
// build tag import above) for the two vector indices, matching the
// teacher's init_vec.go registration pattern.
type HiveMind struct {
	db       *sql.DB
	embedder EmbeddingEngine
}

// noEmbedder stands in for a missing EmbeddingEngine.
type noEmbedder struct{}

func (noEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("hive mind has no embedding engine configured")
}

// Open opens (creating if absent) the Hive Mind's SQLite database at path
// and ensures the experiences, enrichment_patterns and success_patterns
// tables exist; similarity lookups scan those rows in Go. With a nil
// embedder every embedding-based lookup returns an error.
func Open(path string, embedder EmbeddingEngine) (*HiveMind, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open hive mind store: %w", err)
	}
	if embedder == nil {
		embedder = noEmbedder{}
	}
	hm := &HiveMind{db: db, embedder: embedder}
	if err := hm.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return hm, nil
}

func (hm *HiveMind) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS experiences (
			screenshot_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			action_plan TEXT NOT NULL,
			ax_tree_summary TEXT,
			stored_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS enrichment_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			embedding BLOB NOT NULL,
			provider TEXT NOT NULL,
			recovered_shape TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS success_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern TEXT NOT NULL,
			sites TEXT,
			intent_id TEXT,
			metadata TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := hm.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate hive mind schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (hm *HiveMind) Close() error { return hm.db.Close() }

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1.0 - similarity
}

// StoreExperience inserts or overwrites an experience under
// experience:<screenshot_hash>, last-writer-wins per spec.md §5.
func (hm *HiveMind) StoreExperience(ctx context.Context, exp domain.Experience) error {
	if len(exp.Embedding) == 0 {
		return fmt.Errorf("experience embedding is required")
	}
	_, err := hm.db.ExecContext(ctx, `
		INSERT INTO experiences (screenshot_hash, embedding, action_plan, ax_tree_summary, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(screenshot_hash) DO UPDATE SET
			embedding = excluded.embedding,
			action_plan = excluded.action_plan,
			ax_tree_summary = excluded.ax_tree_summary,
			stored_at = excluded.stored_at
	`, exp.ScreenshotHash, encodeVector(exp.Embedding), exp.ActionPlan, truncate(exp.AXTreeSummary, 2000), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store experience %s: %w", exp.ScreenshotHash, err)
	}
	return nil
}

// RecallAction embeds the concatenated ax-tree summary and screenshot hash,
// does a KNN-1 lookup, and returns the stored action plan when the cosine
// distance is below experienceHitCosine (0.02), matching spec.md §4.7.
func (hm *HiveMind) RecallAction(ctx context.Context, axTreeSummary, screenshotHash string) (string, bool, error) {
	query := axTreeSummary + " " + screenshotHash
	qv, err := hm.embedder.Embed(ctx, query)
	if err != nil {
		return "", false, fmt.Errorf("embed recall query: %w", err)
	}

	rows, err := hm.db.QueryContext(ctx, `SELECT embedding, action_plan FROM experiences`)
	if err != nil {
		return "", false, fmt.Errorf("scan experiences: %w", err)
	}
	defer rows.Close()

	bestDist := math.MaxFloat64
	bestPlan := ""
	for rows.Next() {
		var blob []byte
		var plan string
		if err := rows.Scan(&blob, &plan); err != nil {
			continue
		}
		dist := cosineDistance(qv, decodeVector(blob))
		if dist < bestDist {
			bestDist = dist
			bestPlan = plan
		}
	}
	if bestDist < experienceHitCosine {
		return bestPlan, true, nil
	}
	return "", false, nil
}

// PredictProviderResult is a single high-similarity match from the
// enrichment-pattern index.
type PredictProviderResult struct {
	Provider   string
	Similarity float64
}

// PredictProvider builds "{company} {city} {title}", does a KNN-1 lookup
// over the enrichment-patterns index, and returns the matched provider when
// similarity exceeds patternHitSimilarity (0.6), for use as `preferred` in
// router.Select.
func (hm *HiveMind) PredictProvider(ctx context.Context, lead domain.Lead) (PredictProviderResult, bool, error) {
	text := fmt.Sprintf("%s %s %s", lead.Employer, lead.City, lead.Title)
	qv, err := hm.embedder.Embed(ctx, text)
	if err != nil {
		return PredictProviderResult{}, false, fmt.Errorf("embed lead shape: %w", err)
	}

	rows, err := hm.db.QueryContext(ctx, `SELECT embedding, provider FROM enrichment_patterns`)
	if err != nil {
		return PredictProviderResult{}, false, fmt.Errorf("scan enrichment patterns: %w", err)
	}
	defer rows.Close()

	bestSim := -1.0
	bestProvider := ""
	for rows.Next() {
		var blob []byte
		var provider string
		if err := rows.Scan(&blob, &provider); err != nil {
			continue
		}
		sim := 1.0 - cosineDistance(qv, decodeVector(blob))
		if sim > bestSim {
			bestSim = sim
			bestProvider = provider
		}
	}
	if bestProvider != "" && bestSim > patternHitSimilarity {
		return PredictProviderResult{Provider: bestProvider, Similarity: bestSim}, true, nil
	}
	return PredictProviderResult{}, false, nil
}

// StorePattern records an enrichment pattern observed from a completed
// mission, feeding future PredictProvider calls.
func (hm *HiveMind) StorePattern(ctx context.Context, pattern domain.EnrichmentPattern) error {
	shape, _ := json.Marshal(pattern.RecoveredShape)
	_, err := hm.db.ExecContext(ctx,
		`INSERT INTO enrichment_patterns (embedding, provider, recovered_shape) VALUES (?, ?, ?)`,
		encodeVector(pattern.Embedding), pattern.Provider, string(shape))
	if err != nil {
		return fmt.Errorf("store enrichment pattern: %w", err)
	}
	return nil
}

// SemanticResult is one hit from a free-text semantic search.
type SemanticResult struct {
	Text       string
	Similarity float64
	ActionPlan string
}

// SemanticSearch does a KNN-k lookup over stored experiences, returning
// entries with similarity > 0.7 sorted by similarity descending.
func (hm *HiveMind) SemanticSearch(ctx context.Context, queryText string, k int) ([]SemanticResult, error) {
	qv, err := hm.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed semantic query: %w", err)
	}

	rows, err := hm.db.QueryContext(ctx, `SELECT ax_tree_summary, embedding, action_plan FROM experiences`)
	if err != nil {
		return nil, fmt.Errorf("scan experiences: %w", err)
	}
	defer rows.Close()

	var hits []SemanticResult
	for rows.Next() {
		var summary, plan string
		var blob []byte
		if err := rows.Scan(&summary, &blob, &plan); err != nil {
			continue
		}
		sim := 1.0 - cosineDistance(qv, decodeVector(blob))
		if sim > semanticHitSimilarity {
			hits = append(hits, SemanticResult{Text: summary, Similarity: sim, ActionPlan: plan})
		}
	}
	sortBySimilarityDesc(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func sortBySimilarityDesc(hits []SemanticResult) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Similarity > hits[j-1].Similarity; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
