// Package storage is the relational persistence layer: Postgres tables for
// golden lead records, mission audit history, selector repairs, site
// cognitive maps, hardware entropy, and site blueprints, all created
// idempotently on first use. Grounded on the teacher pack's sqlx/lib-pq
// bootstrap pattern (see other_examples' apiserver dependency wiring) and
// spec.md §7's COALESCE-upsert persistence model.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// defaultSeedBits is the hardware-entropy seed width spec.md's allocation
// model assumes when the deployment never set internal/config's
// FingerprintConfig.SeedBits.
const defaultSeedBits = 31

// randomSeedN draws a non-negative seed within the given bit width, masking
// math/rand's 31-bit Int31 output down (or leaving it unchanged at the
// default width) so a Store can honor a narrower SeedBits configured for a
// lower-entropy target environment without changing its random source.
func randomSeedN(bits int) int32 {
	v := rand.Int31()
	if bits <= 0 || bits >= 31 {
		return v
	}
	return v & ((1 << uint(bits)) - 1)
}

// Store is the relational persistence facade: one *sqlx.DB backing the
// leads table (golden records), the audit tables, and the site blueprint
// cache. It implements stations.LeadPersister, stations.BlueprintStore,
// and worker.EntropyAllocator without importing either package, so those
// packages depend only on their own narrow interfaces.
type Store struct {
	db       *sqlx.DB
	seedBits int
}

// Open connects to Postgres and creates every table idempotently. seedBits
// configures the width of the hardware-entropy seeds Allocate draws (see
// internal/config.FingerprintConfig.SeedBits); 0 falls back to
// defaultSeedBits.
func Open(ctx context.Context, databaseURL string, poolMax int, connectTimeout time.Duration, seedBits int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(poolMax)
	db.SetConnMaxLifetime(connectTimeout * 60)

	if seedBits <= 0 {
		seedBits = defaultSeedBits
	}
	s := &Store{db: db, seedBits: seedBits}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id SERIAL PRIMARY KEY,
			linkedin_url TEXT UNIQUE NOT NULL,
			name TEXT,
			phone TEXT,
			email TEXT,
			city TEXT,
			state TEXT,
			zipcode TEXT,
			age INT,
			income INT,
			dnc_status TEXT,
			can_contact BOOLEAN,
			confidence_age REAL,
			confidence_income REAL,
			source_metadata JSONB,
			enriched_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS mission_results (
			id SERIAL PRIMARY KEY,
			mission_id TEXT UNIQUE NOT NULL,
			provider TEXT,
			status TEXT,
			vision_confidence REAL,
			captcha_solved BOOLEAN,
			duration_seconds REAL,
			trauma_signals JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS selector_repairs (
			id SERIAL PRIMARY KEY,
			domain TEXT NOT NULL,
			intent TEXT NOT NULL,
			old_selector TEXT,
			new_selector TEXT,
			confidence REAL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS site_cognitive_maps (
			url TEXT PRIMARY KEY,
			ax_tree_summary TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS hardware_entropy (
			worker_id TEXT NOT NULL,
			mission_id TEXT NOT NULL,
			gpu_seed INT NOT NULL,
			audio_seed INT NOT NULL,
			canvas_seed INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (worker_id, mission_id)
		)`,
		`CREATE TABLE IF NOT EXISTS site_blueprints (
			domain TEXT PRIMARY KEY,
			steps JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert implements stations.LeadPersister: insert or update the golden
// record keyed by linkedin_url, COALESCE-ing every column so an existing
// non-null value is never clobbered by a null from this run.
func (s *Store) Upsert(ctx context.Context, record map[string]any) (string, error) {
	linkedinURL, _ := record["linkedinUrl"].(string)
	if linkedinURL == "" {
		return "", fmt.Errorf("upsert lead: missing linkedinUrl")
	}

	metadata, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal source metadata: %w", err)
	}

	var leadID string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO leads (
			linkedin_url, name, phone, email, city, state, zipcode,
			age, income, dnc_status, can_contact, source_metadata, enriched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (linkedin_url) DO UPDATE SET
			name              = COALESCE(EXCLUDED.name, leads.name),
			phone             = COALESCE(EXCLUDED.phone, leads.phone),
			email             = COALESCE(EXCLUDED.email, leads.email),
			city              = COALESCE(EXCLUDED.city, leads.city),
			state             = COALESCE(EXCLUDED.state, leads.state),
			zipcode           = COALESCE(EXCLUDED.zipcode, leads.zipcode),
			age               = COALESCE(EXCLUDED.age, leads.age),
			income            = COALESCE(EXCLUDED.income, leads.income),
			dnc_status        = COALESCE(EXCLUDED.dnc_status, leads.dnc_status),
			can_contact       = COALESCE(EXCLUDED.can_contact, leads.can_contact),
			source_metadata   = COALESCE(EXCLUDED.source_metadata, leads.source_metadata),
			enriched_at       = now()
		RETURNING id::text
	`,
		linkedinURL,
		stringField(record, "name"),
		stringField(record, "phone"),
		stringField(record, "email"),
		stringField(record, "city"),
		stringField(record, "state"),
		stringField(record, "zipcode"),
		intField(record, "age"),
		intField(record, "income"),
		stringField(record, "dnc_status"),
		boolField(record, "can_contact"),
		metadata,
	).Scan(&leadID)
	if err != nil {
		return "", fmt.Errorf("upsert lead: %w", err)
	}
	return leadID, nil
}

// Get implements stations.BlueprintStore: fetch a provider's step list,
// unmarshalled from the steps JSONB column.
func (s *Store) Get(ctx context.Context, providerDomain string) (*domain.Blueprint, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT steps FROM site_blueprints WHERE domain = $1`, providerDomain,
	).Scan(&raw)
	if err != nil {
		return nil, false, nil
	}

	var steps []domain.BlueprintStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, false, fmt.Errorf("unmarshal blueprint %s: %w", providerDomain, err)
	}
	return &domain.Blueprint{Domain: providerDomain, Steps: steps}, true, nil
}

// PutBlueprint writes (or replaces) a provider's blueprint, used by the
// authoring tool that owns blueprints out-of-band from mission processing.
func (s *Store) PutBlueprint(ctx context.Context, blueprint domain.Blueprint) error {
	raw, err := json.Marshal(blueprint.Steps)
	if err != nil {
		return fmt.Errorf("marshal blueprint %s: %w", blueprint.Domain, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO site_blueprints (domain, steps, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (domain) DO UPDATE SET steps = EXCLUDED.steps, updated_at = now()
	`, blueprint.Domain, raw)
	return err
}

// Allocate implements worker.EntropyAllocator: persist three fresh seeds of
// the Store's seedBits width (31 bits by default) for this (worker, mission) pair so a worker crash mid-mission can
// recover the same fingerprint deterministically on retry.
func (s *Store) Allocate(ctx context.Context, workerID, missionID string) (domain.HardwareEntropySeeds, error) {
	seeds := domain.HardwareEntropySeeds{
		WorkerID:  workerID,
		MissionID: missionID,
		GPUSeed:    randomSeedN(s.seedBits),
		AudioSeed:  randomSeedN(s.seedBits),
		CanvasSeed: randomSeedN(s.seedBits),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hardware_entropy (worker_id, mission_id, gpu_seed, audio_seed, canvas_seed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (worker_id, mission_id) DO NOTHING
	`, workerID, missionID, seeds.GPUSeed, seeds.AudioSeed, seeds.CanvasSeed)
	if err != nil {
		return domain.HardwareEntropySeeds{}, fmt.Errorf("persist hardware entropy: %w", err)
	}
	return seeds, nil
}

// RecordMissionResult appends one row to the mission audit trail.
func (s *Store) RecordMissionResult(ctx context.Context, missionID string, result domain.Result) error {
	trauma, err := json.Marshal(result.TraumaSignals)
	if err != nil {
		return fmt.Errorf("marshal trauma signals: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mission_results (
			mission_id, provider, status, vision_confidence, captcha_solved, duration_seconds, trauma_signals
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mission_id) DO NOTHING
	`, missionID, result.Provider, string(result.Status), result.VisionConfidence,
		result.CaptchaSolved, result.DurationSeconds, trauma)
	return err
}

// RecordSelectorRepair appends one row to the trauma-center audit trail.
func (s *Store) RecordSelectorRepair(ctx context.Context, domainName, intent, oldSelector, newSelector string, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO selector_repairs (domain, intent, old_selector, new_selector, confidence)
		VALUES ($1, $2, $3, $4, $5)
	`, domainName, intent, oldSelector, newSelector, confidence)
	return err
}

func stringField(record map[string]any, key string) any {
	v, _ := record[key].(string)
	if v == "" {
		return nil
	}
	return v
}

func intField(record map[string]any, key string) any {
	switch v := record[key].(type) {
	case int:
		return v
	case int64:
		return v
	case float64:
		return int(v)
	default:
		return nil
	}
}

func boolField(record map[string]any, key string) any {
	v, ok := record[key].(bool)
	if !ok {
		return nil
	}
	return v
}
