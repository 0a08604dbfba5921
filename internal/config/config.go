// Package config loads the nested Chimera configuration from YAML with an
// environment-variable overlay, following the layering pattern of the
// teacher's internal/config package: a DefaultConfig seed, overridden by a
// loaded file, overridden again by environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RedisConfig configures the shared Redis connection used by the mission
// queue, GPS router, Hive Mind pattern store, blueprint store, and cookie
// store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// PostgresConfig configures the relational persistence pool.
type PostgresConfig struct {
	DatabaseURL    string        `yaml:"database_url"`
	PoolMax        int           `yaml:"pool_max"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ProxyConfig configures the outbound mobile proxy.
type ProxyConfig struct {
	URL             string `yaml:"url"`
	DefaultCarrier  string `yaml:"default_carrier"`
}

// WorkerConfig configures the worker pool and mission execution envelope.
type WorkerConfig struct {
	PoolSize          int           `yaml:"pool_size"`
	MissionTimeout    time.Duration `yaml:"mission_timeout"`
	WarmupMinSeconds  int           `yaml:"warmup_min_seconds"`
	WarmupMaxSeconds  int           `yaml:"warmup_max_seconds"`
	Headless          bool          `yaml:"headless"`
	ViewportWidth     int           `yaml:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height"`
	ChromeUAVersion   string        `yaml:"chrome_ua_version"`
	ChromeUAPlatform  string        `yaml:"chrome_ua_platform"`
}

// VisionConfig configures the Vision Client façade.
type VisionConfig struct {
	BrainHTTPURL   string        `yaml:"brain_http_url"`
	MaxAttempts    int           `yaml:"max_attempts"`
	VerifyTimeout  time.Duration `yaml:"verify_timeout"`
}

// RouterConfig configures the GPS ε-greedy policy.
type RouterConfig struct {
	Epsilon              float64 `yaml:"epsilon"`
	PreferredProbability  float64 `yaml:"preferred_probability"`
	StateBoostMinSamples int     `yaml:"state_boost_min_samples"`
	StateBoostWeight     float64 `yaml:"state_boost_weight"`
}

// FingerprintConfig configures the per-session seed ranges for the
// fingerprint and behavior layer.
type FingerprintConfig struct {
	SeedBits int `yaml:"seed_bits"`
}

// GenAIConfig configures the google.golang.org/genai client backing the
// Hive Mind's embedding engine.
type GenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// GatekeepConfig configures the external carrier-lookup, DNC-scrub, and
// demographics APIs consulted by the Phone Gatekeep, DNC Gatekeeper, and
// Demographics stations.
type GatekeepConfig struct {
	CarrierLookupURL string        `yaml:"carrier_lookup_url"`
	CarrierAPIKey    string        `yaml:"carrier_api_key"`
	DNCLookupURL     string        `yaml:"dnc_lookup_url"`
	DNCAPIKey        string        `yaml:"dnc_api_key"`
	DemographicsURL  string        `yaml:"demographics_url"`
	DemographicsKey  string        `yaml:"demographics_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// Config is the root Chimera configuration.
type Config struct {
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	Worker      WorkerConfig      `yaml:"worker"`
	Vision      VisionConfig      `yaml:"vision"`
	Router      RouterConfig      `yaml:"router"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Gatekeep    GatekeepConfig    `yaml:"gatekeep"`
	GenAI       GenAIConfig       `yaml:"genai"`

	// HiveMindPath is the SQLite database path backing the Hive Mind's
	// experience and pattern indices.
	HiveMindPath string `yaml:"hive_mind_path"`
	// HealthAddr is the listen address for this process's /health server.
	HealthAddr string `yaml:"health_addr"`
}

// DefaultConfig returns the baseline configuration before file/env overlay.
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{URL: "redis://localhost:6379"},
		Postgres: PostgresConfig{
			PoolMax:        10,
			ConnectTimeout: 5 * time.Second,
		},
		Worker: WorkerConfig{
			PoolSize:         4,
			MissionTimeout:   120 * time.Second,
			WarmupMinSeconds: 30,
			WarmupMaxSeconds: 60,
			Headless:         true,
			ViewportWidth:    1920,
			ViewportHeight:   1080,
		},
		Vision: VisionConfig{
			MaxAttempts:   2,
			VerifyTimeout: 10 * time.Second,
		},
		Router: RouterConfig{
			Epsilon:              0.1,
			PreferredProbability: 0.8,
			StateBoostMinSamples: 3,
			StateBoostWeight:     0.15,
		},
		Fingerprint: FingerprintConfig{SeedBits: 31},
		Gatekeep:    GatekeepConfig{RequestTimeout: 10 * time.Second},
		GenAI:       GenAIConfig{EmbeddingModel: "text-embedding-004"},
		HiveMindPath: "chimera_hivemind.db",
		HealthAddr:   ":8090",
	}
}

// Load reads an optional .env file, an optional YAML config file at path,
// then overlays recognized environment variables, matching §6 of the
// specification.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverlay(&cfg)
	return cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DatabaseURL = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		cfg.Proxy.URL = v
	}
	if v := os.Getenv("DB_POOL_MAX"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Postgres.PoolMax = n
		}
	}
	if v := os.Getenv("CHROME_UA_VERSION"); v != "" {
		cfg.Worker.ChromeUAVersion = v
	}
	if v := os.Getenv("CHROME_UA_PLATFORM"); v != "" {
		cfg.Worker.ChromeUAPlatform = v
	}
	if v := os.Getenv("CHIMERA_BRAIN_HTTP_URL"); v != "" {
		cfg.Vision.BrainHTTPURL = v
	}
	if v := os.Getenv("CARRIER_LOOKUP_API_KEY"); v != "" {
		cfg.Gatekeep.CarrierAPIKey = v
	}
	if v := os.Getenv("DNC_LOOKUP_API_KEY"); v != "" {
		cfg.Gatekeep.DNCAPIKey = v
	}
	if v := os.Getenv("DEMOGRAPHICS_API_KEY"); v != "" {
		cfg.Gatekeep.DemographicsKey = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		cfg.GenAI.APIKey = v
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid positive int %q", s)
	}
	return n, nil
}

// PersistenceEnabled reports whether DATABASE_URL was configured; its
// absence disables persistence as a soft degradation per §6.
func (c Config) PersistenceEnabled() bool {
	return c.Postgres.DatabaseURL != ""
}
