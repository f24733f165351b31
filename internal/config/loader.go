package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "memcore.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MEMCORE_PORT")
	setString(&cfg.Server.CORSOrigin, "MEMCORE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "MEMCORE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "MEMCORE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "MEMCORE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "MEMCORE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "MEMCORE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Embeddings.URL, "MEMCORE_EMBEDDINGS_URL")
	setString(&cfg.Embeddings.APIKey, "MEMCORE_EMBEDDINGS_API_KEY")
	setString(&cfg.Embeddings.Model, "MEMCORE_EMBEDDINGS_MODEL")
	setInt(&cfg.Embeddings.Dimensions, "MEMCORE_EMBEDDINGS_DIMENSIONS")
	setDuration(&cfg.Embeddings.Timeout, "MEMCORE_EMBEDDINGS_TIMEOUT")
	setDuration(&cfg.Embeddings.ExplicitTimeout, "MEMCORE_EMBEDDINGS_EXPLICIT_TIMEOUT")
	setString(&cfg.Logging.Level, "MEMCORE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MEMCORE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "MEMCORE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "MEMCORE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MEMCORE_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "MEMCORE_CACHE_SIZE_MB")
	setFloat64(&cfg.Memory.DedupDistance, "MEMCORE_DEDUP_DISTANCE")
	setFloat64(&cfg.Memory.SupersedeSimilarity, "MEMCORE_SUPERSEDE_SIMILARITY")
	setInt(&cfg.Memory.RecentWindow, "MEMCORE_RECENT_WINDOW")
	setFloat64(&cfg.Memory.RouterConfidence, "MEMCORE_ROUTER_CONFIDENCE")
	setInt(&cfg.Memory.MaxCandidates, "MEMCORE_MAX_CANDIDATES")
	setInt(&cfg.Memory.BackfillMaxAttempts, "MEMCORE_BACKFILL_MAX_ATTEMPTS")
	setInt(&cfg.Memory.BackfillWorkers, "MEMCORE_BACKFILL_WORKERS")
	setInt(&cfg.Budgets.MemoryTokens, "MEMCORE_BUDGET_MEMORY")
	setInt(&cfg.Budgets.DocumentTokens, "MEMCORE_BUDGET_DOCUMENTS")
	setInt(&cfg.Budgets.VaultTokens, "MEMCORE_BUDGET_VAULT")
	setInt(&cfg.Budgets.TotalTokens, "MEMCORE_BUDGET_TOTAL")
	setInt(&cfg.Budgets.CategoryCeiling, "MEMCORE_BUDGET_CATEGORY_CEILING")
	setBool(&cfg.Validators.Ordinal, "MEMCORE_VALIDATOR_ORDINAL")
	setBool(&cfg.Validators.Temporal, "MEMCORE_VALIDATOR_TEMPORAL")
	setBool(&cfg.Validators.Characters, "MEMCORE_VALIDATOR_CHARACTERS")
	setBool(&cfg.Validators.Numeric, "MEMCORE_VALIDATOR_NUMERIC")
}

// validate rejects configurations that cannot work at runtime.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if cfg.Embeddings.Dimensions <= 0 {
		return errors.New("embeddings dimensions must be positive")
	}
	if cfg.Memory.DedupDistance <= 0 || cfg.Memory.DedupDistance >= 1 {
		return errors.New("dedup_distance must be in (0, 1)")
	}
	if cfg.Memory.SupersedeSimilarity <= 0 || cfg.Memory.SupersedeSimilarity >= 1 {
		return errors.New("supersede_similarity must be in (0, 1)")
	}
	if cfg.Memory.RouterConfidence <= 0 || cfg.Memory.RouterConfidence > 1 {
		return errors.New("router_confidence must be in (0, 1]")
	}
	if cfg.Budgets.TotalTokens < cfg.Budgets.MemoryTokens {
		return errors.New("total budget must be at least the memory budget")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
