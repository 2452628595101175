// Package config loads the ledger service's runtime configuration: storage
// backend selection, fixed-point precision, and ambient logging/metrics
// settings. Shape (DefaultConfig/LoadConfig/SaveConfig over JSON) follows
// the teacher repo's config package; environment overlay is added on top
// since the CLI is meant to run unattended in CSV-batch mode.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Backend selects which storage.Store implementation the ledger runs
// against.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBolt   Backend = "bolt"
	BackendPostgres Backend = "postgres"
)

// Config is the full set of knobs the ledgercsv binary accepts, whether
// supplied via a JSON file, environment variables, or flags (flags win,
// then env, then file, then the defaults below).
type Config struct {
	// Precision is the number of decimal digits amounts are truncated to.
	Precision int `json:"precision"`

	// Backend selects the storage implementation.
	Backend Backend `json:"backend"`
	DBPath  string  `json:"db_path"`
	PgDSN   string  `json:"pg_dsn"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// MetricsAddr, if non-empty, serves /metrics on this address.
	MetricsAddr string `json:"metrics_addr"`

	// IngestRateLimit caps rows/sec accepted from the CSV input; 0 disables
	// limiting.
	IngestRateLimit float64 `json:"ingest_rate_limit"`
}

// DefaultConfig returns the configuration used when no file, env var, or
// flag overrides a field.
func DefaultConfig() *Config {
	return &Config{
		Precision:       4,
		Backend:         BackendMemory,
		DBPath:          "ledger.db",
		LogLevel:        "info",
		MetricsAddr:     "",
		IngestRateLimit: 0,
	}
}

// LoadConfig reads a JSON config file, falling back to defaults (and
// writing them out) if the file does not exist yet.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.SaveConfig(path); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path as indented JSON, creating
// parent directories as needed.
func (c *Config) SaveConfig(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overlays LEDGER_* environment variables onto c. Flags set
// explicitly by the caller should be applied after this so they take
// final precedence.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LEDGER_PRECISION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Precision = n
		}
	}
	if v := os.Getenv("LEDGER_BACKEND"); v != "" {
		c.Backend = Backend(v)
	}
	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LEDGER_PG_DSN"); v != "" {
		c.PgDSN = v
	}
	if v := os.Getenv("LEDGER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LEDGER_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("LEDGER_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("LEDGER_INGEST_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.IngestRateLimit = f
		}
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Precision < 0 || c.Precision > 12 {
		return errors.New("invalid precision: must be between 0 and 12")
	}
	switch c.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.DBPath == "" {
			return errors.New("bolt backend requires db_path")
		}
	case BackendPostgres:
		if c.PgDSN == "" {
			return errors.New("postgres backend requires pg_dsn")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.IngestRateLimit < 0 {
		return errors.New("invalid ingest_rate_limit: must be >= 0")
	}
	return nil
}
