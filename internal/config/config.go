// Package config loads service configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Config is the full service configuration.
type Config struct {
	Port         string        `yaml:"port"`
	StoreBackend string        `yaml:"store_backend"`
	SQLitePath   string        `yaml:"sqlite_path"`
	BigQuery     BigQuery      `yaml:"bigquery"`
	AdminEmails  []string      `yaml:"admin_emails"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// BigQuery holds the production store settings.
type BigQuery struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// Load reads configuration. A .env file in the working directory is loaded
// if present, then the YAML file at path (or $AMEND_CONFIG) if one exists,
// then environment variables override individual fields.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         "8080",
		StoreBackend: BackendMemory,
		SQLitePath:   "data/amendments.db",
		BigQuery:     BigQuery{Dataset: "finance"},
		StoreTimeout: 10 * time.Second,
	}

	if path == "" {
		path = os.Getenv("AMEND_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse %s: %w", path, err)
		}
	}

	cfg.Port = envOrDefault("PORT", cfg.Port)
	cfg.StoreBackend = envOrDefault("STORE_BACKEND", cfg.StoreBackend)
	cfg.SQLitePath = envOrDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.BigQuery.Project = envOrDefault("BIGQUERY_PROJECT", cfg.BigQuery.Project)
	cfg.BigQuery.Dataset = envOrDefault("BIGQUERY_DATASET", cfg.BigQuery.Dataset)

	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		cfg.AdminEmails = splitList(v)
	}
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config.Load: invalid STORE_TIMEOUT %q: %w", v, err)
		}
		cfg.StoreTimeout = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: sqlite backend requires sqlite_path")
		}
	case BackendBigQuery:
		if c.BigQuery.Project == "" {
			return fmt.Errorf("config: bigquery backend requires bigquery.project")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.StoreBackend)
	}
	return nil
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
