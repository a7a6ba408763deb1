// Package config loads sync configuration from a YAML file with environment
// variable overrides. A .env file next to the working directory is honored
// when present so local runs need no exported variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DB holds one side's connection settings.
type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

// DSN builds a pgx-compatible connection URL. Credentials are URL-escaped
// so passwords containing @ : / survive.
func (d *DB) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns host:port for logs and audit records.
func (d *DB) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Migration holds the knobs shared by all sync modes.
type Migration struct {
	BatchSize   int  `yaml:"batch_size"`
	Workers     int  `yaml:"workers"`
	SkipIndexes bool `yaml:"skip_indexes"`

	ExcludeAutoGenerated bool `yaml:"exclude_auto_generated"`

	// ForceAutoGenerated lists columns per table that are treated as
	// auto-generated regardless of the heuristic.
	ForceAutoGenerated map[string][]string `yaml:"force_auto_generated"`

	// HistoryPath is the local SQLite run-history database.
	HistoryPath string `yaml:"history_path"`
}

// Config is the full configuration for one invocation.
type Config struct {
	Source    DB        `yaml:"source"`
	Target    DB        `yaml:"target"`
	Migration Migration `yaml:"migration"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. An empty path loads from environment
// and defaults alone.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideDB(&c.Source, "PGSYNC_SOURCE")
	overrideDB(&c.Target, "PGSYNC_TARGET")

	envStr(&c.LogLevel, "PGSYNC_LOG_LEVEL")
	envStr(&c.LogFormat, "PGSYNC_LOG_FORMAT")
	envInt(&c.Migration.BatchSize, "PGSYNC_BATCH_SIZE")
	envInt(&c.Migration.Workers, "PGSYNC_WORKERS")
	envStr(&c.Migration.HistoryPath, "PGSYNC_HISTORY_PATH")
}

func overrideDB(d *DB, prefix string) {
	envStr(&d.Host, prefix+"_HOST")
	envInt(&d.Port, prefix+"_PORT")
	envStr(&d.Database, prefix+"_DATABASE")
	envStr(&d.User, prefix+"_USER")
	envStr(&d.Password, prefix+"_PASSWORD")
	envStr(&d.Schema, prefix+"_SCHEMA")
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) applyDefaults() {
	for _, d := range []*DB{&c.Source, &c.Target} {
		if d.Host == "" {
			d.Host = "localhost"
		}
		if d.Port == 0 {
			d.Port = 5432
		}
		if d.User == "" {
			d.User = "postgres"
		}
		if d.SSLMode == "" {
			d.SSLMode = "prefer"
		}
		if d.MaxConns == 0 {
			d.MaxConns = 8
		}
	}
	if c.Source.Schema == "" {
		c.Source.Schema = "public"
	}
	if c.Target.Schema == "" {
		c.Target.Schema = "migrated"
	}

	if c.Migration.BatchSize == 0 {
		c.Migration.BatchSize = 1000
	}
	if c.Migration.Workers == 0 {
		c.Migration.Workers = 4
	}
	if c.Migration.HistoryPath == "" {
		c.Migration.HistoryPath = "pgsync-history.db"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

func (c *Config) validate() error {
	if c.Source.Database == "" {
		return fmt.Errorf("source database name is required")
	}
	if c.Target.Database == "" {
		return fmt.Errorf("target database name is required")
	}
	if c.Migration.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Migration.BatchSize)
	}
	if c.Migration.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Migration.Workers)
	}

	// Writing a schema onto itself destroys the source during
	// drop-and-recreate runs.
	if c.Source.Host == c.Target.Host &&
		c.Source.Port == c.Target.Port &&
		c.Source.Database == c.Target.Database &&
		c.Source.Schema == c.Target.Schema {
		return fmt.Errorf("source and target resolve to the same schema (%s.%s on %s); refusing to sync a schema onto itself",
			c.Source.Database, c.Source.Schema, c.Source.Addr())
	}
	return nil
}
