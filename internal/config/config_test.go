package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validYAML = `
source:
  host: src.example.com
  database: app
  user: reader
  password: secret
target:
  host: dst.example.com
  database: warehouse
  user: writer
  password: secret
migration:
  batch_size: 500
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Source.Host != "src.example.com" {
		t.Errorf("source host = %q", cfg.Source.Host)
	}
	if cfg.Source.Port != 5432 {
		t.Errorf("source port = %d, want default 5432", cfg.Source.Port)
	}
	if cfg.Source.Schema != "public" || cfg.Target.Schema != "migrated" {
		t.Errorf("schemas = %q/%q, want public/migrated defaults", cfg.Source.Schema, cfg.Target.Schema)
	}
	if cfg.Migration.BatchSize != 500 {
		t.Errorf("batch size = %d, want 500 from file", cfg.Migration.BatchSize)
	}
	if cfg.Migration.Workers != 4 {
		t.Errorf("workers = %d, want default 4", cfg.Migration.Workers)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log settings = %q/%q, want info/text defaults", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PGSYNC_SOURCE_HOST", "override.example.com")
	t.Setenv("PGSYNC_BATCH_SIZE", "2500")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Host != "override.example.com" {
		t.Errorf("source host = %q, want env override", cfg.Source.Host)
	}
	if cfg.Migration.BatchSize != 2500 {
		t.Errorf("batch size = %d, want env override 2500", cfg.Migration.BatchSize)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing source database",
			yaml:    "target:\n  database: warehouse\n",
			wantErr: "source database",
		},
		{
			name:    "missing target database",
			yaml:    "source:\n  database: app\n",
			wantErr: "target database",
		},
		{
			name: "negative batch size",
			yaml: `
source:
  database: app
target:
  database: warehouse
migration:
  batch_size: -5
`,
			wantErr: "batch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSameSchemaGuard(t *testing.T) {
	yaml := `
source:
  host: db.example.com
  database: app
  schema: public
target:
  host: db.example.com
  database: app
  schema: public
`
	_, err := Load(writeConfig(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "same schema") {
		t.Errorf("Load error = %v, want same-schema refusal", err)
	}
}

func TestSameDatabaseDifferentSchemaAllowed(t *testing.T) {
	yaml := `
source:
  host: db.example.com
  database: app
  schema: public
target:
  host: db.example.com
  database: app
  schema: backup
`
	if _, err := Load(writeConfig(t, yaml)); err != nil {
		t.Errorf("Load: %v, same database with distinct schemas must be allowed", err)
	}
}

func TestDSNEncoding(t *testing.T) {
	tests := []struct {
		name     string
		db       DB
		wantSubs []string
	}{
		{
			name: "plain credentials",
			db:   DB{Host: "h", Port: 5432, Database: "db", User: "admin", Password: "secret", SSLMode: "disable"},
			wantSubs: []string{
				"postgres://admin:secret@h:5432/db",
				"sslmode=disable",
			},
		},
		{
			name:     "password with at sign",
			db:       DB{Host: "h", Port: 5432, Database: "db", User: "admin", Password: "pass@word"},
			wantSubs: []string{"admin:pass%40word@h:5432"},
		},
		{
			name:     "password with colon and slash",
			db:       DB{Host: "h", Port: 5432, Database: "db", User: "admin", Password: "pa:s/s"},
			wantSubs: []string{"admin:pa%3As%2Fs@h:5432"},
		},
		{
			name:     "user with at sign",
			db:       DB{Host: "h", Port: 5432, Database: "db", User: "user@domain", Password: "secret"},
			wantSubs: []string{"user%40domain:secret@h:5432"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.db.DSN()
			for _, sub := range tt.wantSubs {
				if !strings.Contains(dsn, sub) {
					t.Errorf("DSN = %q, missing %q", dsn, sub)
				}
			}
		})
	}
}
