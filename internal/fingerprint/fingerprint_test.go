package fingerprint

import (
	"testing"
	"time"

	"pgsync/internal/catalog"
)

func TestCanonicalize(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil passthrough", nil, nil},
		{"string passthrough", "hello", "hello"},
		{"int passthrough", int64(42), int64(42)},
		{"time to iso8601", ts, "2024-03-01T12:30:00Z"},
		{"float rounded", 1.234567894999, 1.23456789},
		{"float32 widened", float32(0.5), 0.5},
		{"bytes to hex", []byte{0xde, 0xad}, "dead"},
		{"map to sorted json", map[string]any{"b": 2.0, "a": 1.0}, `{"a":1,"b":2}`},
		{"slice to json", []any{"x", 1.0}, `["x",1]`},
		{"uuid bytes", [16]byte{}, "00000000-0000-0000-0000-000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.in); got != tt.want {
				t.Errorf("Canonicalize(%v) = %v (%T), want %v", tt.in, got, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []any{
		time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		3.14159265358979,
		map[string]any{"k": "v"},
		[]byte{1, 2, 3},
		nil,
		"plain",
	}
	for _, in := range inputs {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		if once != twice {
			t.Errorf("Canonicalize not idempotent for %v: %v != %v", in, once, twice)
		}
	}
}

func TestFingerprintStability(t *testing.T) {
	row := catalog.Row{"id": int64(1), "name": "alice", "score": 9.5}
	cols := []string{"name", "score"}

	a, err := Fingerprint(row, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, err := Fingerprint(row, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if a != b {
		t.Errorf("fingerprint not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintIgnoresExcludedColumns(t *testing.T) {
	cols := []string{"name"}
	a, err := Fingerprint(catalog.Row{"id": int64(1), "name": "alice"}, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, err := Fingerprint(catalog.Row{"id": int64(2), "name": "alice"}, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if a != b {
		t.Error("columns outside the subset must not affect the fingerprint")
	}
}

func TestFingerprintMissingColumnEqualsNull(t *testing.T) {
	cols := []string{"name", "note"}
	missing, err := Fingerprint(catalog.Row{"name": "alice"}, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	explicit, err := Fingerprint(catalog.Row{"name": "alice", "note": nil}, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if missing != explicit {
		t.Error("absent column and NULL column must fingerprint identically")
	}
}

func TestFingerprintDetectsChange(t *testing.T) {
	cols := []string{"val"}
	a, err := Fingerprint(catalog.Row{"val": "a"}, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, err := Fingerprint(catalog.Row{"val": "b"}, cols)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if a == b {
		t.Error("distinct values must produce distinct fingerprints")
	}
}

func TestIndex(t *testing.T) {
	rows := []catalog.Row{
		{"val": "a"},
		{"val": "b"},
		{"val": "a"},
	}
	set, err := Index(rows, []string{"val"})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(set) != 2 {
		t.Errorf("index size = %d, want 2 (duplicates collapse)", len(set))
	}
}
