package storage

import "testing"

func TestConvertPlaceholders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		in    string
		want  string
	}{
		{"simple", "SELECT * FROM t WHERE a = ?", "SELECT * FROM t WHERE a = $1"},
		{"multiple", "INSERT INTO t VALUES (?, ?, ?)", "INSERT INTO t VALUES ($1, $2, $3)"},
		{"none", "SELECT 1", "SELECT 1"},
		{"inside literal untouched", "SELECT '?' , ? FROM t", "SELECT '?' , $1 FROM t"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ConvertPlaceholders(tc.in); got != tc.want {
				t.Fatalf("ConvertPlaceholders(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestInPlaceholders(t *testing.T) {
	t.Parallel()

	if got := inPlaceholders(3); got != "?,?,?" {
		t.Fatalf("inPlaceholders(3) = %q", got)
	}
	if got := inPlaceholders(1); got != "?" {
		t.Fatalf("inPlaceholders(1) = %q", got)
	}
	if got := inPlaceholders(0); got != "" {
		t.Fatalf("inPlaceholders(0) = %q", got)
	}
}

func TestDialectUpsertClauses(t *testing.T) {
	t.Parallel()

	s := &SQLiteDialect{}
	p := &PostgresDialect{}

	if got := s.UpsertConflict([]string{"id"}); got != "ON CONFLICT(id) DO UPDATE SET" {
		t.Fatalf("sqlite upsert clause: %q", got)
	}
	if got := p.UpsertConflict([]string{"a", "b"}); got != "ON CONFLICT (a, b) DO UPDATE SET" {
		t.Fatalf("postgres upsert clause: %q", got)
	}
}
