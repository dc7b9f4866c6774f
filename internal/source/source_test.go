package source

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/veildb/veildb/internal/config"
)

func intp(n int) *int { return &n }

func TestNewDispatchesByType(t *testing.T) {
	for _, typ := range []string{"postgresql", "mysql", "sqlite3", "oracle"} {
		a, err := New(&config.ConnectionConfig{Type: typ})
		if err != nil {
			t.Fatalf("New(%q): %v", typ, err)
		}
		if a == nil {
			t.Errorf("New(%q) returned nil adapter", typ)
		}
	}
}

func TestNewUnsupportedBackend(t *testing.T) {
	_, err := New(&config.ConnectionConfig{Type: "mssql"})
	var unsupported *UnsupportedBackendError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedBackendError, got %v", err)
	}
	if unsupported.BackendType != "mssql" {
		t.Errorf("BackendType = %q", unsupported.BackendType)
	}
}

func TestValidateSQLiteFileRejectsWrongMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.db")
	if err := os.WriteFile(path, []byte("definitely not a sqlite file"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := validateSQLiteFile(path)
	if !errors.Is(err, ErrInvalidFile) {
		t.Errorf("expected ErrInvalidFile, got %v", err)
	}
}

func TestValidateSQLiteFileRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.db")
	if err := os.WriteFile(path, []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := validateSQLiteFile(path); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("expected ErrInvalidFile, got %v", err)
	}
}

func TestValidateSQLiteFileAcceptsMagic(t *testing.T) {
	magic, err := hex.DecodeString(sqliteMagic)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "real.db")
	if err := os.WriteFile(path, append(magic, make([]byte, 84)...), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := validateSQLiteFile(path); err != nil {
		t.Errorf("valid header rejected: %v", err)
	}
}

func TestValidateSQLiteFileMissing(t *testing.T) {
	err := validateSQLiteFile(filepath.Join(t.TempDir(), "absent.db"))
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Errorf("expected ConnectError, got %v", err)
	}
}

func TestWindowClauses(t *testing.T) {
	pg := &PostgresAdapter{}
	my := &MySQLAdapter{}
	lite := &SQLiteAdapter{}
	ora := &OracleAdapter{}

	cases := []struct {
		name       string
		start, end *int
		pg, my     string
		lite, ora  string
	}{
		{
			"both bounds", intp(10), intp(30),
			" LIMIT 20 OFFSET 10", " LIMIT 20 OFFSET 10",
			" LIMIT 20 OFFSET 10", " OFFSET 10 ROWS FETCH NEXT 20 ROWS ONLY",
		},
		{
			"end only", nil, intp(5),
			" LIMIT 5", " LIMIT 5",
			" LIMIT 5", " FETCH NEXT 5 ROWS ONLY",
		},
		{
			"start only", intp(7), nil,
			" OFFSET 7", " LIMIT 18446744073709551615 OFFSET 7",
			" LIMIT -1 OFFSET 7", " OFFSET 7 ROWS",
		},
		{
			"unbounded", nil, nil,
			"", "", "", "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pg.WindowClause(tc.start, tc.end); got != tc.pg {
				t.Errorf("postgres = %q, want %q", got, tc.pg)
			}
			if got := my.WindowClause(tc.start, tc.end); got != tc.my {
				t.Errorf("mysql = %q, want %q", got, tc.my)
			}
			if got := lite.WindowClause(tc.start, tc.end); got != tc.lite {
				t.Errorf("sqlite = %q, want %q", got, tc.lite)
			}
			if got := ora.WindowClause(tc.start, tc.end); got != tc.ora {
				t.Errorf("oracle = %q, want %q", got, tc.ora)
			}
		})
	}
}

func TestQuoteIdentPerDialect(t *testing.T) {
	if got := (&PostgresAdapter{}).QuoteIdent("users"); got != `"users"` {
		t.Errorf("postgres quote = %q", got)
	}
	if got := (&MySQLAdapter{}).QuoteIdent("users"); got != "`users`" {
		t.Errorf("mysql quote = %q", got)
	}
}

func TestPlaceholderPerDialect(t *testing.T) {
	if got := (&PostgresAdapter{}).Placeholder(2); got != "$2" {
		t.Errorf("postgres placeholder = %q", got)
	}
	if got := (&MySQLAdapter{}).Placeholder(2); got != "?" {
		t.Errorf("mysql placeholder = %q", got)
	}
	if got := (&OracleAdapter{}).Placeholder(2); got != ":2" {
		t.Errorf("oracle placeholder = %q", got)
	}
}
