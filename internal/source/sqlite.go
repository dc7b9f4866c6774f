package source

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/schema"
)

// sqliteMagic is the fixed 16-byte header every SQLite database file starts
// with. See https://www.sqlite.org/fileformat.html#the_database_header
const sqliteMagic = "53514c69746520666f726d6174203300"

// ErrInvalidFile is returned when the target file is not a SQLite database.
// Validating the header up front avoids pointing the engine at an arbitrary
// file or implicitly creating a new empty database.
var ErrInvalidFile = errors.New("invalid database file")

// SQLiteAdapter implements Adapter for file-backed SQLite databases.
type SQLiteAdapter struct {
	cfg *config.ConnectionConfig
	db  *sql.DB
}

// NewSQLite creates a new SQLite adapter.
func NewSQLite(cfg *config.ConnectionConfig) *SQLiteAdapter {
	return &SQLiteAdapter{cfg: cfg}
}

func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	if err := validateSQLiteFile(a.cfg.Path); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", "file:"+a.cfg.Path+"?mode=ro")
	if err != nil {
		return &ConnectError{BackendType: "sqlite3", Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectError{BackendType: "sqlite3", Err: err}
	}

	a.db = db
	return nil
}

// validateSQLiteFile checks the first 16 bytes of the file against the SQLite
// magic header before anything else touches it.
func validateSQLiteFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ConnectError{BackendType: "sqlite3", Err: err}
	}
	defer f.Close()

	head := make([]byte, 16)
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}

	want, _ := hex.DecodeString(sqliteMagic)
	if !bytes.Equal(head, want) {
		return fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	return nil
}

func (a *SQLiteAdapter) Introspect(ctx context.Context) (*schema.Schema, error) {
	if a.db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	var tables []schema.Table
	tr, err := a.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("introspecting tables: %w", err)
	}
	defer tr.Close()

	for tr.Next() {
		var t schema.Table
		if err := tr.Scan(&t.Name); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, t)
	}
	if err := tr.Err(); err != nil {
		return nil, err
	}

	for i := range tables {
		t := &tables[i]
		if err := a.introspectTable(ctx, t); err != nil {
			return nil, fmt.Errorf("introspecting %s: %w", t.Name, err)
		}
	}

	return &schema.Schema{
		BackendType: "sqlite3",
		Database:    a.cfg.Path,
		Tables:      tables,
	}, nil
}

func (a *SQLiteAdapter) introspectTable(ctx context.Context, t *schema.Table) error {
	cr, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", a.QuoteIdent(t.Name)))
	if err != nil {
		return err
	}
	var pkCols []string
	for cr.Next() {
		var (
			cid           int
			name, ctype   string
			notnull, pk   int
			dflt          sql.NullString
		)
		if err := cr.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			cr.Close()
			return err
		}
		t.Columns = append(t.Columns, schema.Column{
			Name:     name,
			DataType: ctype,
			Nullable: notnull == 0,
		})
		if pk != 0 {
			pkCols = append(pkCols, name)
		}
	}
	cr.Close()
	if err := cr.Err(); err != nil {
		return err
	}
	// composite primary keys are unsupported
	if len(pkCols) == 1 {
		t.PrimaryKey = pkCols[0]
	}

	fkr, err := a.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT "table", "from", "to" FROM pragma_foreign_key_list(%s)`, a.Placeholder(1)), t.Name)
	if err != nil {
		return err
	}
	for fkr.Next() {
		var toTable, fromCol string
		var toCol sql.NullString
		if err := fkr.Scan(&toTable, &fromCol, &toCol); err != nil {
			fkr.Close()
			return err
		}
		fk := schema.ForeignKey{
			FromTable:  t.Name,
			FromColumn: fromCol,
			ToTable:    toTable,
			ToColumn:   toCol.String,
		}
		t.ForeignKeys = append(t.ForeignKeys, fk)
	}
	fkr.Close()
	return fkr.Err()
}

func (a *SQLiteAdapter) QueryRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	return queryRowsSQL(ctx, a.db, query, args...)
}

func (a *SQLiteAdapter) QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (a *SQLiteAdapter) Placeholder(n int) string {
	return "?"
}

func (a *SQLiteAdapter) WindowClause(start, end *int) string {
	var sb strings.Builder
	if end != nil {
		offset := 0
		if start != nil {
			offset = *start
		}
		fmt.Fprintf(&sb, " LIMIT %d", *end-offset)
	} else if start != nil && *start > 0 {
		sb.WriteString(" LIMIT -1")
	}
	if start != nil && *start > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", *start)
	}
	return sb.String()
}

func (a *SQLiteAdapter) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}
