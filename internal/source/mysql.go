package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// MySQL driver
	_ "github.com/go-sql-driver/mysql"

	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/schema"
)

// MySQLAdapter implements Adapter for MySQL using database/sql.
type MySQLAdapter struct {
	cfg *config.ConnectionConfig
	db  *sql.DB
}

// NewMySQL creates a new MySQL adapter.
func NewMySQL(cfg *config.ConnectionConfig) *MySQLAdapter {
	return &MySQLAdapter{cfg: cfg}
}

func (a *MySQLAdapter) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port, a.cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return &ConnectError{BackendType: "mysql", Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectError{BackendType: "mysql", Err: err}
	}

	a.db = db
	return nil
}

func (a *MySQLAdapter) Introspect(ctx context.Context) (*schema.Schema, error) {
	if a.db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	var tables []schema.Table
	tr, err := a.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND table_schema = ?
		ORDER BY table_name`, a.cfg.Database)
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
		BackendType: "mysql",
		Database:    a.cfg.Database,
		Tables:      tables,
	}, nil
}

func (a *MySQLAdapter) introspectTable(ctx context.Context, t *schema.Table) error {
	cr, err := a.db.QueryContext(ctx, `
		SELECT column_name, column_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, a.cfg.Database, t.Name)
	if err != nil {
		return err
	}
	for cr.Next() {
		var col schema.Column
		if err := cr.Scan(&col.Name, &col.DataType, &col.Nullable); err != nil {
			cr.Close()
			return err
		}
		t.Columns = append(t.Columns, col)
	}
	cr.Close()
	if err := cr.Err(); err != nil {
		return err
	}

	pkr, err := a.db.QueryContext(ctx, `
		SELECT k.column_name
		FROM information_schema.key_column_usage k
		JOIN information_schema.table_constraints tc
		  ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND k.table_schema = ? AND k.table_name = ?
		ORDER BY k.ordinal_position`, a.cfg.Database, t.Name)
	if err != nil {
		return err
	}
	var pkCols []string
	for pkr.Next() {
		var col string
		if err := pkr.Scan(&col); err != nil {
			pkr.Close()
			return err
		}
		pkCols = append(pkCols, col)
	}
	pkr.Close()
	if err := pkr.Err(); err != nil {
		return err
	}
	// composite primary keys are unsupported
	if len(pkCols) == 1 {
		t.PrimaryKey = pkCols[0]
	}

	fkr, err := a.db.QueryContext(ctx, `
		SELECT column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE referenced_table_name IS NOT NULL
		  AND table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, a.cfg.Database, t.Name)
	if err != nil {
		return err
	}
	for fkr.Next() {
		var fromCol, toTable, toCol string
		if err := fkr.Scan(&fromCol, &toTable, &toCol); err != nil {
			fkr.Close()
			return err
		}
		t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
			FromTable:  t.Name,
			FromColumn: fromCol,
			ToTable:    toTable,
			ToColumn:   toCol,
		})
	}
	fkr.Close()
	return fkr.Err()
}

func (a *MySQLAdapter) QueryRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	return queryRowsSQL(ctx, a.db, query, args...)
}

func (a *MySQLAdapter) QuoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func (a *MySQLAdapter) Placeholder(n int) string {
	return "?"
}

func (a *MySQLAdapter) WindowClause(start, end *int) string {
	var sb strings.Builder
	if end != nil {
		offset := 0
		if start != nil {
			offset = *start
		}
		fmt.Fprintf(&sb, " LIMIT %d", *end-offset)
	} else if start != nil && *start > 0 {
		// MySQL has no bare OFFSET
		sb.WriteString(" LIMIT 18446744073709551615")
	}
	if start != nil && *start > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", *start)
	}
	return sb.String()
}

func (a *MySQLAdapter) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// queryRowsSQL runs a query over database/sql and scans every row into a map.
func queryRowsSQL(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]map[string]interface{}, error) {
	if db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("getting columns: %w", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}
