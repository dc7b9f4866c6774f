package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/schema"
)

// PostgresAdapter implements Adapter for PostgreSQL using pgx.
type PostgresAdapter struct {
	cfg      *config.ConnectionConfig
	pgSchema string
	pool     *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL adapter.
func NewPostgres(cfg *config.ConnectionConfig) *PostgresAdapter {
	return &PostgresAdapter{cfg: cfg, pgSchema: "public"}
}

func (a *PostgresAdapter) Connect(ctx context.Context) error {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s default_query_exec_mode=simple_protocol",
		a.cfg.Host, a.cfg.Port, a.cfg.Database, a.cfg.Username, a.cfg.Password,
	)
	if a.cfg.SSL {
		connStr += " sslmode=require"
	} else {
		connStr += " sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return &ConnectError{BackendType: "postgresql", Err: err}
	}
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return &ConnectError{BackendType: "postgresql", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return &ConnectError{BackendType: "postgresql", Err: err}
	}

	a.pool = pool
	return nil
}

func (a *PostgresAdapter) Introspect(ctx context.Context) (*schema.Schema, error) {
	if a.pool == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := a.introspectTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspecting tables: %w", err)
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
	}

	if err := a.introspectColumns(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("introspecting columns: %w", err)
	}
	if err := a.introspectPrimaryKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("introspecting primary keys: %w", err)
	}
	if err := a.introspectForeignKeys(ctx, tableMap); err != nil {
		return nil, fmt.Errorf("introspecting foreign keys: %w", err)
	}

	return &schema.Schema{
		BackendType: "postgresql",
		Database:    a.cfg.Database,
		Tables:      tables,
	}, nil
}

func (a *PostgresAdapter) introspectTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT c.relname AS table_name
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := a.pool.Query(ctx, query, a.pgSchema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (a *PostgresAdapter) introspectColumns(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`

	rows, err := a.pool.Query(ctx, query, a.pgSchema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName, dataType, nullable string
		if err := rows.Scan(&tableName, &colName, &dataType, &nullable); err != nil {
			return err
		}
		t, ok := tableMap[tableName]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, schema.Column{
			Name:     colName,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	return rows.Err()
}

func (a *PostgresAdapter) introspectPrimaryKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := a.pool.Query(ctx, query, a.pgSchema)
	if err != nil {
		return err
	}
	defer rows.Close()

	pkCols := make(map[string][]string)
	for rows.Next() {
		var tableName, colName string
		if err := rows.Scan(&tableName, &colName); err != nil {
			return err
		}
		pkCols[tableName] = append(pkCols[tableName], colName)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	applyPrimaryKeys(tableMap, pkCols)
	return nil
}

func (a *PostgresAdapter) introspectForeignKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.ordinal_position`

	rows, err := a.pool.Query(ctx, query, a.pgSchema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var fromTable, fromCol, toTable, toCol string
		if err := rows.Scan(&fromTable, &fromCol, &toTable, &toCol); err != nil {
			return err
		}
		t, ok := tableMap[fromTable]
		if !ok {
			continue
		}
		t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
			FromTable:  fromTable,
			FromColumn: fromCol,
			ToTable:    toTable,
			ToColumn:   toCol,
		})
	}
	return rows.Err()
}

func (a *PostgresAdapter) QueryRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	var results []map[string]interface{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]interface{}, len(descs))
		for i, d := range descs {
			row[d.Name] = vals[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

func (a *PostgresAdapter) QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (a *PostgresAdapter) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (a *PostgresAdapter) WindowClause(start, end *int) string {
	return limitOffsetClause(start, end)
}

func (a *PostgresAdapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// applyPrimaryKeys records single-column primary keys on the table map.
// Composite primary keys are unsupported: the table is left without a usable
// primary key and any operation needing one fails explicitly.
func applyPrimaryKeys(tableMap map[string]*schema.Table, pkCols map[string][]string) {
	for name, cols := range pkCols {
		t, ok := tableMap[name]
		if !ok {
			continue
		}
		if len(cols) == 1 {
			t.PrimaryKey = cols[0]
		}
	}
}

// limitOffsetClause renders a LIMIT/OFFSET window for dialects that support it.
func limitOffsetClause(start, end *int) string {
	var sb strings.Builder
	if end != nil {
		offset := 0
		if start != nil {
			offset = *start
		}
		fmt.Fprintf(&sb, " LIMIT %d", *end-offset)
	}
	if start != nil && *start > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", *start)
	}
	return sb.String()
}
