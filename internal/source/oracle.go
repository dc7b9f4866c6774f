package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Oracle driver
	_ "github.com/sijms/go-ora/v2"

	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/schema"
)

// OracleAdapter implements Adapter for Oracle using go-ora.
type OracleAdapter struct {
	cfg   *config.ConnectionConfig
	owner string
	db    *sql.DB
}

// NewOracle creates a new Oracle adapter.
func NewOracle(cfg *config.ConnectionConfig) *OracleAdapter {
	return &OracleAdapter{cfg: cfg, owner: strings.ToUpper(cfg.Username)}
}

func (a *OracleAdapter) Connect(ctx context.Context) error {
	connStr := fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
		a.cfg.Username, a.cfg.Password, a.cfg.Host, a.cfg.Port, a.cfg.Database)

	db, err := sql.Open("oracle", connStr)
	if err != nil {
		return &ConnectError{BackendType: "oracle", Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &ConnectError{BackendType: "oracle", Err: err}
	}

	a.db = db
	return nil
}

func (a *OracleAdapter) Introspect(ctx context.Context) (*schema.Schema, error) {
	if a.db == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	var tables []schema.Table
	tr, err := a.db.QueryContext(ctx, `
		SELECT table_name FROM all_tables
		WHERE owner = :1
		ORDER BY table_name`, a.owner)
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
		BackendType: "oracle",
		Database:    a.cfg.Database,
		Tables:      tables,
	}, nil
}

func (a *OracleAdapter) introspectTable(ctx context.Context, t *schema.Table) error {
	cr, err := a.db.QueryContext(ctx, `
		SELECT column_name, data_type, nullable
		FROM all_tab_columns
		WHERE owner = :1 AND table_name = :2
		ORDER BY column_id`, a.owner, t.Name)
	if err != nil {
		return err
	}
	for cr.Next() {
		var name, dtype, nullable string
		if err := cr.Scan(&name, &dtype, &nullable); err != nil {
			cr.Close()
			return err
		}
		t.Columns = append(t.Columns, schema.Column{
			Name:     name,
			DataType: dtype,
			Nullable: nullable == "Y",
		})
	}
	cr.Close()
	if err := cr.Err(); err != nil {
		return err
	}

	pkr, err := a.db.QueryContext(ctx, `
		SELECT acc.column_name
		FROM all_constraints ac
		JOIN all_cons_columns acc
		  ON ac.constraint_name = acc.constraint_name AND ac.owner = acc.owner
		WHERE ac.constraint_type = 'P' AND ac.owner = :1 AND ac.table_name = :2
		ORDER BY acc.position`, a.owner, t.Name)
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
		SELECT acc.column_name, rcc.table_name, rcc.column_name
		FROM all_constraints ac
		JOIN all_cons_columns acc
		  ON ac.constraint_name = acc.constraint_name AND ac.owner = acc.owner
		JOIN all_cons_columns rcc
		  ON ac.r_constraint_name = rcc.constraint_name AND ac.r_owner = rcc.owner
		 AND acc.position = rcc.position
		WHERE ac.constraint_type = 'R' AND ac.owner = :1 AND ac.table_name = :2
		ORDER BY acc.position`, a.owner, t.Name)
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

func (a *OracleAdapter) QueryRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	return queryRowsSQL(ctx, a.db, query, args...)
}

func (a *OracleAdapter) QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (a *OracleAdapter) Placeholder(n int) string {
	return fmt.Sprintf(":%d", n)
}

func (a *OracleAdapter) WindowClause(start, end *int) string {
	var sb strings.Builder
	if start != nil && *start > 0 {
		fmt.Fprintf(&sb, " OFFSET %d ROWS", *start)
	}
	if end != nil {
		offset := 0
		if start != nil {
			offset = *start
		}
		fmt.Fprintf(&sb, " FETCH NEXT %d ROWS ONLY", *end-offset)
	}
	return sb.String()
}

func (a *OracleAdapter) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}
