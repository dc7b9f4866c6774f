package source

import (
	"context"
	"fmt"

	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/schema"
)

// Adapter provides read-only access to one backend kind: connect, schema
// introspection and primitive SELECT queries. One implementation per backend.
type Adapter interface {
	// Connect establishes a read-only connection to the source database.
	Connect(ctx context.Context) error

	// Introspect extracts tables, columns, primary keys and foreign keys.
	Introspect(ctx context.Context) (*schema.Schema, error)

	// QueryRows runs a SELECT and returns the result as ordered row maps.
	QueryRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)

	// QuoteIdent quotes an identifier for this backend's dialect.
	QuoteIdent(s string) string

	// Placeholder returns the 1-based bind placeholder for this dialect.
	Placeholder(n int) string

	// WindowClause renders the trailing [start:end) window of a query.
	// Either bound may be nil, meaning unbounded on that side.
	WindowClause(start, end *int) string

	// Close releases the underlying connection or pool.
	Close() error
}

// New creates an Adapter for the given connection configuration.
func New(cfg *config.ConnectionConfig) (Adapter, error) {
	switch cfg.Type {
	case "postgresql":
		return NewPostgres(cfg), nil
	case "mysql":
		return NewMySQL(cfg), nil
	case "sqlite3":
		return NewSQLite(cfg), nil
	case "oracle":
		return NewOracle(cfg), nil
	default:
		return nil, &UnsupportedBackendError{BackendType: cfg.Type}
	}
}

// UnsupportedBackendError is returned when the backend kind is not supported.
type UnsupportedBackendError struct {
	BackendType string
}

func (e *UnsupportedBackendError) Error() string {
	return "unsupported backend type: " + e.BackendType
}

// ConnectError wraps a driver-level connection or authentication failure.
type ConnectError struct {
	BackendType string
	Err         error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.BackendType, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
