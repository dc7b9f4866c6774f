package source

import (
	"context"
	"fmt"

	"github.com/veildb/veildb/internal/schema"
)

// MockAdapter is a test double for the Adapter interface.
type MockAdapter struct {
	ConnectErr    error
	Schema        *schema.Schema
	IntrospectErr error
	QueryResult   []map[string]interface{}
	QueryErr      error

	// Captured state
	Connected  bool
	Closed     bool
	LastQuery  string
	LastArgs   []interface{}
	QueryCount int
}

func (m *MockAdapter) Connect(_ context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.Connected = true
	return nil
}

func (m *MockAdapter) Introspect(_ context.Context) (*schema.Schema, error) {
	if m.IntrospectErr != nil {
		return nil, m.IntrospectErr
	}
	if m.Schema == nil {
		return nil, fmt.Errorf("no schema configured")
	}
	return m.Schema, nil
}

func (m *MockAdapter) QueryRows(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.LastQuery = query
	m.LastArgs = args
	m.QueryCount++
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.QueryResult, nil
}

func (m *MockAdapter) QuoteIdent(s string) string {
	return `"` + s + `"`
}

func (m *MockAdapter) Placeholder(n int) string {
	return "?"
}

func (m *MockAdapter) WindowClause(start, end *int) string {
	return limitOffsetClause(start, end)
}

func (m *MockAdapter) Close() error {
	m.Closed = true
	return nil
}
