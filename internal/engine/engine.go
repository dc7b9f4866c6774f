// Package engine wires the stores, adapters and query pipeline together and
// exposes the operations the CLI, the console and the HTTP API all share.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veildb/veildb/internal/access"
	"github.com/veildb/veildb/internal/cohort"
	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/property"
	"github.com/veildb/veildb/internal/provider"
	"github.com/veildb/veildb/internal/query"
	"github.com/veildb/veildb/internal/schema"
	"github.com/veildb/veildb/internal/source"
	"github.com/veildb/veildb/internal/state"
)

// Engine is the application core. Connections, properties and keys live in
// the state store; schema snapshots are cached per connection; adapters are
// acquired per request and released deterministically.
type Engine struct {
	cfg       *config.Config
	store     *state.Store
	providers *provider.Registry
	gate      *access.Gate
	cohorts   *cohort.Service
	logger    *slog.Logger

	mu       sync.Mutex
	catalogs map[string]*schema.Catalog
}

// New assembles an engine from loaded configuration and state.
func New(cfg *config.Config, store *state.Store, cohorts *cohort.Service, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		providers: provider.NewRegistry(time.Now),
		gate:      access.NewGate(store),
		cohorts:   cohorts,
		logger:    logger,
		catalogs:  make(map[string]*schema.Catalog),
	}
}

// Store exposes the underlying state store.
func (e *Engine) Store() *state.Store { return e.store }

// Providers exposes the provider registry.
func (e *Engine) Providers() *provider.Registry { return e.providers }

// Cohorts exposes the cohort service, nil when cohorts are not configured.
func (e *Engine) Cohorts() *cohort.Service { return e.cohorts }

// Config exposes the loaded configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) catalog(connectionID string) *schema.Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.catalogs[connectionID]
	if !ok {
		c = schema.NewCatalog()
		e.catalogs[connectionID] = c
	}
	return c
}

// AddConnection validates a connection configuration by connecting to the
// backend, then persists it. The connection starts active.
func (e *Engine) AddConnection(ctx context.Context, cfg config.ConnectionConfig) (*state.Connection, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Active = true

	adapter, err := source.New(&cfg)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, err
	}
	defer adapter.Close()

	conn := &state.Connection{Config: cfg}
	if err := e.store.AddConnection(conn); err != nil {
		return nil, err
	}
	e.logger.Info("connection added", "id", cfg.ID, "type", cfg.Type, "name", cfg.Name)
	return conn, nil
}

// SetActive toggles a connection's activation flag and drops its cached
// schema when deactivating.
func (e *Engine) SetActive(connectionID string, active bool) error {
	if err := e.store.SetActive(connectionID, active); err != nil {
		return err
	}
	if !active {
		e.catalog(connectionID).Invalidate()
	}
	e.logger.Info("connection activation changed", "id", connectionID, "active", active)
	return nil
}

// Introspect connects to the backend, extracts its schema and replaces the
// cached snapshot.
func (e *Engine) Introspect(ctx context.Context, connectionID string) (*schema.Schema, error) {
	conn, err := e.store.Connection(connectionID)
	if err != nil {
		return nil, err
	}

	adapter, err := source.New(&conn.Config)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, err
	}
	defer adapter.Close()

	s, err := adapter.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", conn.Config.Name, err)
	}

	e.catalog(connectionID).Replace(s)
	e.logger.Info("schema introspected", "connection", connectionID, "tables", len(s.Tables))
	return s, nil
}

// Schema returns the cached snapshot, introspecting on first use.
func (e *Engine) Schema(ctx context.Context, connectionID string) (*schema.Schema, error) {
	cat := e.catalog(connectionID)
	if s, err := cat.Snapshot(); err == nil {
		return s, nil
	}
	return e.Introspect(ctx, connectionID)
}

// Suggestions are the starting point for configuring a connection's exposed
// view: candidate base tables and a default property list for one of them.
type Suggestions struct {
	Tables     []string        `json:"tables"`
	UsersTable string          `json:"users_table,omitempty"`
	Properties []property.Spec `json:"properties,omitempty"`
}

// Suggest proposes base table candidates and default properties for the
// best candidate.
func (e *Engine) Suggest(ctx context.Context, connectionID string) (*Suggestions, error) {
	s, err := e.Schema(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	out := &Suggestions{Tables: property.SuggestUsersTable(s.TableNames())}
	if len(out.Tables) == 0 {
		return out, nil
	}

	out.UsersTable = out.Tables[0]
	t, err := s.Table(out.UsersTable)
	if err != nil {
		return nil, err
	}
	out.Properties = property.SuggestDefaults(t)
	return out, nil
}

// SetUsersTable records the chosen base table after checking it exists and
// has a usable primary key.
func (e *Engine) SetUsersTable(ctx context.Context, connectionID, table string) error {
	s, err := e.Schema(ctx, connectionID)
	if err != nil {
		return err
	}
	pk, err := s.PrimaryKeyOf(table)
	if err != nil {
		return err
	}
	return e.store.SetUsersTable(connectionID, table, pk)
}

// SaveProperties resolves the specs against the current schema before
// persisting, so a bad list is rejected rather than stored.
func (e *Engine) SaveProperties(ctx context.Context, connectionID string, specs []property.Spec) error {
	conn, err := e.store.Connection(connectionID)
	if err != nil {
		return err
	}
	if conn.UsersTable == "" {
		return fmt.Errorf("connection %q has no users table configured", connectionID)
	}

	s, err := e.Schema(ctx, connectionID)
	if err != nil {
		return err
	}
	if _, err := property.Resolve(specs, s, conn.UsersTable, e.providers); err != nil {
		return err
	}
	return e.store.SetProperties(connectionID, specs)
}

// Session is a per-request query manager with an owned adapter connection.
// Callers must Close it when done.
type Session struct {
	Manager *query.Manager
	adapter source.Adapter
}

// Close releases the session's backend connection.
func (s *Session) Close() error { return s.adapter.Close() }

// Manager opens a backend connection and binds a query manager to the
// connection's configured view.
func (e *Engine) Manager(ctx context.Context, connectionID string) (*Session, error) {
	conn, err := e.store.Connection(connectionID)
	if err != nil {
		return nil, err
	}
	if conn.UsersTable == "" {
		return nil, fmt.Errorf("connection %q has no users table configured", connectionID)
	}
	if len(conn.Properties) == 0 {
		return nil, fmt.Errorf("connection %q has no properties configured", connectionID)
	}

	s, err := e.Schema(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	props, err := property.Resolve(conn.Properties, s, conn.UsersTable, e.providers)
	if err != nil {
		return nil, err
	}

	adapter, err := source.New(&conn.Config)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, err
	}

	mgr, err := query.NewManager(adapter, s, props, conn.UsersTable, e.logger)
	if err != nil {
		adapter.Close()
		return nil, err
	}
	return &Session{Manager: mgr, adapter: adapter}, nil
}

// Validate checks an access key and returns its connection-scoped grant.
func (e *Engine) Validate(token string) (*access.Grant, error) {
	return e.gate.Validate(token)
}

// KeyedSession validates a token and opens a session on its connection.
func (e *Engine) KeyedSession(ctx context.Context, token string) (*Session, error) {
	grant, err := e.gate.Validate(token)
	if err != nil {
		return nil, err
	}
	return e.Manager(ctx, grant.ConnectionID)
}

// Result is the outcome of one command: rows, a count, a property listing or
// help text, depending on the command kind.
type Result struct {
	Kind    query.CommandKind  `json:"-"`
	Rows    []query.Row        `json:"rows,omitempty"`
	Count   *int               `json:"count,omitempty"`
	Filters []query.FilterInfo `json:"filters,omitempty"`
	Help    string             `json:"help,omitempty"`
}

// Execute parses and runs one command against an open session.
func (e *Engine) Execute(ctx context.Context, sess *Session, raw string) (*Result, error) {
	cmd, err := query.ParseCommand(raw)
	if err != nil {
		return nil, err
	}

	m := sess.Manager
	switch cmd.Kind {
	case query.CmdAll:
		rows, err := m.All(ctx, cmd.Start, cmd.End)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: cmd.Kind, Rows: rows}, nil
	case query.CmdFilter:
		rows, err := m.Filter(ctx, cmd.Expr, cmd.Start, cmd.End)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: cmd.Kind, Rows: rows}, nil
	case query.CmdCount:
		n, err := m.Count(ctx, cmd.Expr)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: cmd.Kind, Count: &n}, nil
	case query.CmdProperties:
		filters, err := m.ListFilters(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: cmd.Kind, Filters: filters}, nil
	case query.CmdHelp:
		text, err := m.Help(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: cmd.Kind, Help: text}, nil
	default:
		return nil, &query.UnknownCommandError{Input: raw}
	}
}

// RefreshCohort re-runs a cohort's query on its owning connection and merges
// the membership.
func (e *Engine) RefreshCohort(ctx context.Context, id string) (*cohort.Cohort, error) {
	if e.cohorts == nil {
		return nil, fmt.Errorf("cohorts are not configured")
	}
	c, err := e.cohorts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sess, err := e.Manager(ctx, c.ConnectionID)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return e.cohorts.Refresh(ctx, id, func(ctx context.Context, expr string) ([]query.Row, error) {
		return sess.Manager.Filter(ctx, expr, nil, nil, query.WithTrueID())
	})
}
