package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veildb/veildb/internal/property"
	"github.com/veildb/veildb/internal/schema"
	"github.com/veildb/veildb/internal/source"
)

// IDKey is the opaque identity key attached to rows fetched with true ids.
const IDKey = "__id__"

// Row is one projected result row: property name -> anonymized value.
type Row = map[string]interface{}

// Manager executes the command language against one connection: it owns the
// resolved property list, builds the base+join query, pushes what it can into
// the backend and evaluates the rest in-process. All per-request state is
// request-local; the schema snapshot and property list it holds are treated
// as immutable.
type Manager struct {
	adapter   source.Adapter
	schema    *schema.Schema
	props     []*property.Resolved
	baseTable string
	basePK    string
	logger    *slog.Logger
}

// NewManager binds a manager to an adapter, schema snapshot and resolved
// property list.
func NewManager(adapter source.Adapter, s *schema.Schema, props []*property.Resolved, baseTable string, logger *slog.Logger) (*Manager, error) {
	pk, err := s.PrimaryKeyOf(baseTable)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		adapter:   adapter,
		schema:    s,
		props:     props,
		baseTable: baseTable,
		basePK:    pk,
		logger:    logger,
	}, nil
}

// Properties returns the resolved property list the manager was built with.
func (m *Manager) Properties() []*property.Resolved {
	return m.props
}

// All fetches every record, applying the [start:end) window to the base
// query, and projects the exposed properties.
func (m *Manager) All(ctx context.Context, start, end *int) ([]Row, error) {
	q, args := m.buildQuery(nil, nil)
	q += m.adapter.WindowClause(start, end)

	raw, err := m.adapter.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return m.project(raw, false)
}

type filterOpts struct {
	trueID bool
}

// FilterOption configures a Filter call.
type FilterOption func(*filterOpts)

// WithTrueID includes the base table's primary key under IDKey in every
// projected row.
func WithTrueID() FilterOption {
	return func(o *filterOpts) { o.trueID = true }
}

// Filter compiles the expression, pushes the column predicate into the
// backend, applies the provider post-filter in-process, and only then windows
// the filtered set: pagination is over filtered rows, never the raw fetch.
func (m *Manager) Filter(ctx context.Context, raw string, start, end *int, opts ...FilterOption) ([]Row, error) {
	var o filterOpts
	for _, opt := range opts {
		opt(&o)
	}

	filtered, err := m.fetchFiltered(ctx, raw)
	if err != nil {
		return nil, err
	}

	windowed := sliceWindow(filtered, start, end)
	return m.project(windowed, o.trueID)
}

// Count runs the same compile/fetch/post-filter pipeline as Filter but
// returns only the cardinality. It never applies a window.
func (m *Manager) Count(ctx context.Context, raw string) (int, error) {
	filtered, err := m.fetchFiltered(ctx, raw)
	if err != nil {
		return 0, err
	}
	return len(filtered), nil
}

// fetchFiltered runs the hybrid pipeline up to and including the post-filter.
func (m *Manager) fetchFiltered(ctx context.Context, raw string) ([]Row, error) {
	compiled, err := Compile(raw, m.props)
	if err != nil {
		return nil, err
	}

	pushed, post := compiled.Split()
	conns := pushedConnectors(compiled, pushed)

	q, args := m.buildQuery(pushed, conns)
	rows, err := m.adapter.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	if post.Empty() {
		return rows, nil
	}

	filtered := rows[:0:0]
	for _, row := range rows {
		ok, err := post.Eval(m.rowLookup(row))
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// pushedConnectors picks the connectors joining the pushed comparisons: the
// original sequence when the whole expression was pushed, plain conjunction
// for a pure-and subset.
func pushedConnectors(c *Compiled, pushed []BoundComparison) []string {
	if len(pushed) == 0 {
		return nil
	}
	if len(pushed) == len(c.Comparisons) {
		return c.Connectors
	}
	conns := make([]string, len(pushed)-1)
	for i := range conns {
		conns[i] = ConnAnd
	}
	return conns
}

// buildQuery renders the base+join SELECT with the pushed predicate.
func (m *Manager) buildQuery(pushed []BoundComparison, conns []string) (string, []interface{}) {
	quote := m.adapter.QuoteIdent
	qualify := func(ref property.ColumnRef) string {
		return quote(ref.Table) + "." + quote(ref.Column)
	}

	basePK := quote(m.baseTable) + "." + quote(m.basePK)
	selects := []string{basePK + " AS " + quote(IDKey)}
	groupBy := []string{basePK}
	hasAggregate := false

	for _, p := range m.props {
		switch p.Kind {
		case property.KindColumn:
			selects = append(selects, qualify(p.Column)+" AS "+quote(p.Name()))
			groupBy = append(groupBy, qualify(p.Column))
		case property.KindAggregate:
			hasAggregate = true
			fn := strings.ToUpper(p.Spec.Aggregate)
			selects = append(selects, fmt.Sprintf("%s(%s) AS %s", fn, qualify(p.Column), quote(p.Name())))
		case property.KindProvider:
			for i, arg := range p.Args {
				alias := argAlias(p.Name(), i)
				selects = append(selects, qualify(arg)+" AS "+quote(alias))
				groupBy = append(groupBy, qualify(arg))
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quote(m.baseTable))

	for _, join := range m.joins() {
		fmt.Fprintf(&sb, " LEFT JOIN %s ON %s.%s = %s.%s",
			quote(join.Table),
			quote(join.Table), quote(join.JoinFK),
			quote(join.RelTo), quote(join.JoinTo))
	}

	var args []interface{}
	if len(pushed) > 0 {
		sb.WriteString(" WHERE ")
		for i, b := range pushed {
			if i > 0 {
				sb.WriteString(" " + strings.ToUpper(conns[i-1]) + " ")
			}
			args = append(args, b.Value)
			fmt.Fprintf(&sb, "%s %s %s", qualify(b.Prop.Column), b.Op, m.adapter.Placeholder(len(args)))
		}
	}

	if hasAggregate {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupBy, ", "))
	}

	sb.WriteString(" ORDER BY " + basePK)
	return sb.String(), args
}

// joins returns the distinct related tables needed by the property list.
func (m *Manager) joins() []property.ColumnRef {
	seen := make(map[string]bool)
	var joins []property.ColumnRef

	add := func(ref property.ColumnRef) {
		if !ref.Joined() || seen[ref.Table] {
			return
		}
		seen[ref.Table] = true
		joins = append(joins, ref)
	}

	for _, p := range m.props {
		add(p.Column)
		for _, arg := range p.Args {
			add(arg)
		}
	}
	return joins
}

func argAlias(prop string, i int) string {
	return fmt.Sprintf("__arg_%s_%d", prop, i)
}

// rowLookup supplies property values for post-filter evaluation over one
// fetched row.
func (m *Manager) rowLookup(row Row) func(p *property.Resolved) (interface{}, error) {
	return func(p *property.Resolved) (interface{}, error) {
		if p.Kind != property.KindProvider {
			return row[p.Name()], nil
		}
		return m.computeProvider(p, row)
	}
}

func (m *Manager) computeProvider(p *property.Resolved, row Row) (interface{}, error) {
	vals := make([]interface{}, len(p.Args))
	for i := range p.Args {
		vals[i] = row[argAlias(p.Name(), i)]
	}
	return p.Provider.Compute(vals)
}

// project applies providers to the windowed rows and keeps only exposed
// properties.
func (m *Manager) project(raw []Row, trueID bool) ([]Row, error) {
	out := make([]Row, 0, len(raw))
	for _, row := range raw {
		projected := make(Row, len(m.props)+1)
		if trueID {
			projected[IDKey] = row[IDKey]
		}
		for _, p := range m.props {
			if !p.Spec.Expose {
				continue
			}
			if p.Kind == property.KindProvider {
				v, err := m.computeProvider(p, row)
				if err != nil {
					return nil, fmt.Errorf("provider %s for %q: %w", p.Provider.Name, p.Name(), err)
				}
				projected[p.Name()] = v
				continue
			}
			projected[p.Name()] = row[p.Name()]
		}
		out = append(out, projected)
	}
	return out, nil
}

// sliceWindow applies the 0-based, end-exclusive [start:end) window; bounds
// beyond the set's size clamp rather than error.
func sliceWindow(rows []Row, start, end *int) []Row {
	lo := 0
	if start != nil {
		lo = *start
	}
	hi := len(rows)
	if end != nil && *end < hi {
		hi = *end
	}
	if lo > len(rows) {
		lo = len(rows)
	}
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	return rows[lo:hi]
}

// FilterInfo describes one resolvable property for the `properties` command.
type FilterInfo struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	HasOptions bool     `json:"has_options"`
	Options    []string `json:"options,omitempty"`
}

// ListFilters describes every resolvable property: its name, declared type
// and, for enumerable properties, the option list. Columns flagged
// options_auto enumerate their distinct stored values.
func (m *Manager) ListFilters(ctx context.Context) ([]FilterInfo, error) {
	infos := make([]FilterInfo, 0, len(m.props))
	for _, p := range m.props {
		info := FilterInfo{Name: p.Name(), Type: p.Type()}

		switch {
		case p.Kind == property.KindProvider && p.Provider.HasOptions():
			info.HasOptions = true
			info.Options = p.Provider.Options
		case p.Spec.OptionsAuto && p.Kind == property.KindColumn:
			opts, err := m.distinctValues(ctx, p.Column)
			if err != nil {
				return nil, fmt.Errorf("options for %q: %w", p.Name(), err)
			}
			info.HasOptions = true
			info.Options = opts
		}
		infos = append(infos, info)
	}
	return infos, nil
}

const maxAutoOptions = 100

func (m *Manager) distinctValues(ctx context.Context, ref property.ColumnRef) ([]string, error) {
	quote := m.adapter.QuoteIdent
	col := quote(ref.Table) + "." + quote(ref.Column)
	end := maxAutoOptions
	q := fmt.Sprintf("SELECT DISTINCT %s AS %s FROM %s ORDER BY %s",
		col, quote("value"), quote(ref.Table), col) + m.adapter.WindowClause(nil, &end)

	rows, err := m.adapter.QueryRows(ctx, q)
	if err != nil {
		return nil, err
	}

	opts := make([]string, 0, len(rows))
	for _, row := range rows {
		v := row["value"]
		if v == nil {
			continue
		}
		opts = append(opts, fmt.Sprintf("%v", v))
	}
	return opts, nil
}

// Help renders the human-readable command reference, including the available
// properties and their options.
func (m *Manager) Help(ctx context.Context) (string, error) {
	var sb strings.Builder
	sb.WriteString(`
Commands:
    - all(): Fetch all records
    - filter(some_filter): Fetch records based on ` + "`some_filter`" + `
    - count(some_filter): Count records based on ` + "`some_filter`" + `
    - properties: Show all acceptable attributes

Examples of filter usage:
    - filter(age>30)
    - filter(age<20 and run_distance>500)

Available data properties:
`)

	infos, err := m.ListFilters(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range infos {
		sb.WriteString("    " + f.Name)
		if f.HasOptions {
			sb.WriteString(" / options: " + strings.Join(f.Options, ","))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
