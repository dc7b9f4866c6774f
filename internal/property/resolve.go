package property

import (
	"fmt"
	"strings"

	"github.com/veildb/veildb/internal/provider"
	"github.com/veildb/veildb/internal/schema"
)

// Kind classifies a resolved property.
type Kind int

const (
	KindColumn Kind = iota
	KindProvider
	KindAggregate
)

// ColumnRef is a resolved physical column, possibly joined onto the base
// table across one direct foreign-key edge.
type ColumnRef struct {
	Table  string
	Column string
	// JoinFK/JoinTo are set when Table is not the base table: JoinFK is the
	// column on Table referencing the relation target, JoinTo the target's
	// primary key.
	JoinFK string
	JoinTo string
	RelTo  string // relation target table, empty when unjoined
}

// Joined reports whether the column lives on a related table.
func (c ColumnRef) Joined() bool {
	return c.JoinFK != ""
}

// Resolved is one property spec bound against the schema snapshot.
type Resolved struct {
	Spec Spec
	Kind Kind

	// Column and aggregate kinds
	Column ColumnRef

	// Provider kind
	Provider *provider.Provider
	Args     []ColumnRef
	RawArgs  []string
}

// Name returns the exposed property name.
func (r *Resolved) Name() string {
	return r.Spec.Name
}

// Type returns the declared output type.
func (r *Resolved) Type() string {
	return r.Spec.Type
}

// EncodeSource serializes the resolved spec's source back to its persisted
// form; provider specs round-trip through parse -> resolve -> encode exactly.
func (r *Resolved) EncodeSource() string {
	if r.Kind == KindProvider {
		return EncodeProviderSource(r.Provider.Name, r.RawArgs)
	}
	return r.Spec.Source
}

// Resolve binds an ordered spec list against the schema snapshot. Column
// specs must exist on the base table or on a table one direct foreign-key
// edge away; provider specs must match a registered provider's argument spec.
// Resolution errors are raised here, at configuration time, before anything
// is persisted.
func Resolve(specs []Spec, s *schema.Schema, baseTable string, reg *provider.Registry) ([]*Resolved, error) {
	seen := make(map[string]bool, len(specs))
	resolved := make([]*Resolved, 0, len(specs))

	for i := range specs {
		spec := specs[i]
		if spec.Name == "" {
			return nil, fmt.Errorf("property %d has no name", i)
		}
		if seen[spec.Name] {
			return nil, &DuplicateNameError{Name: spec.Name}
		}
		seen[spec.Name] = true

		r, err := resolveOne(spec, s, baseTable, reg)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", spec.Name, err)
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}

func resolveOne(spec Spec, s *schema.Schema, baseTable string, reg *provider.Registry) (*Resolved, error) {
	if spec.IsProvider() {
		return resolveProvider(spec, s, baseTable, reg)
	}

	ref, col, err := resolveColumnRef(spec.Source, spec.RelTo, s, baseTable)
	if err != nil {
		return nil, err
	}

	r := &Resolved{Spec: spec, Kind: KindColumn, Column: ref}
	if spec.Aggregate != "" {
		r.Kind = KindAggregate
		if spec.Aggregate == AggregateAvg {
			// averages are floating-point regardless of the column type
			r.Spec.Type = "FLOAT"
		}
	}
	if r.Spec.Type == "" {
		r.Spec.Type = col.DataType
	}
	// persist the join so queries don't re-derive it
	r.Spec.RelFK = ref.JoinFK
	r.Spec.RelTo = ref.JoinTo
	return r, nil
}

func resolveProvider(spec Spec, s *schema.Schema, baseTable string, reg *provider.Registry) (*Resolved, error) {
	name, rawArgs, err := ParseProviderSource(spec.Source)
	if err != nil {
		return nil, err
	}

	p, ok := reg.Get(name)
	if !ok {
		return nil, &UnknownProviderError{Name: name}
	}
	if len(rawArgs) != len(p.Args) {
		return nil, &ArgumentMismatchError{Provider: name, Want: len(p.Args), Got: len(rawArgs)}
	}

	args := make([]ColumnRef, len(rawArgs))
	for i, raw := range rawArgs {
		ref, _, err := resolveColumnRef(raw, "", s, baseTable)
		if err != nil {
			return nil, fmt.Errorf("argument %q of %s: %w", p.Args[i].Name, name, err)
		}
		args[i] = ref
	}

	r := &Resolved{Spec: spec, Kind: KindProvider, Provider: p, Args: args, RawArgs: rawArgs}
	if r.Spec.Type == "" {
		r.Spec.Type = p.ReturnType
	}
	return r, nil
}

// resolveColumnRef verifies a "table.column" reference and, when the table is
// not the base table, resolves the join column pair across the single direct
// foreign-key edge to the relation target (explicit relTo, or the base table
// by default).
func resolveColumnRef(ref, relTo string, s *schema.Schema, baseTable string) (ColumnRef, *schema.Column, error) {
	table, column, err := SplitColumnRef(ref)
	if err != nil {
		return ColumnRef{}, nil, err
	}

	col, err := s.Column(table, column)
	if err != nil {
		return ColumnRef{}, nil, err
	}

	out := ColumnRef{Table: table, Column: column}
	if !strings.EqualFold(table, baseTable) {
		target := relTo
		if target == "" {
			target = baseTable
		}
		fk, err := s.ForeignKeyBetween(table, target)
		if err != nil {
			return ColumnRef{}, nil, err
		}
		pk, err := s.PrimaryKeyOf(target)
		if err != nil {
			return ColumnRef{}, nil, err
		}
		out.JoinFK = fk
		out.JoinTo = pk
		out.RelTo = target
	}
	return out, col, nil
}
