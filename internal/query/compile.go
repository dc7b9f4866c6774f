package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/veildb/veildb/internal/property"
)

// UnknownPropertyError is returned when a filter names a property absent from
// the connection's resolved property list.
type UnknownPropertyError struct {
	Name string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("unknown filter property %q", e.Name)
}

// BoundComparison is a comparison bound to a resolved property, with the
// literal coerced to the property's declared type.
type BoundComparison struct {
	Prop  *property.Resolved
	Op    Op
	Value interface{}
}

// Pushable reports whether the comparison can run inside the backend query.
// Provider-backed properties have no stored column to compare against, and
// aggregate properties only exist after grouping, so both are evaluated
// in-process after fetch.
func (b BoundComparison) Pushable() bool {
	return b.Prop.Kind == property.KindColumn
}

// Compiled is a bound filter expression split into a backend-pushable part
// and an in-process remainder.
type Compiled struct {
	Comparisons []BoundComparison
	Connectors  []string
}

// Empty reports whether the compiled expression has no comparisons.
func (c *Compiled) Empty() bool {
	return len(c.Comparisons) == 0
}

func (c *Compiled) allPushable() bool {
	for _, b := range c.Comparisons {
		if !b.Pushable() {
			return false
		}
	}
	return true
}

func (c *Compiled) pureAnd() bool {
	for _, conn := range c.Connectors {
		if conn != ConnAnd {
			return false
		}
	}
	return true
}

// Split separates the expression into the comparisons pushed into the
// backend and the ones evaluated in-process. A pure-`and` expression splits
// comparison-by-comparison; once an `or` is involved, pushing a subset could
// drop rows the other branch would keep, so the split is all-or-nothing.
func (c *Compiled) Split() (pushed []BoundComparison, post *Compiled) {
	if c.Empty() {
		return nil, &Compiled{}
	}

	if c.pureAnd() {
		post = &Compiled{}
		for _, b := range c.Comparisons {
			if b.Pushable() {
				pushed = append(pushed, b)
			} else {
				if len(post.Comparisons) > 0 {
					post.Connectors = append(post.Connectors, ConnAnd)
				}
				post.Comparisons = append(post.Comparisons, b)
			}
		}
		return pushed, post
	}

	if c.allPushable() {
		return c.Comparisons, &Compiled{}
	}
	return nil, c
}

// PushedAll reports whether pushing left no in-process work.
func (c *Compiled) PushedAll() bool {
	pushed, post := c.Split()
	return len(pushed) == len(c.Comparisons) && post.Empty()
}

// Compile parses and binds a filter expression against the resolved property
// list, coercing every literal to its property's declared type.
func Compile(raw string, props []*property.Resolved) (*Compiled, error) {
	expr, err := ParseExpr(raw)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*property.Resolved, len(props))
	for _, p := range props {
		byName[p.Name()] = p
	}

	c := &Compiled{Connectors: expr.Connectors}
	for _, cmp := range expr.Comparisons {
		p, ok := byName[cmp.Property]
		if !ok {
			return nil, &UnknownPropertyError{Name: cmp.Property}
		}
		val, err := coerceLiteral(cmp.Literal, p.Type())
		if err != nil {
			return nil, fmt.Errorf("literal for %q: %w", cmp.Property, err)
		}
		c.Comparisons = append(c.Comparisons, BoundComparison{Prop: p, Op: cmp.Op, Value: val})
	}
	return c, nil
}

// coerceLiteral converts a raw literal to the Go value matching a declared
// SQL-ish type.
func coerceLiteral(lit, declaredType string) (interface{}, error) {
	t := strings.ToUpper(declaredType)
	switch {
	case strings.HasPrefix(t, "INT") || strings.HasPrefix(t, "BIGINT") ||
		strings.HasPrefix(t, "SMALLINT") || strings.HasPrefix(t, "NUMBER") ||
		strings.HasPrefix(t, "SERIAL"):
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", lit)
		}
		return n, nil
	case strings.HasPrefix(t, "FLOAT") || strings.HasPrefix(t, "DOUBLE") ||
		strings.HasPrefix(t, "REAL") || strings.HasPrefix(t, "NUMERIC") ||
		strings.HasPrefix(t, "DECIMAL"):
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", lit)
		}
		return f, nil
	case strings.HasPrefix(t, "BOOL"):
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", lit)
		}
		return b, nil
	default:
		return strings.Trim(lit, `'"`), nil
	}
}

// Eval evaluates the compiled expression against a fetched row, strictly
// left-to-right. The lookup callback supplies the current value of a
// property for the row (column value or computed provider value).
func (c *Compiled) Eval(lookup func(p *property.Resolved) (interface{}, error)) (bool, error) {
	if c.Empty() {
		return true, nil
	}

	acc, err := evalComparison(c.Comparisons[0], lookup)
	if err != nil {
		return false, err
	}
	for i, conn := range c.Connectors {
		next, err := evalComparison(c.Comparisons[i+1], lookup)
		if err != nil {
			return false, err
		}
		if conn == ConnOr {
			acc = acc || next
		} else {
			acc = acc && next
		}
	}
	return acc, nil
}

func evalComparison(b BoundComparison, lookup func(p *property.Resolved) (interface{}, error)) (bool, error) {
	val, err := lookup(b.Prop)
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, nil
	}

	cmp, err := compareValues(val, b.Value)
	if err != nil {
		return false, fmt.Errorf("comparing %q: %w", b.Prop.Name(), err)
	}

	switch b.Op {
	case OpEq:
		return cmp == 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpGe:
		return cmp >= 0, nil
	case OpLe:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", b.Op)
	}
}

// compareValues orders two scalar values: numerically when both sides are
// numeric, as strings otherwise.
func compareValues(a, b interface{}) (int, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	return strings.Compare(as, bs), nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
