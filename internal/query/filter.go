// Package query compiles the textual command language into backend queries
// and executes them: a pushed-down column predicate plus an in-process
// post-filter over provider-backed properties, with deterministic pagination.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a comparison operator of the filter grammar.
type Op string

const (
	OpEq Op = "="
	OpGt Op = ">"
	OpLt Op = "<"
	OpGe Op = ">="
	OpLe Op = "<="
)

// Connectors of the filter grammar.
const (
	ConnAnd = "and"
	ConnOr  = "or"
)

// Comparison is one `property op literal` term.
type Comparison struct {
	Property string
	Op       Op
	Literal  string
}

// Expr is a parsed filter expression. The grammar is deliberately flat:
// comparisons combine strictly left-to-right with no parentheses and no
// operator precedence. Connectors[i] joins Comparisons[i] and
// Comparisons[i+1].
type Expr struct {
	Comparisons []Comparison
	Connectors  []string
}

// Empty reports whether the expression has no comparisons.
func (e *Expr) Empty() bool {
	return len(e.Comparisons) == 0
}

// MalformedFilterError is returned for input the grammar does not accept.
type MalformedFilterError struct {
	Input  string
	Reason string
}

func (e *MalformedFilterError) Error() string {
	return fmt.Sprintf("malformed filter %q: %s", e.Input, e.Reason)
}

// ParseExpr parses `COMPARISON (('and'|'or') COMPARISON)*`. An empty or
// blank input yields the empty expression, which matches every row.
func ParseExpr(raw string) (*Expr, error) {
	raw = strings.TrimSpace(raw)
	e := &Expr{}
	if raw == "" {
		return e, nil
	}

	p := &exprParser{input: raw}
	for {
		cmp, err := p.comparison()
		if err != nil {
			return nil, err
		}
		e.Comparisons = append(e.Comparisons, cmp)

		conn, ok := p.connector()
		if !ok {
			break
		}
		e.Connectors = append(e.Connectors, conn)
	}
	if !p.done() {
		return nil, &MalformedFilterError{Input: raw, Reason: "trailing input at " + p.rest()}
	}
	return e, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) done() bool {
	p.skipSpace()
	return p.pos >= len(p.input)
}

func (p *exprParser) rest() string {
	return strconv.Quote(p.input[p.pos:])
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

// comparison parses `PROPERTY OP LITERAL`.
func (p *exprParser) comparison() (Comparison, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && !isOpChar(p.input[p.pos]) && p.input[p.pos] != ' ' {
		p.pos++
	}
	prop := strings.TrimSpace(p.input[start:p.pos])
	if prop == "" {
		return Comparison{}, &MalformedFilterError{Input: p.input, Reason: "expected property name at " + p.rest()}
	}

	p.skipSpace()
	op, err := p.operator()
	if err != nil {
		return Comparison{}, err
	}

	p.skipSpace()
	start = p.pos
	for p.pos < len(p.input) && p.input[p.pos] != ' ' {
		p.pos++
	}
	lit := p.input[start:p.pos]
	if lit == "" {
		return Comparison{}, &MalformedFilterError{Input: p.input, Reason: "expected literal after operator"}
	}

	return Comparison{Property: prop, Op: op, Literal: lit}, nil
}

func (p *exprParser) operator() (Op, error) {
	if p.pos >= len(p.input) || !isOpChar(p.input[p.pos]) {
		return "", &MalformedFilterError{Input: p.input, Reason: "expected operator at " + p.rest()}
	}
	start := p.pos
	for p.pos < len(p.input) && isOpChar(p.input[p.pos]) {
		p.pos++
	}
	switch op := Op(p.input[start:p.pos]); op {
	case OpEq, OpGt, OpLt, OpGe, OpLe:
		return op, nil
	default:
		return "", &MalformedFilterError{Input: p.input, Reason: fmt.Sprintf("unknown operator %q", op)}
	}
}

// connector consumes `and` or `or`, reporting false at end of input.
func (p *exprParser) connector() (string, bool) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return "", false
	}
	for _, conn := range []string{ConnAnd, ConnOr} {
		if strings.HasPrefix(p.input[p.pos:], conn+" ") {
			p.pos += len(conn) + 1
			return conn, true
		}
	}
	return "", false
}

func isOpChar(c byte) bool {
	return c == '=' || c == '<' || c == '>'
}
