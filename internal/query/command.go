package query

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind identifies one of the accepted query commands.
type CommandKind int

const (
	CmdAll CommandKind = iota
	CmdFilter
	CmdCount
	CmdProperties
	CmdHelp
)

// Command is a parsed query command: `all()`, `filter(<expr>)`,
// `count(<expr>)`, `properties` or `help`, with an optional trailing
// `[start:end]` slice window.
type Command struct {
	Kind  CommandKind
	Expr  string
	Start *int
	End   *int
}

// InvalidSliceError is returned for a malformed slice suffix.
type InvalidSliceError struct {
	Input  string
	Reason string
}

func (e *InvalidSliceError) Error() string {
	return fmt.Sprintf("invalid slice %q: %s", e.Input, e.Reason)
}

// UnknownCommandError is returned for input that is not a recognized command.
type UnknownCommandError struct {
	Input string
}

func (e *UnknownCommandError) Error() string {
	return "unknown command: " + e.Input
}

// ParseSlice locates the trailing `[start:end]` slice suffix of a command and
// returns the offset where the expression body ends plus the parsed bounds.
// Either side may be blank, meaning unbounded on that side. A single bound
// with no colon, `[n]`, reads as start-only.
func ParseSlice(raw string) (exprEnd int, start, end *int, err error) {
	open := strings.LastIndexByte(raw, '[')
	if open < 0 {
		return len(raw), nil, nil, nil
	}
	if !strings.HasSuffix(raw, "]") {
		return 0, nil, nil, &InvalidSliceError{Input: raw, Reason: "missing closing bracket"}
	}

	body := raw[open+1 : len(raw)-1]
	startStr, endStr, hasColon := strings.Cut(body, ":")
	if !hasColon && startStr == "" {
		return 0, nil, nil, &InvalidSliceError{Input: raw, Reason: "empty slice"}
	}

	if startStr != "" {
		n, convErr := strconv.Atoi(startStr)
		if convErr != nil {
			return 0, nil, nil, &InvalidSliceError{Input: raw, Reason: "non-integer start bound"}
		}
		start = &n
	}
	if endStr != "" {
		n, convErr := strconv.Atoi(endStr)
		if convErr != nil {
			return 0, nil, nil, &InvalidSliceError{Input: raw, Reason: "non-integer end bound"}
		}
		end = &n
	}

	if start != nil && end != nil && *start > *end {
		return 0, nil, nil, &InvalidSliceError{Input: raw, Reason: "start exceeds end"}
	}

	return open, start, end, nil
}

// ParseCommand parses a full command string. Keywords are case-sensitive.
func ParseCommand(q string) (*Command, error) {
	q = strings.TrimSpace(q)

	switch q {
	case "properties":
		return &Command{Kind: CmdProperties}, nil
	case "help":
		return &Command{Kind: CmdHelp}, nil
	}

	switch {
	case strings.HasPrefix(q, "all()"):
		exprEnd, start, end, err := ParseSlice(q)
		if err != nil {
			return nil, err
		}
		if q[:exprEnd] != "all()" {
			return nil, &UnknownCommandError{Input: q}
		}
		return &Command{Kind: CmdAll, Start: start, End: end}, nil

	case strings.HasPrefix(q, "filter("):
		expr, start, end, err := commandBody(q, "filter(")
		if err != nil {
			return nil, err
		}
		return &Command{Kind: CmdFilter, Expr: expr, Start: start, End: end}, nil

	case strings.HasPrefix(q, "count("):
		expr, _, _, err := commandBody(q, "count(")
		if err != nil {
			return nil, err
		}
		// count never applies a window
		return &Command{Kind: CmdCount, Expr: expr}, nil
	}

	return nil, &UnknownCommandError{Input: q}
}

// commandBody extracts the expression between the command's parentheses,
// dropping a trailing slice suffix.
func commandBody(q, prefix string) (expr string, start, end *int, err error) {
	exprEnd, start, end, err := ParseSlice(q)
	if err != nil {
		return "", nil, nil, err
	}
	body := q[:exprEnd]
	if !strings.HasSuffix(body, ")") {
		return "", nil, nil, &MalformedFilterError{Input: q, Reason: "missing closing parenthesis"}
	}
	return body[len(prefix) : len(body)-1], start, end, nil
}
