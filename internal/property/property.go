// Package property maps logical exposed properties to physical columns,
// possibly across one foreign-key join, or to provider invocations.
package property

import (
	"fmt"
	"strings"
)

// ProviderMarker is the reserved leading character distinguishing a provider
// source from a column reference.
const ProviderMarker = '^'

// AggregateAvg forces the declared output type to FLOAT.
const AggregateAvg = "avg"

// Spec is one exposed logical field as persisted, in order, per connection.
type Spec struct {
	Name        string `yaml:"name" json:"name"`
	Source      string `yaml:"source" json:"source"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Expose      bool   `yaml:"expose" json:"expose"`
	OptionsAuto bool   `yaml:"options_auto,omitempty" json:"options_auto,omitempty"`
	Aggregate   string `yaml:"aggregate,omitempty" json:"aggregate,omitempty"`
	RelFK       string `yaml:"rel_fk,omitempty" json:"rel_fk,omitempty"`
	RelTo       string `yaml:"rel_to,omitempty" json:"rel_to,omitempty"`
}

// IsProvider reports whether the spec's source is a provider invocation.
func (s Spec) IsProvider() bool {
	return strings.HasPrefix(s.Source, string(ProviderMarker))
}

// ParseProviderSource splits a provider source of the form ^name(arg1,arg2)
// into its name and ordered raw arguments.
func ParseProviderSource(source string) (name string, args []string, err error) {
	if !strings.HasPrefix(source, string(ProviderMarker)) {
		return "", nil, fmt.Errorf("not a provider source: %q", source)
	}
	body := source[1:]
	open := strings.IndexByte(body, '(')
	if open < 0 || !strings.HasSuffix(body, ")") {
		return "", nil, fmt.Errorf("malformed provider source: %q", source)
	}
	name = body[:open]
	inner := body[open+1 : len(body)-1]
	if inner == "" {
		return name, nil, nil
	}
	for _, a := range strings.Split(inner, ",") {
		args = append(args, strings.TrimSpace(a))
	}
	return name, args, nil
}

// EncodeProviderSource renders a provider invocation back into its persisted
// form. ParseProviderSource and EncodeProviderSource round-trip exactly.
func EncodeProviderSource(name string, args []string) string {
	return fmt.Sprintf("%c%s(%s)", ProviderMarker, name, strings.Join(args, ","))
}

// SplitColumnRef splits a "table.column" reference.
func SplitColumnRef(ref string) (table, column string, err error) {
	parts := strings.SplitN(ref, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed column reference: %q", ref)
	}
	return parts[0], parts[1], nil
}

// UnknownProviderError is returned when a spec names a provider that is not
// in the registry.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// ArgumentMismatchError is returned when a provider invocation's argument
// list does not match the provider's declared argument spec.
type ArgumentMismatchError struct {
	Provider string
	Want     int
	Got      int
}

func (e *ArgumentMismatchError) Error() string {
	return fmt.Sprintf("provider %q expects %d argument(s), %d were supplied", e.Provider, e.Want, e.Got)
}

// DuplicateNameError is returned when two specs share a name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate property name %q", e.Name)
}
