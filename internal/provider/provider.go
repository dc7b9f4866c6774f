// Package provider holds the registry of derivation functions. Providers are
// pure, post-fetch transforms: they run on already-materialized row values and
// are never pushed into the backend query.
package provider

import (
	"fmt"
	"time"
)

// ArgSpec describes one declared provider argument. Arguments are supplied as
// column references and resolved against the connection's schema; the named
// column's row value is what Compute receives.
type ArgSpec struct {
	Name string
}

// Provider is one named derivation function with a declared argument spec and
// return type. Compute receives the row values of the bound argument columns,
// in declaration order.
type Provider struct {
	Name       string
	Args       []ArgSpec
	ReturnType string
	Options    []string // enumerable return values, nil when open-ended
	Compute    func(vals []interface{}) (interface{}, error)
}

// HasOptions reports whether the provider's return values are enumerable.
func (p *Provider) HasOptions() bool {
	return len(p.Options) > 0
}

// Registry is the immutable catalog of providers, built once at process start.
type Registry struct {
	providers map[string]*Provider
	order     []string
}

// NewRegistry builds the registry of built-in providers. The clock is used by
// calendar-dependent providers and is injectable for tests.
func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	r := &Registry{providers: make(map[string]*Provider)}
	r.add(ageFromBirthday(clock))
	r.add(partOfDay())
	r.add(partOfDayFromHour())
	return r
}

func (r *Registry) add(p *Provider) {
	r.providers[p.Name] = p
	r.order = append(r.order, p.Name)
}

// Get returns the named provider.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// InvalidBirthdayError is returned when a birthday value cannot be parsed.
type InvalidBirthdayError struct {
	Value interface{}
}

func (e *InvalidBirthdayError) Error() string {
	return fmt.Sprintf("%v can not be parsed into a valid date", e.Value)
}

// InvalidArgumentError is returned when a provider input cannot be coerced to
// the expected argument type.
type InvalidArgumentError struct {
	Value interface{}
	Want  string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%v can not be parsed into a %s", e.Value, e.Want)
}
