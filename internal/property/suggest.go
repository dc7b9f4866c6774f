package property

import (
	"strings"

	"github.com/veildb/veildb/internal/schema"
)

// SuggestUsersTable orders table names so that probable identity tables come
// first: any name containing "user" (case-insensitive) is a suggestion, the
// rest follow in their original order.
func SuggestUsersTable(tables []string) []string {
	var suggested, rest []string
	for _, t := range tables {
		if strings.Contains(strings.ToLower(t), "user") {
			suggested = append(suggested, t)
		} else {
			rest = append(rest, t)
		}
	}
	return append(suggested, rest...)
}

// SuggestDefaults builds a default property list for a base table, one spec
// per column, ranked by the same heuristic as the table suggestion: columns
// whose name contains "user" are probable identity columns and come first.
// The primary key is excluded; it is never exposed directly.
func SuggestDefaults(t *schema.Table) []Spec {
	var suggested, rest []Spec
	for _, col := range t.Columns {
		if col.Name == t.PrimaryKey {
			continue
		}
		spec := Spec{
			Name:   strings.ToLower(col.Name),
			Source: col.Ref(t.Name),
			Type:   col.DataType,
			Expose: true,
		}
		if strings.Contains(strings.ToLower(col.Name), "user") {
			suggested = append(suggested, spec)
		} else {
			rest = append(rest, spec)
		}
	}
	return append(suggested, rest...)
}
