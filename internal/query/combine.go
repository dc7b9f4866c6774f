package query

import (
	"fmt"
	"sort"
	"strconv"
)

// Combine merges two previously materialized row sets into a deterministic
// union keyed by IDKey. When the same id appears in both sets with differing
// field values, the new row wins. Output is sorted by id (numerically when
// both ids are numeric), so repeated invocations on the same inputs produce
// identical ordering regardless of input order; the combined set is persisted
// as membership state elsewhere and must be reproducible.
func Combine(oldRows, newRows []Row) []Row {
	merged := make(map[string]Row, len(oldRows)+len(newRows))
	for _, r := range oldRows {
		if id, ok := rowID(r); ok {
			merged[id] = r
		}
	}
	for _, r := range newRows {
		if id, ok := rowID(r); ok {
			merged[id] = r
		}
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return lessID(ids[i], ids[j])
	})

	out := make([]Row, len(ids))
	for i, id := range ids {
		out[i] = merged[id]
	}
	return out
}

func rowID(r Row) (string, bool) {
	v, ok := r[IDKey]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func lessID(a, b string) bool {
	an, aerr := strconv.ParseInt(a, 10, 64)
	bn, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return an < bn
	}
	return a < b
}
