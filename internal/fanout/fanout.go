// Package fanout folds the rows of a join against a multi-valued association
// back into one value per root record.
//
// A paginated query cannot join a many-to-many relation directly: every root
// row is repeated once per related row, so LIMIT/OFFSET and COUNT operate on
// the wrong unit. Callers instead page ids over the root table alone, fetch
// those ids again with the association joined in, and use this package to
// collapse the fan-out and restore the id order from the first pass.
package fanout

// Collapse folds rows sharing the same key into a single value. The first
// row seen for a key builds the value with first; every row for that key
// (including the first) is then passed to merge. Output order is the order
// in which keys were first seen.
func Collapse[R any, K comparable, T any](rows []R, key func(R) K, first func(R) T, merge func(*T, R)) []T {
	index := make(map[K]int, len(rows))
	out := make([]T, 0, len(rows))

	for _, r := range rows {
		k := key(r)
		i, seen := index[k]
		if !seen {
			i = len(out)
			index[k] = i
			out = append(out, first(r))
		}
		merge(&out[i], r)
	}
	return out
}

// Reorder arranges items in the order given by ids using a position map.
// Items whose key is not in ids, and repeated items for the same key, are
// discarded. Ids with no matching item are skipped; missing reports how
// many were skipped. A missing id usually means the record was deleted
// between the two passes, which is not an error.
func Reorder[T any, K comparable](ids []K, items []T, key func(T) K) (out []T, missing int) {
	position := make(map[K]int, len(ids))
	for i, id := range ids {
		if _, dup := position[id]; !dup {
			position[id] = i
		}
	}

	slots := make([]*T, len(ids))
	for i := range items {
		p, ok := position[key(items[i])]
		if !ok || slots[p] != nil {
			continue
		}
		slots[p] = &items[i]
	}

	out = make([]T, 0, len(position))
	for i, s := range slots {
		if s != nil {
			out = append(out, *s)
			continue
		}
		// Only count the first occurrence of a duplicated id.
		if position[ids[i]] == i {
			missing++
		}
	}
	return out, missing
}
