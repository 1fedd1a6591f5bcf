package ledger

// PushFront returns a new slice with item prepended and the tail beyond limit
// evicted. The input slice is never modified. A non-positive limit keeps nothing.
func PushFront[T any](items []T, item T, limit int) []T {
	if limit <= 0 {
		return nil
	}
	n := len(items) + 1
	if n > limit {
		n = limit
	}
	out := make([]T, n)
	out[0] = item
	copy(out[1:], items)
	return out
}

// PushFrontUnique is PushFront for set-like rings: an existing equal entry is
// moved to the front instead of being duplicated.
func PushFrontUnique[T comparable](items []T, item T, limit int) []T {
	rest := make([]T, 0, len(items))
	for _, it := range items {
		if it != item {
			rest = append(rest, it)
		}
	}
	return PushFront(rest, item, limit)
}

// Contains reports whether item is present in the ring.
func Contains[T comparable](items []T, item T) bool {
	for _, it := range items {
		if it == item {
			return true
		}
	}
	return false
}
