// Package search finds the first element of an ordered sequence that satisfies an
// expensive predicate.
//
// FindFirst assumes the predicate is monotonic along the sequence: false on a prefix,
// true on the remaining suffix. Real availability data does not guarantee that, so
// callers pair it with CounterCheck over the prefix it skipped.
package search

// NotFound is returned by FindFirst when no element satisfies the predicate
const NotFound = -1

// Predicate evaluates one element. An error aborts the search.
type Predicate[T any] func(T) (bool, error)

// FindFirst returns the smallest index whose element satisfies pred, evaluating pred
// O(log n) times.
func FindFirst[T any](items []T, pred Predicate[T]) (int, error) {
	left, right := 0, len(items)-1
	ans := NotFound
	for left <= right {
		mid := left + (right-left)/2
		ok, err := pred(items[mid])
		if err != nil {
			return NotFound, err
		}
		if ok {
			ans = mid
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return ans, nil
}

// CounterCheck evaluates pred on every element before index `before`, in order, and
// returns the indices where it holds. Any such index contradicts the monotonicity
// FindFirst relied upon.
func CounterCheck[T any](items []T, before int, pred Predicate[T]) ([]int, error) {
	if before > len(items) {
		before = len(items)
	}
	var violations []int
	for i := 0; i < before; i++ {
		ok, err := pred(items[i])
		if err != nil {
			return violations, err
		}
		if ok {
			violations = append(violations, i)
		}
	}
	return violations, nil
}
