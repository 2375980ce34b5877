package slices2

// Merge merges two slices, each already sorted by lt, into one sorted slice.
// Equal elements are all kept; on ties elements of a come before elements of b.
func Merge[T any, S ~[]T](a, b S, lt func(a, b T) bool) S {
	out := make(S, 0, len(a)+len(b))
	var i, j int
	for i < len(a) && j < len(b) {
		if lt(b[j], a[i]) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// IsSorted reports whether xs is sorted according to lt.
func IsSorted[T any, S ~[]T](xs S, lt func(a, b T) bool) bool {
	for i := 1; i < len(xs); i++ {
		if lt(xs[i], xs[i-1]) {
			return false
		}
	}
	return true
}
