package track

// SearchIndex returns the index i of the bracket containing v in the
// ascending slice ts, so that ts[i] <= v < ts[i+1]. Values before the first
// timestamp map to 0 and values after the last map to len(ts)-1; an exact
// match returns its own index.
func SearchIndex(v float64, ts []float64) int {
	if len(ts) == 0 || v < ts[0] {
		return 0
	}
	last := len(ts) - 1
	if v > ts[last] {
		return last
	}
	lo, hi := 0, last
	for lo <= hi {
		mid := lo + (hi-lo)/2
		switch {
		case v < ts[mid]:
			hi = mid - 1
		case v > ts[mid]:
			lo = mid + 1
		default:
			return mid
		}
	}
	return hi
}
