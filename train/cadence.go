package train

// Crossed reports whether the iteration counter crossed a multiple of freq
// when moving from prev to curr.
//
// The counter advances by the batch size, so it does not necessarily land on
// exact multiples: testing `curr % freq == 0` would silently skip a cadence
// event whenever the batch size does not divide freq. Comparing the integer
// quotients fires exactly once per crossed multiple regardless of step size.
func Crossed(prev, curr, freq int) bool {
	if freq <= 0 || curr <= prev {
		return false
	}
	return prev/freq != curr/freq
}

// LastMultiple returns the largest multiple of freq that is <= curr.
// It is the iteration a cadence event crossed when Crossed returns true.
func LastMultiple(curr, freq int) int {
	if freq <= 0 {
		return curr
	}
	return (curr / freq) * freq
}
