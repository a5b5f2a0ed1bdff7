package segment

// OptimalFFTSize returns the smallest m >= n whose only prime factors are
// 2 and 3, so that transforms of length m stay fast. Block sizes chosen this
// way remain optimal after doubling or tripling for the output padding.
func OptimalFFTSize(n int) int {
	if n < 1 {
		return 1
	}

	for m := n; ; m++ {
		r := m
		for r%2 == 0 {
			r /= 2
		}
		for r%3 == 0 {
			r /= 3
		}
		if r < 2 {
			return m
		}
	}
}
