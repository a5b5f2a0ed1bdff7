// Package mix combines stored block spectra pairwise into time-domain output
// blocks. The plan is the pure combinatorial part; the mixer does the
// spectral arithmetic.
package mix

// PairCount is one unordered block pair with the number of ordered pairs it
// stands for: diagonal pairs (i == j) occur once, off-diagonal pairs twice.
type PairCount struct {
	I, J int
	Mult int
}

// Group lists the pairs contributing to one output block, ordered by
// ascending first index.
type Group []PairCount

// Plan indexes groups by output position s = i + j. It is immutable once
// built and safe for concurrent read by all mix workers.
type Plan []Group

// NewPlan builds the mix plan for nBlocks input blocks: for every ordered
// pair (i, j) in [0, nBlocks)², the unordered pair joins group i+j. The plan
// has 2*nBlocks - 1 groups and its multiplicities sum to nBlocks².
func NewPlan(nBlocks int) Plan {
	if nBlocks <= 0 {
		return nil
	}

	plan := make(Plan, 2*nBlocks-1)
	for s := range plan {
		lo := s - nBlocks + 1
		if lo < 0 {
			lo = 0
		}

		group := make(Group, 0, s/2-lo+1)
		for i := lo; i <= s/2; i++ {
			j := s - i
			mult := 2
			if i == j {
				mult = 1
			}
			group = append(group, PairCount{I: i, J: j, Mult: mult})
		}
		plan[s] = group
	}

	return plan
}
