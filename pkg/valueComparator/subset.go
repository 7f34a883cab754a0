package valueComparator

import (
	"math/big"

	"github.com/Layr-Labs/fundtracer/internal/types/numbers"
)

// findSubset returns the indices of the first subset of amounts that contains required
// and whose sum lies within target * (1 ± percent/100). Subsets are tried by increasing
// size and, within a size, in lexicographic index order, so the result is the smallest
// matching subset made of the earliest entries. Returns nil when nothing matches.
func findSubset(amounts []*big.Int, required int, target *big.Int, percent float64) []int {
	n := len(amounts)
	if required < 0 || required >= n {
		return nil
	}

	chosen := make([]int, 0, n)
	sum := new(big.Int)

	var search func(start int, remaining int) bool
	search = func(start int, remaining int) bool {
		if remaining == 0 {
			if !containsIndex(chosen, required) {
				return false
			}
			return numbers.WithinPercent(target, sum, percent)
		}
		for i := start; i <= n-remaining; i++ {
			// every later index is past required, so a subset without it can't be completed
			if i > required && !containsIndex(chosen, required) {
				return false
			}
			chosen = append(chosen, i)
			sum.Add(sum, amounts[i])
			if search(i+1, remaining-1) {
				return true
			}
			sum.Sub(sum, amounts[i])
			chosen = chosen[:len(chosen)-1]
		}
		return false
	}

	for size := 1; size <= n; size++ {
		if search(0, size) {
			return append([]int{}, chosen...)
		}
	}
	return nil
}

func containsIndex(indices []int, i int) bool {
	for _, j := range indices {
		if j == i {
			return true
		}
	}
	return false
}
