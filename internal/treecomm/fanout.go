package treecomm

import "github.com/geopm/geopmd/internal/gerr"

// MMaxFanOut bounds the root level's branching factor (spec §4.3).
const MMaxFanOut = 16

// ComputeFanouts factors numNodes into a sequence of per-level fan-outs
// (leaf-to-root order) such that their product equals numNodes, the final
// (root) factor is <= maxFanOut, and no intermediate level has a single
// child (a fanout of 1 would make that level pointless). The root bound
// does not hold when the factorization leaves a prime larger than
// maxFanOut: that prime becomes the root fan-out. This mirrors
// spec §4.3's split_cart sizing rule: "a fan-out chosen so the root's
// branching factor is <= M_MAX_FAN_OUT and no intermediate level has a
// single child."
func ComputeFanouts(numNodes, maxFanOut int) ([]int, error) {
	if numNodes <= 0 {
		return nil, gerr.New(gerr.KindInvalidArgument, "fanout.go", 0, "numNodes must be positive, got %d", numNodes)
	}
	if numNodes == 1 {
		return []int{1}, nil
	}

	var fanouts []int
	remaining := numNodes
	for remaining > maxFanOut {
		f := smallestFactorAbove1(remaining)
		if f == remaining {
			// remaining is prime and larger than maxFanOut: no exact
			// factorization keeps the root under the bound. Accept the
			// prime itself as the final (root) fan-out rather than fail
			// the whole tree construction.
			break
		}
		fanouts = append(fanouts, f)
		remaining /= f
	}
	fanouts = append(fanouts, remaining)
	return fanouts, nil
}

// smallestFactorAbove1 returns the smallest divisor of n greater than 1, or
// n itself if n is prime.
func smallestFactorAbove1(n int) int {
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return d
		}
	}
	return n
}
