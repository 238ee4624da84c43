package swap

// DefaultLadder is the repository's canonical progressive-slippage ladder:
// rungs are tried in order after the caller's requested slippage, strictly
// increasing, capped at MaxSlippageBps.
var DefaultLadder = []int{150, 300, 500, 1000}

// MaxSlippageBps is the hard ceiling on any attempt's slippage tolerance;
// no rung, including the caller's requested value, may exceed it.
const MaxSlippageBps = 1000

// BuildLadder returns the full sequence of slippage values an Attempt loop
// should try, starting with requestedBps and then each configured rung that
// is strictly greater than the previous value and does not exceed
// MaxSlippageBps (spec invariant 1: slippage(i+1) > slippage(i) ≤ 1000).
func BuildLadder(requestedBps int, rungs []int) []int {
	if requestedBps > MaxSlippageBps {
		requestedBps = MaxSlippageBps
	}
	ladder := []int{requestedBps}
	for _, rung := range rungs {
		if rung > MaxSlippageBps {
			rung = MaxSlippageBps
		}
		last := ladder[len(ladder)-1]
		if rung > last {
			ladder = append(ladder, rung)
		}
	}
	return ladder
}
