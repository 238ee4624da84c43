package swap

import "strings"

// slippageKeywords are the textual markers that classify a swap failure as
// recoverable by retrying with a higher slippage rung. "minimum received"
// is kept deliberately, as a conservative choice, even though it is also a
// generic message on some venues.
var slippageKeywords = []string{
	"slippage",
	"price moved",
	"insufficient output amount",
	"would result in a loss",
	"price impact too high",
	"exceeds desired slippage",
	"minimum received",
	"slippage tolerance",
}

// isSlippageError reports true iff the error text matches any known
// slippage phrase, or contains the external swap program's
// SlippageToleranceExceeded error code (6001) in any casing.
func isSlippageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range slippageKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return strings.Contains(msg, "6001")
}
