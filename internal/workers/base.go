package workers

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// runTicker calls tick once immediately and then on every interval until
// ctx is cancelled or stop is closed, matching the "runs until is_active
// is false or the strategy row is removed" lifecycle every worker in this
// package implements.
func runTicker(ctx context.Context, stop <-chan struct{}, interval time.Duration, tag string, tick func(ctx context.Context)) {
	tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s][INFO] context cancelled, stopping", tag)
			return
		case <-stop:
			log.Printf("[%s][INFO] stop requested, stopping", tag)
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// percentageOfBalance converts a percentage of a base-unit balance into a
// base-unit amount, rounding down so a worker never requests more than it
// holds. Computed in decimal rather than float64 so a long-running
// supervisor process doesn't accumulate binary-fraction drift across many
// sizing decisions on the same wallet.
func percentageOfBalance(balance uint64, percentage float64) uint64 {
	if percentage <= 0 {
		return 0
	}
	amount := decimal.NewFromInt(int64(balance)).
		Mul(decimal.NewFromFloat(percentage)).
		Div(decimal.NewFromInt(100))
	if amount.IsNegative() {
		return 0
	}
	return uint64(amount.IntPart())
}
