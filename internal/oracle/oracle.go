// Package oracle implements the Price Oracle client: a single
// authoritative source of USD prices for tokens by mint address,
// with an optional Redis-backed cache layer in front of it.
package oracle

import (
	"context"
	"fmt"
	"time"
)

// PriceOracle resolves a token mint to its current USD price. All workers
// that need a market price go through this interface rather than calling
// an upstream feed directly, so a cache or a test double can be substituted
// without touching worker code.
type PriceOracle interface {
	GetPrice(ctx context.Context, mint string) (float64, error)
}

// Quote is a priced snapshot with the time it was observed. CachedOracle
// stores cached prices in Redis in this form; GetPrice returns only the
// price.
type Quote struct {
	Mint      string
	PriceUSD  float64
	FetchedAt time.Time
}

// ErrPriceUnavailable is returned when no upstream or cached price exists
// for a mint.
type ErrPriceUnavailable struct {
	Mint string
}

func (e *ErrPriceUnavailable) Error() string {
	return fmt.Sprintf("oracle: no price available for mint %s", e.Mint)
}
