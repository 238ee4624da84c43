package oracle

import (
	"context"
	"testing"
)

type fakeOracle struct {
	calls  int
	prices map[string]float64
}

func (f *fakeOracle) GetPrice(ctx context.Context, mint string) (float64, error) {
	f.calls++
	price, ok := f.prices[mint]
	if !ok {
		return 0, &ErrPriceUnavailable{Mint: mint}
	}
	return price, nil
}

func TestCoinGeckoOracleMissingMintReturnsUnavailable(t *testing.T) {
	o := NewCoinGeckoOracle(map[string]string{})
	_, err := o.GetPrice(context.Background(), "unknown-mint")
	if err == nil {
		t.Fatal("expected an error for an unmapped mint")
	}
	if _, ok := err.(*ErrPriceUnavailable); !ok {
		t.Fatalf("expected ErrPriceUnavailable, got %T", err)
	}
}

func TestNewCachedOracleWithoutRedisURLReturnsUpstreamUnwrapped(t *testing.T) {
	upstream := &fakeOracle{prices: map[string]float64{"SOL": 150.0}}
	o, err := NewCachedOracle(upstream, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o != PriceOracle(upstream) {
		t.Fatal("expected NewCachedOracle to return the upstream unwrapped when no redisURL is given")
	}
}
