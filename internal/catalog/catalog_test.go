package catalog

import "testing"

func sampleTokens() []TokenInfo {
	return []TokenInfo{
		{Mint: "SOL-mint", Symbol: "SOL", Decimals: 9, CoinGeckoID: "solana", Tradable: true},
		{Mint: "USDC-mint", Symbol: "USDC", Decimals: 6, CoinGeckoID: "usd-coin", Tradable: true},
		{Mint: "RUG-mint", Symbol: "RUG", Decimals: 6, Tradable: false},
	}
}

func TestValidatePairRejectsIdenticalMints(t *testing.T) {
	c := NewStaticCatalog(sampleTokens())
	if err := c.ValidatePair("SOL-mint", "SOL-mint"); err == nil {
		t.Fatal("expected an error for a pair of identical mints")
	}
}

func TestValidatePairRejectsUntradableToken(t *testing.T) {
	c := NewStaticCatalog(sampleTokens())
	if err := c.ValidatePair("SOL-mint", "RUG-mint"); err == nil {
		t.Fatal("expected an error for a pair including an untradable token")
	}
}

func TestValidatePairAcceptsKnownTradablePair(t *testing.T) {
	c := NewStaticCatalog(sampleTokens())
	if err := c.ValidatePair("SOL-mint", "USDC-mint"); err != nil {
		t.Fatalf("expected a known tradable pair to validate, got: %v", err)
	}
}

func TestMintToCoinGeckoIDSkipsTokensWithoutAnID(t *testing.T) {
	c := NewStaticCatalog(sampleTokens())
	mapping := c.MintToCoinGeckoID()
	if mapping["SOL-mint"] != "solana" {
		t.Fatalf("expected solana, got %s", mapping["SOL-mint"])
	}
	if _, ok := mapping["RUG-mint"]; ok {
		t.Fatal("expected RUG-mint to be excluded since it has no CoinGecko ID")
	}
}
