package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CoinGeckoOracle is the reference PriceOracle implementation, backed by
// CoinGecko's simple-price endpoint keyed by a mint-to-CoinGecko-ID
// lookup, resolving by mint address instead of by symbol.
type CoinGeckoOracle struct {
	baseURL    string
	httpClient *http.Client
	// mintToID maps a chain mint address to the CoinGecko coin ID
	// CoinGecko expects on the ids= query parameter. Populated from the
	// Token Catalog at construction time.
	mintToID map[string]string
}

// NewCoinGeckoOracle builds a CoinGeckoOracle. mintToID should come from
// the Token Catalog (internal/catalog) so mint resolution stays in one
// place.
func NewCoinGeckoOracle(mintToID map[string]string) *CoinGeckoOracle {
	return &CoinGeckoOracle{
		baseURL: "https://api.coingecko.com/api/v3",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		mintToID: mintToID,
	}
}

type coinGeckoSimplePriceEntry struct {
	USD float64 `json:"usd"`
}

// GetPrice fetches the current USD price for mint from CoinGecko's
// simple-price endpoint.
func (c *CoinGeckoOracle) GetPrice(ctx context.Context, mint string) (float64, error) {
	coinID, ok := c.mintToID[mint]
	if !ok {
		return 0, &ErrPriceUnavailable{Mint: mint}
	}

	reqURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(coinID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: building price request for %s: %w", mint, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: fetching price for %s: %w", mint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle: price API returned status %d for %s", resp.StatusCode, mint)
	}

	var parsed map[string]coinGeckoSimplePriceEntry
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("oracle: decoding price response for %s: %w", mint, err)
	}

	entry, ok := parsed[coinID]
	if !ok || entry.USD == 0 {
		return 0, &ErrPriceUnavailable{Mint: mint}
	}

	return entry.USD, nil
}
