package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// JupiterClient is a QuoteService backed by the Jupiter v6 swap aggregator
// REST API. It is the reference implementation; any venue
// exposing a comparable quote/build-swap pair can satisfy QuoteService
// instead.
type JupiterClient struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	apiKey     string
}

// NewJupiterClient builds a JupiterClient against the production v6
// endpoint. apiKey may be empty; when set it raises the caller's rate
// limit but changes no request semantics.
func NewJupiterClient(apiKey string) *JupiterClient {
	return &JupiterClient{
		baseURL:  "https://quote-api.jup.ag/v6",
		tokenURL: "https://token.jup.ag/all",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey: apiKey,
	}
}

type jupiterPlatformFee struct {
	Amount string `json:"amount"`
	FeeBps int    `json:"feeBps"`
}

type jupiterRoutePlanStep struct {
	SwapInfo json.RawMessage `json:"swapInfo"`
	Percent  int             `json:"percent"`
}

type jupiterQuoteResponse struct {
	InputMint            string                 `json:"inputMint"`
	OutputMint           string                 `json:"outputMint"`
	InAmount             string                 `json:"inAmount"`
	OutAmount            string                 `json:"outAmount"`
	OtherAmountThreshold string                 `json:"otherAmountThreshold"`
	SwapMode             string                 `json:"swapMode"`
	SlippageBps          int                    `json:"slippageBps"`
	PlatformFee          *jupiterPlatformFee    `json:"platformFee,omitempty"`
	PriceImpactPct       string                 `json:"priceImpactPct"`
	RoutePlan            []jupiterRoutePlanStep `json:"routePlan"`
	ContextSlot          uint64                 `json:"contextSlot"`
}

type jupiterSwapRequest struct {
	QuoteResponse     jupiterQuoteResponse `json:"quoteResponse"`
	UserPublicKey     string               `json:"userPublicKey"`
	WrapAndUnwrapSol  bool                 `json:"wrapAndUnwrapSol"`
	UseSharedAccounts bool                 `json:"useSharedAccounts"`
	FeeAccount        string               `json:"feeAccount,omitempty"`
}

type jupiterSwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Quote fetches a quote for the given mint pair and amount at slippageBps,
// optionally requesting a platformFeeBps cut to PlatformFeeAccount (spec
// §9, Open Questions: platform fee account is a single configured value,
// not hard-coded per venue).
func (jc *JupiterClient) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps, platformFeeBps int) (*Quote, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		jc.baseURL, inputMint, outputMint, amount, slippageBps)
	if platformFeeBps > 0 {
		url += fmt.Sprintf("&platformFeeBps=%d", platformFeeBps)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("jupiter: building quote request: %w", err)
	}
	jc.authorize(req)

	resp, err := jc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter: quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("jupiter: quote API returned %d: %s", resp.StatusCode, string(body))
	}

	var raw jupiterQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("jupiter: decoding quote response: %w", err)
	}

	inAmt, err := strconv.ParseUint(raw.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jupiter: parsing inAmount %q: %w", raw.InAmount, err)
	}
	outAmt, err := strconv.ParseUint(raw.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jupiter: parsing outAmount %q: %w", raw.OutAmount, err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("jupiter: re-encoding quote for route plan passthrough: %w", err)
	}

	return &Quote{
		InAmount:       inAmt,
		OutAmount:      outAmt,
		SlippageBps:    raw.SlippageBps,
		PriceImpactPct: raw.PriceImpactPct,
		RoutePlan:      encoded,
	}, nil
}

// BuildSwap turns a previously fetched Quote into a base64-encoded,
// unsigned transaction ready for Signer.Sign.
func (jc *JupiterClient) BuildSwap(ctx context.Context, quote *Quote, userPubkey, feeAccount string) (string, error) {
	var raw jupiterQuoteResponse
	if err := json.Unmarshal(quote.RoutePlan, &raw); err != nil {
		return "", fmt.Errorf("jupiter: quote passthrough payload is not a jupiter quote: %w", err)
	}

	swapReq := jupiterSwapRequest{
		QuoteResponse:     raw,
		UserPublicKey:     userPubkey,
		WrapAndUnwrapSol:  true,
		UseSharedAccounts: true,
		FeeAccount:        feeAccount,
	}

	body, err := json.Marshal(swapReq)
	if err != nil {
		return "", fmt.Errorf("jupiter: marshaling swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, jc.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("jupiter: building swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	jc.authorize(req)

	resp, err := jc.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("jupiter: swap request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("jupiter: swap API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var swapResp jupiterSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&swapResp); err != nil {
		return "", fmt.Errorf("jupiter: decoding swap response: %w", err)
	}

	return swapResp.SwapTransaction, nil
}

func (jc *JupiterClient) authorize(req *http.Request) {
	if jc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+jc.apiKey)
	}
}
