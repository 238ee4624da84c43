// Package chainrpc implements the Chain RPC client: a reference
// JSON-RPC-over-HTTP client. No chain SDK exists anywhere in this
// repository's dependency corpus, so this package talks the wire protocol
// directly with net/http and encoding/json rather than depending on one
// (see DESIGN.md's stdlib-fallback justification for internal/chainrpc).
package chainrpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// AccountInfo is the parsed account state returned by ParsedAccountInfo.
// Data is left as raw JSON since its shape varies by account owner program.
type AccountInfo struct {
	Owner    string          `json:"owner"`
	Lamports uint64          `json:"lamports"`
	Data     json.RawMessage `json:"data"`
}

// Confirmation describes the outcome of ConfirmTransaction.
type Confirmation struct {
	Confirmed bool
	Slot      uint64
	Err       string
}

// LogEvent is delivered to an on_logs subscription handler.
type LogEvent struct {
	Signature string
	Logs      []string
	Err       string
}

// SubscriptionHandle identifies one on_logs registration for RemoveOnLogs.
type SubscriptionHandle uint64

// Client is the reference Chain RPC implementation.
type Client struct {
	rpcURL     string
	httpClient *http.Client

	mu            sync.Mutex
	nextHandle    SubscriptionHandle
	subscriptions map[SubscriptionHandle]*logSubscription
}

type logSubscription struct {
	address string
	fn      func(LogEvent)
	stop    chan struct{}
}

// NewClient builds a Client against rpcURL (e.g. a Solana-compatible
// JSON-RPC HTTP endpoint).
func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		subscriptions: make(map[SubscriptionHandle]*logSubscription),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("chainrpc: marshaling %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chainrpc: building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chainrpc: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("chainrpc: decoding %s response: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("chainrpc: %s rpc error %d: %s", method, parsed.Error.Code, parsed.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("chainrpc: unmarshaling %s result: %w", method, err)
		}
	}
	return nil
}

// NativeBalance returns pubkey's native-unit balance in base units.
func (c *Client) NativeBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{pubkey}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// TokenBalance returns owner's balance of mint in base units, or 0 if the
// associated token account does not exist.
func (c *Client) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}

	params := []interface{}{owner, map[string]string{"mint": mint}, map[string]string{"encoding": "jsonParsed"}}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}
	if len(result.Value) == 0 {
		return 0, nil
	}

	var amount uint64
	if _, err := fmt.Sscanf(result.Value[0].Account.Data.Parsed.Info.TokenAmount.Amount, "%d", &amount); err != nil {
		return 0, fmt.Errorf("chainrpc: parsing token amount: %w", err)
	}
	return amount, nil
}

// ParsedAccountInfo returns the parsed state of address, or nil if the
// account does not exist.
func (c *Client) ParsedAccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	var result struct {
		Value *struct {
			Owner    string          `json:"owner"`
			Lamports uint64          `json:"lamports"`
			Data     json.RawMessage `json:"data"`
		} `json:"value"`
	}
	params := []interface{}{address, map[string]string{"encoding": "jsonParsed"}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	return &AccountInfo{Owner: result.Value.Owner, Lamports: result.Value.Lamports, Data: result.Value.Data}, nil
}

// LatestBlockhash returns the current blockhash used to construct a
// transaction that has not yet expired.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

// SubmitTransaction submits a signed, base64-encoded transaction and
// returns its signature.
func (c *Client) SubmitTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	var signature string
	params := []interface{}{signedTxBase64, map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// ConfirmTransaction reports whether signature has landed and, if so,
// whether it succeeded.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string) (bool, error) {
	var result struct {
		Value []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		} `json:"value"`
	}
	params := []interface{}{[]string{signature}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return false, err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("chainrpc: transaction %s failed on-chain: %v", signature, status.Err)
	}
	return status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", nil
}

// nativeTransferPayload is the minimal reference wire format TransferNative
// signs, mirroring internal/swap.LocalSigner's documented limitation: no
// chain SDK exists anywhere in this repository's dependency corpus to build
// a real transaction message, so this is a placeholder payload shape a real
// deployment would replace with actual transaction construction.
type nativeTransferPayload struct {
	To        string `json:"to"`
	Lamports  uint64 `json:"lamports"`
	Blockhash string `json:"blockhash"`
}

// TransferNative builds, signs, and submits a plain native-unit transfer
// from fromKeypair to toPubkey, used by the Vault worker to move captured
// profit. Confirms before returning.
func (c *Client) TransferNative(ctx context.Context, fromKeypair []byte, toPubkey string, lamports uint64) (string, error) {
	if len(fromKeypair) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("chainrpc: transfer keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(fromKeypair))
	}

	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("chainrpc: fetching blockhash for transfer: %w", err)
	}

	encoded, err := json.Marshal(nativeTransferPayload{To: toPubkey, Lamports: lamports, Blockhash: blockhash})
	if err != nil {
		return "", fmt.Errorf("chainrpc: encoding transfer payload: %w", err)
	}

	priv := ed25519.PrivateKey(fromKeypair)
	sig := ed25519.Sign(priv, encoded)
	signedTx := base64.StdEncoding.EncodeToString(append(sig, encoded...))

	signature, err := c.SubmitTransaction(ctx, signedTx)
	if err != nil {
		return "", fmt.Errorf("chainrpc: submitting transfer: %w", err)
	}

	if err := c.waitForTransferConfirmation(ctx, signature); err != nil {
		return "", err
	}
	return signature, nil
}

func (c *Client) waitForTransferConfirmation(ctx context.Context, signature string) error {
	for attempt := 0; attempt < 20; attempt++ {
		confirmed, err := c.ConfirmTransaction(ctx, signature)
		if err != nil {
			return fmt.Errorf("chainrpc: transfer %s failed on-chain: %w", signature, err)
		}
		if confirmed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("chainrpc: transfer %s did not confirm in time", signature)
}

// WalletDelta returns watchedWallet's pre- and post-transaction native
// balances for signature, used by WalletMonitor to size a proportional
// mirror against the watched wallet's own swap.
func (c *Client) WalletDelta(ctx context.Context, signature, watchedWallet string) (preBalance, postBalance float64, err error) {
	var result struct {
		Transaction struct {
			Message struct {
				AccountKeys []struct {
					Pubkey string `json:"pubkey"`
				} `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
		Meta struct {
			PreBalances  []uint64 `json:"preBalances"`
			PostBalances []uint64 `json:"postBalances"`
		} `json:"meta"`
	}

	params := []interface{}{signature, map[string]interface{}{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0}}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return 0, 0, err
	}

	idx := -1
	for i, key := range result.Transaction.Message.AccountKeys {
		if key.Pubkey == watchedWallet {
			idx = i
			break
		}
	}
	if idx == -1 || idx >= len(result.Meta.PreBalances) || idx >= len(result.Meta.PostBalances) {
		return 0, 0, fmt.Errorf("chainrpc: watched wallet %s not found in transaction %s", watchedWallet, signature)
	}
	return float64(result.Meta.PreBalances[idx]), float64(result.Meta.PostBalances[idx]), nil
}

// OnLogs subscribes to log events for address, polling getSignaturesForAddress
// at a fixed interval (the HTTP-only reference client has no WebSocket
// transport; a production deployment would swap this for a true
// logsSubscribe feed without changing the interface). fn is invoked from a
// background goroutine for every new signature observed.
func (c *Client) OnLogs(address string, fn func(LogEvent)) SubscriptionHandle {
	c.mu.Lock()
	c.nextHandle++
	handle := c.nextHandle
	sub := &logSubscription{address: address, fn: fn, stop: make(chan struct{})}
	c.subscriptions[handle] = sub
	c.mu.Unlock()

	go c.pollLogs(sub)
	return handle
}

// RemoveOnLogs cancels a prior OnLogs subscription. Idempotent.
func (c *Client) RemoveOnLogs(handle SubscriptionHandle) {
	c.mu.Lock()
	sub, ok := c.subscriptions[handle]
	if ok {
		delete(c.subscriptions, handle)
	}
	c.mu.Unlock()
	if ok {
		close(sub.stop)
	}
}

func (c *Client) pollLogs(sub *logSubscription) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	seen := make(map[string]bool)
	ctx := context.Background()

	for {
		select {
		case <-sub.stop:
			return
		case <-ticker.C:
			sigs, err := c.signaturesForAddress(ctx, sub.address)
			if err != nil {
				log.Printf("[CHAINRPC][WARN] polling logs for %s: %v", sub.address, err)
				continue
			}
			for _, s := range sigs {
				if seen[s] {
					continue
				}
				seen[s] = true
				sub.fn(LogEvent{Signature: s})
			}
		}
	}
}

func (c *Client) signaturesForAddress(ctx context.Context, address string) ([]string, error) {
	var result []struct {
		Signature string `json:"signature"`
	}
	params := []interface{}{address, map[string]int{"limit": 20}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}
	sigs := make([]string, 0, len(result))
	for _, r := range result {
		sigs = append(sigs, r.Signature)
	}
	return sigs, nil
}
