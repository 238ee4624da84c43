// Package swap implements the progressive-slippage swap driver: quote,
// build, sign, submit, confirm, retried under a specific error taxonomy
// while bounding risk.
package swap

import "context"

// Quote is the external swap service's quote for one (input, output,
// amount, slippage) tuple. RoutePlan is opaque and passed straight through
// to BuildSwap; the driver never inspects it.
type Quote struct {
	InAmount       uint64
	OutAmount      uint64
	SlippageBps    int
	PriceImpactPct string
	RoutePlan      []byte
}

// QuoteService is the external swap/quote service contract.
type QuoteService interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps, platformFeeBps int) (*Quote, error)
	BuildSwap(ctx context.Context, quote *Quote, userPubkey, feeAccount string) (serializedTxBase64 string, err error)
}

// ChainClient is the subset of the Chain RPC contract the swap driver
// needs to submit and confirm a signed transaction and check fee headroom.
type ChainClient interface {
	NativeBalance(ctx context.Context, pubkey string) (uint64, error)
	SubmitTransaction(ctx context.Context, signedTxBase64 string) (signature string, err error)
	ConfirmTransaction(ctx context.Context, signature string) (confirmed bool, err error)
}

// Signer produces a signed, submittable transaction from the build_swap
// output and the caller's decrypted keypair material. Signing happens
// locally; the keypair never leaves the Worker/Driver boundary.
type Signer interface {
	Sign(ctx context.Context, serializedTxBase64 string, keypair []byte) (signedTxBase64 string, err error)
}

// TransactionLogger writes a best-effort audit row for one swap attempt.
// Implementations must never let a logging failure fail the swap itself;
// the driver only calls this once the swap has succeeded, failed with a
// non-slippage error, or exhausted its ladder.
type TransactionLogger interface {
	LogTransaction(ctx context.Context, walletPubkey string, succeeded bool, signature, message string, inAmount, outAmount uint64)
}
