package swap

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"

	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/models"
)

type fakeQuoteService struct {
	quoteCalls    int
	buildCalls    int
	failUntilBps  int // Quote fails with a slippage error for any bps < failUntilBps
	fatalOnQuote  bool
	fatalOnBuild  bool
}

func (f *fakeQuoteService) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps, platformFeeBps int) (*Quote, error) {
	f.quoteCalls++
	if f.fatalOnQuote {
		return nil, errors.New("mint not tradable")
	}
	if slippageBps < f.failUntilBps {
		return nil, errors.New("slippage tolerance exceeded")
	}
	return &Quote{InAmount: amount, OutAmount: amount * 99 / 100, SlippageBps: slippageBps}, nil
}

func (f *fakeQuoteService) BuildSwap(ctx context.Context, quote *Quote, userPubkey, feeAccount string) (string, error) {
	f.buildCalls++
	if f.fatalOnBuild {
		return "", errors.New("route no longer valid")
	}
	return base64.StdEncoding.EncodeToString([]byte("unsigned-tx")), nil
}

type fakeChainClient struct {
	balance       uint64
	confirmAfter  int
	confirmCalls  int
	submitErr     error
}

func (f *fakeChainClient) NativeBalance(ctx context.Context, pubkey string) (uint64, error) {
	return f.balance, nil
}

func (f *fakeChainClient) SubmitTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "sig-123", nil
}

func (f *fakeChainClient) ConfirmTransaction(ctx context.Context, signature string) (bool, error) {
	f.confirmCalls++
	return f.confirmCalls > f.confirmAfter, nil
}

type fakeLogger struct {
	calls int
}

func (f *fakeLogger) LogTransaction(ctx context.Context, walletPubkey string, succeeded bool, signature, message string, inAmount, outAmount uint64) {
	f.calls++
}

func newTestKeypair(t *testing.T) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating test keypair: %v", err)
	}
	return priv
}

func TestExecuteSucceedsOnFirstAttempt(t *testing.T) {
	quotes := &fakeQuoteService{}
	chain := &fakeChainClient{balance: 1_000_000_000, confirmAfter: 0}
	logger := &fakeLogger{}
	bus := eventbus.New()

	var captured eventbus.TradeSuccessEvent
	bus.Subscribe(func(e eventbus.TradeSuccessEvent) { captured = e })

	d := NewDriver(quotes, chain, LocalSigner{}, logger, bus)

	req := &models.SwapRequest{
		InputMint: "SOL", OutputMint: "USDC", Amount: 1_000_000,
		SlippageBps: 50, WalletKeypair: newTestKeypair(t),
	}

	result, err := d.Execute(context.Background(), req, "strategy-1", "price_monitor", "wallet-pubkey", "fee-account", 10)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", result.Attempts)
	}
	if result.FinalSlippageBps != 50 {
		t.Fatalf("expected final slippage 50, got %d", result.FinalSlippageBps)
	}
	if captured.Signature != "sig-123" {
		t.Fatalf("expected eventbus to receive the confirmed signature, got %+v", captured)
	}
	if logger.calls != 1 {
		t.Fatalf("expected exactly one log call, got %d", logger.calls)
	}
}

func TestExecuteEscalatesSlippageThenSucceeds(t *testing.T) {
	quotes := &fakeQuoteService{failUntilBps: 300} // 50 and 150 fail, 300 succeeds
	chain := &fakeChainClient{balance: 1_000_000_000, confirmAfter: 0}
	logger := &fakeLogger{}
	bus := eventbus.New()

	d := NewDriver(quotes, chain, LocalSigner{}, logger, bus)
	req := &models.SwapRequest{
		InputMint: "SOL", OutputMint: "USDC", Amount: 1_000_000,
		SlippageBps: 50, WalletKeypair: newTestKeypair(t),
	}

	result, err := d.Execute(context.Background(), req, "strategy-1", "levels", "wallet-pubkey", "fee-account", 0)
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if result.FinalSlippageBps != 300 {
		t.Fatalf("expected to settle at 300bps, got %d", result.FinalSlippageBps)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts (50, 150, 300), got %d", result.Attempts)
	}
}

func TestExecuteStopsImmediatelyOnFatalError(t *testing.T) {
	quotes := &fakeQuoteService{fatalOnQuote: true}
	chain := &fakeChainClient{balance: 1_000_000_000}
	logger := &fakeLogger{}
	bus := eventbus.New()

	d := NewDriver(quotes, chain, LocalSigner{}, logger, bus)
	req := &models.SwapRequest{
		InputMint: "SOL", OutputMint: "USDC", Amount: 1_000_000,
		SlippageBps: 50, WalletKeypair: newTestKeypair(t),
	}

	_, err := d.Execute(context.Background(), req, "strategy-1", "levels", "wallet-pubkey", "fee-account", 0)
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	if quotes.quoteCalls != 1 {
		t.Fatalf("expected exactly 1 quote call for a fatal error, got %d", quotes.quoteCalls)
	}
	if logger.calls != 1 {
		t.Fatalf("expected one failure log call, got %d", logger.calls)
	}
}

func TestExecuteExhaustsLadderAndFails(t *testing.T) {
	quotes := &fakeQuoteService{failUntilBps: MaxSlippageBps + 1} // never succeeds
	chain := &fakeChainClient{balance: 1_000_000_000}
	logger := &fakeLogger{}
	bus := eventbus.New()

	d := NewDriver(quotes, chain, LocalSigner{}, logger, bus)
	req := &models.SwapRequest{
		InputMint: "SOL", OutputMint: "USDC", Amount: 1_000_000,
		SlippageBps: 50, WalletKeypair: newTestKeypair(t),
	}

	_, err := d.Execute(context.Background(), req, "strategy-1", "levels", "wallet-pubkey", "fee-account", 0)
	if err == nil {
		t.Fatal("expected the ladder to be exhausted")
	}
	if quotes.quoteCalls != len(BuildLadder(50, DefaultLadder)) {
		t.Fatalf("expected one quote call per rung (%d), got %d", len(BuildLadder(50, DefaultLadder)), quotes.quoteCalls)
	}
}

func TestExecuteAbortsWhenBelowFeeReserve(t *testing.T) {
	quotes := &fakeQuoteService{}
	chain := &fakeChainClient{balance: FeeReserveLamports - 1}
	logger := &fakeLogger{}
	bus := eventbus.New()

	d := NewDriver(quotes, chain, LocalSigner{}, logger, bus)
	req := &models.SwapRequest{
		InputMint: "SOL", OutputMint: "USDC", Amount: 1_000_000,
		SlippageBps: 50, WalletKeypair: newTestKeypair(t),
	}

	_, err := d.Execute(context.Background(), req, "strategy-1", "levels", "wallet-pubkey", "fee-account", 0)
	if err == nil {
		t.Fatal("expected an error when balance is below the fee reserve")
	}
	if quotes.quoteCalls != 0 {
		t.Fatalf("expected no quote calls when the fee-headroom check fails, got %d", quotes.quoteCalls)
	}
}
