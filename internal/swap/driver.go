package swap

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/models"
)

// outcome classifies one rung attempt so the retry loop never has to parse
// an error message twice — a tri-state result in place of exception-driven
// control flow.
type outcome int

const (
	outcomeOk outcome = iota
	outcomeSlippageRetry
	outcomeFatal
)

// FeeReserveLamports is the minimum native balance Execute requires the
// wallet to hold before the first attempt, as fee headroom. The check
// compares the balance alone against this value; it does not add the swap
// amount, so a swap of the native token can leave less than this behind.
const FeeReserveLamports = 5_000_000 // 0.005 SOL

// Driver executes one swap request against the configured slippage ladder,
// publishing a TradeSuccessEvent and writing a best-effort log row on
// success.
type Driver struct {
	Quotes  QuoteService
	Chain   ChainClient
	Signer  Signer
	Logger  TransactionLogger
	Bus     *eventbus.Bus
	Rungs   []int
	Confirm struct {
		PollInterval time.Duration
		MaxAttempts  int
	}
}

// NewDriver builds a Driver with the repository's default slippage ladder
// and a 500ms/20-attempt confirmation poll.
func NewDriver(quotes QuoteService, chain ChainClient, signer Signer, logger TransactionLogger, bus *eventbus.Bus) *Driver {
	d := &Driver{
		Quotes: quotes,
		Chain:  chain,
		Signer: signer,
		Logger: logger,
		Bus:    bus,
		Rungs:  DefaultLadder,
	}
	d.Confirm.PollInterval = 500 * time.Millisecond
	d.Confirm.MaxAttempts = 20
	return d
}

// Execute runs req through the quote → build → sign → submit → confirm
// pipeline, retrying at progressively wider slippage tolerances whenever
// the failure classifies as slippage-related; a non-slippage failure is
// never retried. strategyID/strategyKind are only used to
// label the published event and log row; walletPubkey identifies the
// trading wallet whose balance and fee headroom are checked before the
// first attempt.
func (d *Driver) Execute(ctx context.Context, req *models.SwapRequest, strategyID, strategyKind, walletPubkey, platformFeeAccount string, platformFeeBps int) (*models.SwapResult, error) {
	balance, err := d.Chain.NativeBalance(ctx, walletPubkey)
	if err != nil {
		return nil, fmt.Errorf("swap: checking fee headroom for %s: %w", walletPubkey, err)
	}
	if balance < FeeReserveLamports {
		return nil, fmt.Errorf("swap: wallet %s balance %d below fee reserve %d, aborting swap", walletPubkey, balance, FeeReserveLamports)
	}

	ladder := BuildLadder(req.SlippageBps, d.Rungs)
	var lastErr error

	for attempt, bps := range ladder {
		result, oc, attemptErr := d.attempt(ctx, req, bps, walletPubkey, platformFeeAccount, platformFeeBps)
		switch oc {
		case outcomeOk:
			result.Attempts = attempt + 1
			result.FinalSlippageBps = bps
			result.Message = fmt.Sprintf("succeeded with %.1f%% slippage after %d attempts", float64(bps)/100, result.Attempts)
			d.onSuccess(ctx, strategyID, strategyKind, walletPubkey, result)
			return result, nil
		case outcomeFatal:
			d.logFailure(ctx, walletPubkey, attemptErr)
			return nil, fmt.Errorf("swap: fatal error on attempt %d (slippage=%dbps): %w", attempt+1, bps, attemptErr)
		case outcomeSlippageRetry:
			log.Printf("[SWAP][INFO] slippage rejection at %dbps for wallet=%s, escalating", bps, walletPubkey)
			lastErr = attemptErr
			continue
		}
	}

	d.logFailure(ctx, walletPubkey, lastErr)
	return nil, fmt.Errorf("swap: exhausted %d attempts, final slippage %dbps: %w", len(ladder), ladder[len(ladder)-1], lastErr)
}

// attempt runs exactly one quote→build→sign→submit→confirm cycle at the
// given slippage and classifies the result.
func (d *Driver) attempt(ctx context.Context, req *models.SwapRequest, slippageBps int, walletPubkey, feeAccount string, platformFeeBps int) (*models.SwapResult, outcome, error) {
	quote, err := d.Quotes.Quote(ctx, req.InputMint, req.OutputMint, req.Amount, slippageBps, platformFeeBps)
	if err != nil {
		if isSlippageError(err) {
			return nil, outcomeSlippageRetry, err
		}
		return nil, outcomeFatal, err
	}

	built, err := d.Quotes.BuildSwap(ctx, quote, walletPubkey, feeAccount)
	if err != nil {
		if isSlippageError(err) {
			return nil, outcomeSlippageRetry, err
		}
		return nil, outcomeFatal, err
	}

	signed, err := d.Signer.Sign(ctx, built, req.WalletKeypair)
	if err != nil {
		return nil, outcomeFatal, fmt.Errorf("signing failed: %w", err)
	}

	sig, err := d.Chain.SubmitTransaction(ctx, signed)
	if err != nil {
		if isSlippageError(err) {
			return nil, outcomeSlippageRetry, err
		}
		return nil, outcomeFatal, err
	}

	confirmed, err := d.waitForConfirmation(ctx, sig)
	if err != nil {
		return nil, outcomeFatal, err
	}
	if !confirmed {
		return nil, outcomeFatal, fmt.Errorf("transaction %s was not confirmed within the poll window", sig)
	}

	return &models.SwapResult{
		Signature:     sig,
		InputAmount:   quote.InAmount,
		OutputAmount:  quote.OutAmount,
		Message:       "swap confirmed",
	}, outcomeOk, nil
}

func (d *Driver) waitForConfirmation(ctx context.Context, signature string) (bool, error) {
	for i := 0; i < d.Confirm.MaxAttempts; i++ {
		confirmed, err := d.Chain.ConfirmTransaction(ctx, signature)
		if err != nil {
			return false, fmt.Errorf("polling confirmation for %s: %w", signature, err)
		}
		if confirmed {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(d.Confirm.PollInterval):
		}
	}
	return false, nil
}

func (d *Driver) onSuccess(ctx context.Context, strategyID, strategyKind, walletPubkey string, result *models.SwapResult) {
	if d.Bus != nil {
		d.Bus.Publish(eventbus.TradeSuccessEvent{
			StrategyID:          strategyID,
			TradingWalletPubkey: walletPubkey,
			StrategyKind:        strategyKind,
			Signature:           result.Signature,
			Timestamp:           time.Now(),
		})
	}
	if d.Logger != nil {
		d.Logger.LogTransaction(ctx, walletPubkey, true, result.Signature, result.Message, result.InputAmount, result.OutputAmount)
	}
}

func (d *Driver) logFailure(ctx context.Context, walletPubkey string, cause error) {
	if d.Logger == nil {
		return
	}
	msg := "swap failed"
	if cause != nil {
		msg = cause.Error()
	}
	d.Logger.LogTransaction(ctx, walletPubkey, false, "", msg, 0, 0)
}
