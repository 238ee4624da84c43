package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"tradedaemon/internal/models"
)

// pairTriggerInterval is how often PairTrade polls its trigger source.
const pairTriggerInterval = 30 * time.Second

// TriggerRow is the external signal PairTrade consults to decide its
// preferred token and whether to flip. No concrete venue is named here,
// so this is modeled as its own small port a deployment backs with
// whatever signal source it has (a model service, a simple
// moving-average crossover, etc.).
type TriggerRow struct {
	PreferredInitialToken string // "A" | "B"
	TriggerSwap           bool
	CurrentDirection      string // "A" | "B": the token the trigger wants us holding
}

// TriggerSource fetches the current TriggerRow for a pair.
type TriggerSource interface {
	FetchTrigger(ctx context.Context, tokenAMint, tokenBMint string) (*TriggerRow, error)
}

// PairTrade rotates a trading wallet's balance between two tokens as an
// external trigger signal flips direction.
type PairTrade struct {
	strategyID   string
	walletPubkey string
	keypair      []byte
	platformFee  string
	platformBps  int

	store   Store
	chain   BalanceReader
	swap    SwapExecutor
	trigger TriggerSource

	mu             sync.Mutex
	processingSwap bool
	stopCh         chan struct{}
}

// NewPairTrade builds a PairTrade worker for one strategy. initialConfig
// is validated up front: allocation_percentage and max_slippage outside
// their documented ranges are a fatal construction error.
func NewPairTrade(strategyID, walletPubkey string, keypair []byte, platformFeeAccount string, platformFeeBps int, initialConfig models.PairTradeConfig, store Store, chain BalanceReader, swap SwapExecutor, trigger TriggerSource) (*PairTrade, error) {
	if err := models.ValidatePairTradeConfig(&initialConfig); err != nil {
		return nil, fmt.Errorf("workers: pair_trade %s: %w", strategyID, err)
	}
	return &PairTrade{
		strategyID: strategyID, walletPubkey: walletPubkey, keypair: keypair,
		platformFee: platformFeeAccount, platformBps: platformFeeBps,
		store: store, chain: chain, swap: swap, trigger: trigger,
		stopCh: make(chan struct{}),
	}, nil
}

func (w *PairTrade) ID() string { return w.strategyID }

func (w *PairTrade) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *PairTrade) Run(ctx context.Context) {
	runTicker(ctx, w.stopCh, pairTriggerInterval, "PAIRTRADE", w.tick)
}

// tryLockSwap is a single-flight guard: a second invocation while a swap
// is in flight returns immediately.
func (w *PairTrade) tryLockSwap() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processingSwap {
		return false
	}
	w.processingSwap = true
	return true
}

func (w *PairTrade) unlockSwap() {
	w.mu.Lock()
	w.processingSwap = false
	w.mu.Unlock()
}

func (w *PairTrade) tick(ctx context.Context) {
	if !w.tryLockSwap() {
		return
	}
	defer w.unlockSwap()

	strategy, err := w.store.Get(w.strategyID)
	if err != nil {
		log.Printf("[PAIRTRADE][ERROR] loading strategy %s: %v", w.strategyID, err)
		return
	}
	if strategy == nil || !strategy.IsActive {
		return
	}

	var cfg models.PairTradeConfig
	if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
		log.Printf("[PAIRTRADE][ERROR] decoding config for %s: %v", w.strategyID, err)
		return
	}
	if err := models.ValidatePairTradeConfig(&cfg); err != nil {
		log.Printf("[PAIRTRADE][ERROR] config for %s: %v", w.strategyID, err)
		return
	}

	row, err := w.trigger.FetchTrigger(ctx, cfg.TokenAMint, cfg.TokenBMint)
	if err != nil {
		log.Printf("[PAIRTRADE][WARN] trigger fetch failed for %s: %v", w.strategyID, err)
		return
	}

	if !cfg.PositionEstablished {
		w.establishInitialPosition(ctx, &cfg, row)
		w.persist(&cfg)
		return
	}

	if row.TriggerSwap && row.CurrentDirection != cfg.CurrentToken {
		w.flip(ctx, &cfg)
		w.persist(&cfg)
	}
}

func (w *PairTrade) mintFor(cfg *models.PairTradeConfig, token string) string {
	if token == models.PairTokenA {
		return cfg.TokenAMint
	}
	return cfg.TokenBMint
}

func (w *PairTrade) establishInitialPosition(ctx context.Context, cfg *models.PairTradeConfig, row *TriggerRow) {
	balance, err := w.chain.NativeBalance(ctx, w.walletPubkey)
	if err != nil {
		log.Printf("[PAIRTRADE][WARN] balance read failed establishing position for %s: %v", w.strategyID, err)
		return
	}
	amount := percentageOfBalance(balance, cfg.AllocationPercentage)
	if amount == 0 {
		return
	}

	target := row.PreferredInitialToken
	if target == "" {
		target = models.PairTokenA
	}

	req := &models.SwapRequest{
		InputMint: cfg.TokenAMint, OutputMint: w.mintFor(cfg, target),
		Amount: amount, SlippageBps: int(cfg.MaxSlippage * 100), WalletKeypair: w.keypair,
	}
	result, err := w.swap.Execute(ctx, req, w.strategyID, string(models.KindPairTrade), w.walletPubkey, w.platformFee, w.platformBps)
	if err != nil {
		log.Printf("[PAIRTRADE][WARN] initial position swap failed for %s: %v", w.strategyID, err)
		return
	}

	cfg.CurrentToken = target
	cfg.PositionEstablished = true
	now := time.Now()
	cfg.LastSwapTimestamp = &now
	cfg.SwapHistory = append(cfg.SwapHistory, models.PairSwap{
		Timestamp: now, FromToken: models.PairTokenA, ToToken: target, Amount: float64(amount), Signature: result.Signature,
	})
	log.Printf("[PAIRTRADE][INFO] strategy %s established initial position in token %s", w.strategyID, target)
}

func (w *PairTrade) flip(ctx context.Context, cfg *models.PairTradeConfig) {
	heldMint := w.mintFor(cfg, cfg.CurrentToken)
	otherToken := models.PairTokenB
	if cfg.CurrentToken == models.PairTokenB {
		otherToken = models.PairTokenA
	}
	otherMint := w.mintFor(cfg, otherToken)

	balance, err := w.chain.TokenBalance(ctx, w.walletPubkey, heldMint)
	if err != nil {
		log.Printf("[PAIRTRADE][WARN] held-token balance read failed for %s: %v", w.strategyID, err)
		return
	}
	amount := percentageOfBalance(balance, cfg.AllocationPercentage)
	if amount == 0 {
		return
	}

	req := &models.SwapRequest{
		InputMint: heldMint, OutputMint: otherMint, Amount: amount,
		SlippageBps: int(cfg.MaxSlippage * 100), WalletKeypair: w.keypair,
	}
	result, err := w.swap.Execute(ctx, req, w.strategyID, string(models.KindPairTrade), w.walletPubkey, w.platformFee, w.platformBps)
	if err != nil {
		log.Printf("[PAIRTRADE][WARN] flip swap failed for %s: %v", w.strategyID, err)
		w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: false, ErrorMessage: err.Error()})
		return
	}

	now := time.Now()
	cfg.SwapHistory = append(cfg.SwapHistory, models.PairSwap{
		Timestamp: now, FromToken: cfg.CurrentToken, ToToken: otherToken, Amount: float64(amount), Signature: result.Signature,
	})
	cfg.CurrentToken = otherToken
	cfg.LastSwapTimestamp = &now

	w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: now, Success: true, Signature: result.Signature, Amount: float64(amount)})
	log.Printf("[PAIRTRADE][INFO] strategy %s flipped to token %s", w.strategyID, otherToken)
}

func (w *PairTrade) persist(cfg *models.PairTradeConfig) {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		log.Printf("[PAIRTRADE][ERROR] re-encoding config for %s: %v", w.strategyID, err)
		return
	}
	if err := w.store.UpdateConfig(w.strategyID, encoded); err != nil {
		log.Printf("[PAIRTRADE][ERROR] persisting config for %s: %v", w.strategyID, err)
	}
}
