package workers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"tradedaemon/internal/models"
)

// priceCheckInterval is how often PriceMonitor polls the oracle.
const priceCheckInterval = 60 * time.Second

// priceCooldown is the minimum gap enforced between fires.
const priceCooldown = 300 * time.Second

// PriceMonitor fires a one-shot sell when price crosses a target, then
// auto-pauses its own strategy.
type PriceMonitor struct {
	strategyID      string
	walletPubkey    string
	keypair         []byte
	nativeMint      string
	quoteMint       string
	platformFee     string
	platformFeeBps  int

	store  Store
	prices PriceSource
	chain  BalanceReader
	swap   SwapExecutor

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewPriceMonitor builds a PriceMonitor for one strategy. nativeMint and
// quoteMint identify the sell-from / sell-to legs (native token → quote
// stablecoin).
func NewPriceMonitor(strategyID, walletPubkey string, keypair []byte, nativeMint, quoteMint, platformFeeAccount string, platformFeeBps int, store Store, prices PriceSource, chain BalanceReader, swap SwapExecutor) *PriceMonitor {
	return &PriceMonitor{
		strategyID:     strategyID,
		walletPubkey:   walletPubkey,
		keypair:        keypair,
		nativeMint:     nativeMint,
		quoteMint:      quoteMint,
		platformFee:    platformFeeAccount,
		platformFeeBps: platformFeeBps,
		store:          store,
		prices:         prices,
		chain:          chain,
		swap:           swap,
		stopCh:         make(chan struct{}),
	}
}

func (w *PriceMonitor) ID() string { return w.strategyID }

// Stop is idempotent: closing an already-closed channel would panic, so a
// mutex guards a single close.
func (w *PriceMonitor) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *PriceMonitor) Run(ctx context.Context) {
	runTicker(ctx, w.stopCh, priceCheckInterval, "PRICEMONITOR", w.tick)
}

func (w *PriceMonitor) tick(ctx context.Context) {
	strategy, err := w.store.Get(w.strategyID)
	if err != nil {
		log.Printf("[PRICEMONITOR][ERROR] loading strategy %s: %v", w.strategyID, err)
		return
	}
	if strategy == nil || !strategy.IsActive {
		return
	}

	var cfg models.PriceMonitorConfig
	if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
		log.Printf("[PRICEMONITOR][ERROR] decoding config for %s: %v", w.strategyID, err)
		return
	}
	if cfg.Completed {
		return
	}

	price, err := w.prices.GetPrice(ctx, w.nativeMint)
	if err != nil {
		log.Printf("[PRICEMONITOR][WARN] price fetch failed for %s: %v", w.strategyID, err)
		return
	}

	triggered := (cfg.Direction == models.PriceDirectionAbove && price >= cfg.TargetPrice) ||
		(cfg.Direction == models.PriceDirectionBelow && price <= cfg.TargetPrice)
	if !triggered {
		return
	}

	// Freshness check: re-read is_active from the Store immediately
	// before acting, since another worker may have paused it meanwhile.
	fresh, err := w.store.Get(w.strategyID)
	if err != nil || fresh == nil || !fresh.IsActive {
		return
	}

	if !cfg.LastTriggeredAt.IsZero() && time.Since(cfg.LastTriggeredAt) < priceCooldown {
		return
	}

	balance, err := w.chain.NativeBalance(ctx, w.walletPubkey)
	if err != nil {
		log.Printf("[PRICEMONITOR][WARN] balance read failed for %s: %v", w.strategyID, err)
		return
	}
	amount := percentageOfBalance(balance, cfg.PercentageToSell)
	if amount == 0 {
		return
	}

	req := &models.SwapRequest{
		InputMint: w.nativeMint, OutputMint: w.quoteMint, Amount: amount,
		SlippageBps: 50, WalletKeypair: w.keypair,
	}
	result, err := w.swap.Execute(ctx, req, w.strategyID, string(models.KindPriceMonitor), w.walletPubkey, w.platformFee, w.platformFeeBps)
	if err != nil {
		log.Printf("[PRICEMONITOR][WARN] swap failed for %s: %v", w.strategyID, err)
		w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: false, ErrorMessage: err.Error()})
		return
	}

	cfg.Completed = true
	cfg.LastTriggeredAt = time.Now()
	encoded, err := json.Marshal(cfg)
	if err != nil {
		log.Printf("[PRICEMONITOR][ERROR] re-encoding config for %s: %v", w.strategyID, err)
		return
	}
	if err := w.store.UpdateConfig(w.strategyID, encoded); err != nil {
		log.Printf("[PRICEMONITOR][ERROR] persisting config for %s: %v", w.strategyID, err)
	}
	if err := w.store.UpdateActive(w.strategyID, false); err != nil {
		log.Printf("[PRICEMONITOR][ERROR] auto-pausing %s: %v", w.strategyID, err)
	}
	w.store.AppendTrade(w.strategyID, models.TradeLogItem{
		Timestamp: time.Now(), Success: true, Signature: result.Signature,
		Amount: float64(amount), Profit: 0,
	})

	log.Printf("[PRICEMONITOR][INFO] strategy %s fired and auto-paused: %s", w.strategyID, result.Message)
	w.Stop()
}
