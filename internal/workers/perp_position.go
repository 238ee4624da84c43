package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/models"
)

// perpCheckInterval is how often PerpPosition polls the venue.
const perpCheckInterval = 5 * time.Second

// PerpVenue is the perpetual-futures venue PerpPosition trades against.
// No concrete venue is named here; this is the seam a real deployment
// implements against its margin/perps program.
type PerpVenue interface {
	MarkPrice(ctx context.Context, marketIndex int) (float64, error)
	CurrentPosition(ctx context.Context, walletPubkey string, marketIndex int) (*models.PerpPosition, error)
	FreeCollateral(ctx context.Context, walletPubkey string) (float64, error)
	DepositCollateral(ctx context.Context, keypair []byte, amount float64) error
	OpenPosition(ctx context.Context, keypair []byte, marketIndex int, direction models.PerpDirection, sizeBaseUnits float64) (signature string, err error)
	ClosePosition(ctx context.Context, keypair []byte, marketIndex int) (signature string, err error)
}

// PerpPosition synchronizes an in-memory perpetual futures position
// against a venue and opens/closes it per configured entry/exit rules.
type PerpPosition struct {
	strategyID   string
	walletPubkey string
	keypair      []byte

	store Store
	venue PerpVenue
	bus   Bus

	mu                 sync.Mutex
	processingOrder    bool
	bootstrapped       bool
	stopCh             chan struct{}
}

// NewPerpPosition builds a PerpPosition worker for one strategy.
// initialConfig is validated up front: a leverage outside its documented
// range is a fatal construction error.
func NewPerpPosition(strategyID, walletPubkey string, keypair []byte, initialConfig models.PerpPositionConfig, store Store, venue PerpVenue, bus Bus) (*PerpPosition, error) {
	if err := models.ValidatePerpPositionConfig(&initialConfig); err != nil {
		return nil, fmt.Errorf("workers: perp_position %s: %w", strategyID, err)
	}
	return &PerpPosition{
		strategyID: strategyID, walletPubkey: walletPubkey, keypair: keypair,
		store: store, venue: venue, bus: bus, stopCh: make(chan struct{}),
	}, nil
}

func (w *PerpPosition) ID() string { return w.strategyID }

func (w *PerpPosition) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *PerpPosition) Run(ctx context.Context) {
	runTicker(ctx, w.stopCh, perpCheckInterval, "PERPPOSITION", w.tick)
}

func (w *PerpPosition) tryLockOrder() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processingOrder {
		return false
	}
	w.processingOrder = true
	return true
}

func (w *PerpPosition) unlockOrder() {
	w.mu.Lock()
	w.processingOrder = false
	w.mu.Unlock()
}

func shouldOpen(price float64, cfg *models.PerpPositionConfig) bool {
	if cfg.Direction == models.PerpLong {
		return price <= cfg.EntryPrice
	}
	return price >= cfg.EntryPrice
}

func shouldClose(price float64, cfg *models.PerpPositionConfig) bool {
	if cfg.StopLoss != nil {
		if cfg.Direction == models.PerpLong && price <= *cfg.StopLoss {
			return true
		}
		if cfg.Direction == models.PerpShort && price >= *cfg.StopLoss {
			return true
		}
	}
	if cfg.TakeProfit != nil {
		if cfg.Direction == models.PerpLong && price >= *cfg.TakeProfit {
			return true
		}
		if cfg.Direction == models.PerpShort && price <= *cfg.TakeProfit {
			return true
		}
	}
	if cfg.Direction == models.PerpLong && price >= cfg.ExitPrice {
		return true
	}
	if cfg.Direction == models.PerpShort && price <= cfg.ExitPrice {
		return true
	}
	return false
}

func (w *PerpPosition) tick(ctx context.Context) {
	if !w.tryLockOrder() {
		return
	}
	defer w.unlockOrder()

	strategy, err := w.store.Get(w.strategyID)
	if err != nil {
		log.Printf("[PERPPOSITION][ERROR] loading strategy %s: %v", w.strategyID, err)
		return
	}
	if strategy == nil || !strategy.IsActive {
		return
	}

	var cfg models.PerpPositionConfig
	if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
		log.Printf("[PERPPOSITION][ERROR] decoding config for %s: %v", w.strategyID, err)
		return
	}
	if err := models.ValidatePerpPositionConfig(&cfg); err != nil {
		log.Printf("[PERPPOSITION][ERROR] config for %s: %v", w.strategyID, err)
		return
	}

	if !w.bootstrapped {
		w.bootstrapCollateral(ctx, &cfg)
		w.bootstrapped = true
	}

	price, err := w.venue.MarkPrice(ctx, cfg.MarketIndex)
	if err != nil {
		log.Printf("[PERPPOSITION][WARN] mark price fetch failed for %s: %v", w.strategyID, err)
		return
	}

	venuePosition, err := w.venue.CurrentPosition(ctx, w.walletPubkey, cfg.MarketIndex)
	if err != nil {
		log.Printf("[PERPPOSITION][WARN] position sync failed for %s: %v", w.strategyID, err)
		return
	}

	changed := syncPositionState(&cfg, venuePosition)
	if changed {
		if err := w.store.UpdatePosition(w.strategyID, cfg.IsPositionOpen, cfg.CurrentPosition); err != nil {
			log.Printf("[PERPPOSITION][ERROR] persisting position sync for %s: %v", w.strategyID, err)
		}
	}

	if !cfg.IsPositionOpen && shouldOpen(price, &cfg) {
		w.open(ctx, &cfg, price)
		return
	}
	if cfg.IsPositionOpen && shouldClose(price, &cfg) {
		w.close(ctx, &cfg)
	}
}

// syncPositionState reconciles local config state with the venue's view.
// Any disagreement is resolved silently by adopting the venue's state.
func syncPositionState(cfg *models.PerpPositionConfig, venuePosition *models.PerpPosition) bool {
	wasOpen := cfg.IsPositionOpen
	cfg.IsPositionOpen = venuePosition != nil
	cfg.CurrentPosition = venuePosition
	return wasOpen != cfg.IsPositionOpen
}

func (w *PerpPosition) bootstrapCollateral(ctx context.Context, cfg *models.PerpPositionConfig) {
	balance, err := w.venue.FreeCollateral(ctx, w.walletPubkey)
	if err != nil {
		log.Printf("[PERPPOSITION][WARN] collateral check failed for %s: %v", w.strategyID, err)
		return
	}
	target := balance * cfg.AllocationPercentage / 100.0 * 0.8
	if balance >= target {
		return
	}
	shortfall := target - balance
	if err := w.venue.DepositCollateral(ctx, w.keypair, shortfall); err != nil {
		log.Printf("[PERPPOSITION][WARN] collateral deposit failed for %s: %v", w.strategyID, err)
	}
}

func (w *PerpPosition) open(ctx context.Context, cfg *models.PerpPositionConfig, price float64) {
	collateral, err := w.venue.FreeCollateral(ctx, w.walletPubkey)
	if err != nil {
		log.Printf("[PERPPOSITION][WARN] collateral read failed opening position for %s: %v", w.strategyID, err)
		return
	}
	size := collateral * cfg.Leverage / price
	if size <= 0 {
		return
	}

	signature, err := w.venue.OpenPosition(ctx, w.keypair, cfg.MarketIndex, cfg.Direction, size)
	if err != nil {
		log.Printf("[PERPPOSITION][WARN] opening position failed for %s: %v", w.strategyID, err)
		w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: false, ErrorMessage: err.Error()})
		return
	}

	cfg.IsPositionOpen = true
	cfg.OrderHistory = append(cfg.OrderHistory, models.OrderHistoryItem{Timestamp: time.Now(), Action: "open", Signature: signature, Price: price})
	w.persistAndLog(cfg, "open", signature, price, size)
}

func (w *PerpPosition) close(ctx context.Context, cfg *models.PerpPositionConfig) {
	var size float64
	if cfg.CurrentPosition != nil {
		size = cfg.CurrentPosition.BaseQty
	}

	signature, err := w.venue.ClosePosition(ctx, w.keypair, cfg.MarketIndex)
	if err != nil {
		log.Printf("[PERPPOSITION][WARN] closing position failed for %s: %v", w.strategyID, err)
		w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: false, ErrorMessage: err.Error()})
		return
	}

	price := cfg.ExitPrice
	if cfg.CurrentPosition != nil {
		price = cfg.CurrentPosition.CurrentPrice
	}
	cfg.OrderHistory = append(cfg.OrderHistory, models.OrderHistoryItem{Timestamp: time.Now(), Action: "close", Signature: signature, Price: price})
	cfg.IsPositionOpen = false
	cfg.CurrentPosition = nil
	w.persistAndLog(cfg, "close", signature, price, size)
}

// persistAndLog writes the full config (order_history included) rather
// than calling Store.UpdatePosition, which only knows about the
// open/closed flag and the position snapshot, not the order history this
// operation also changed. It also publishes a TradeSuccessEvent so a
// Vault worker on the same wallet can capture a share of the proceeds,
// matching how the swap driver publishes for the other strategy kinds.
func (w *PerpPosition) persistAndLog(cfg *models.PerpPositionConfig, action, signature string, price, amount float64) {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		log.Printf("[PERPPOSITION][ERROR] encoding config for %s: %v", w.strategyID, err)
		return
	}
	if err := w.store.UpdateConfig(w.strategyID, encoded); err != nil {
		log.Printf("[PERPPOSITION][ERROR] persisting position for %s: %v", w.strategyID, err)
	}
	w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: true, Signature: signature, Amount: amount})
	w.bus.Publish(eventbus.TradeSuccessEvent{
		StrategyID:          w.strategyID,
		TradingWalletPubkey: w.walletPubkey,
		StrategyKind:        string(models.KindPerpPosition),
		Signature:           signature,
		Timestamp:           time.Now(),
		Amount:              amount,
	})
	log.Printf("[PERPPOSITION][INFO] strategy %s %sed position (sig=%s)", w.strategyID, action, signature)
}
