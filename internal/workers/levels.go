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

// levelsCheckInterval polls the price oracle often enough to catch a
// crossing between two adjacent levels without spec-specifying a stricter
// bound; 60s matches PriceMonitor's cadence.
const levelsCheckInterval = 60 * time.Second

// levelsFeeReserve mirrors internal/swap.FeeReserveLamports without
// importing the swap package's retry machinery into a balance-sizing
// decision.
const levelsFeeReserve = 5_000_000

// Levels executes a ladder of buy/sell triggers as price crosses each
// rung.
type Levels struct {
	strategyID   string
	walletPubkey string
	keypair      []byte
	nativeMint   string
	usdcMint     string
	platformFee  string
	platformBps  int

	store  Store
	prices PriceSource
	chain  BalanceReader
	swap   SwapExecutor

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewLevels builds a Levels worker for one strategy. Any rung in
// initialConfig.Levels with a non-positive price or an out-of-range
// sol_percentage is dropped and the filtered config persisted back to the
// Store immediately, so a malformed ladder never reaches the tick loop.
func NewLevels(strategyID, walletPubkey string, keypair []byte, nativeMint, usdcMint, platformFeeAccount string, platformFeeBps int, initialConfig models.LevelsConfig, store Store, prices PriceSource, chain BalanceReader, swap SwapExecutor) (*Levels, error) {
	filtered := models.FilterValidLevels(initialConfig.Levels)
	if len(filtered) != len(initialConfig.Levels) {
		initialConfig.Levels = filtered
		encoded, err := json.Marshal(initialConfig)
		if err != nil {
			return nil, fmt.Errorf("workers: levels %s: re-encoding filtered config: %w", strategyID, err)
		}
		if err := store.UpdateConfig(strategyID, encoded); err != nil {
			return nil, fmt.Errorf("workers: levels %s: persisting filtered config: %w", strategyID, err)
		}
	}
	return &Levels{
		strategyID: strategyID, walletPubkey: walletPubkey, keypair: keypair,
		nativeMint: nativeMint, usdcMint: usdcMint, platformFee: platformFeeAccount, platformBps: platformFeeBps,
		store: store, prices: prices, chain: chain, swap: swap,
		stopCh: make(chan struct{}),
	}, nil
}

func (w *Levels) ID() string { return w.strategyID }

func (w *Levels) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *Levels) Run(ctx context.Context) {
	runTicker(ctx, w.stopCh, levelsCheckInterval, "LEVELS", w.tick)
}

func cooldownExpired(level models.Level) bool {
	return level.CooldownUntil == nil || time.Now().After(*level.CooldownUntil)
}

func eligible(level models.Level) bool {
	return !level.PermanentlyDisabled && (!level.Executed || cooldownExpired(level))
}

// isTriggered implements the crossing rule: limit_buy and
// stop_loss trigger on a downward crossing (or first observation at/below
// the rung); take_profit triggers on an upward crossing (or first
// observation at/above the rung). hasLastPrice distinguishes "no prior
// sample" from a genuine lastPrice of 0.
func isTriggered(level models.Level, lastPrice, price float64, hasLastPrice bool) bool {
	switch level.Type {
	case models.LevelLimitBuy, models.LevelStopLoss:
		if !hasLastPrice {
			return price <= level.Price
		}
		return lastPrice > level.Price && price <= level.Price
	case models.LevelTakeProfit:
		if !hasLastPrice {
			return price >= level.Price
		}
		return lastPrice < level.Price && price >= level.Price
	default:
		return false
	}
}

func (w *Levels) tick(ctx context.Context) {
	strategy, err := w.store.Get(w.strategyID)
	if err != nil {
		log.Printf("[LEVELS][ERROR] loading strategy %s: %v", w.strategyID, err)
		return
	}
	if strategy == nil || !strategy.IsActive {
		return
	}

	var cfg models.LevelsConfig
	if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
		log.Printf("[LEVELS][ERROR] decoding config for %s: %v", w.strategyID, err)
		return
	}
	cfg.Levels = models.FilterValidLevels(cfg.Levels)

	price, err := w.prices.GetPrice(ctx, w.nativeMint)
	if err != nil {
		log.Printf("[LEVELS][WARN] price fetch failed for %s: %v", w.strategyID, err)
		return
	}

	changed := false
	for i := range cfg.Levels {
		level := &cfg.Levels[i]
		if !eligible(*level) {
			continue
		}
		if !isTriggered(*level, cfg.LastPrice, price, cfg.HasLastPrice) {
			continue
		}

		fresh, err := w.store.Get(w.strategyID)
		if err != nil || fresh == nil || !fresh.IsActive {
			return
		}

		w.execute(ctx, level, &cfg)
		changed = true
	}

	cfg.LastPrice = price
	cfg.HasLastPrice = true

	stillEligible := false
	for _, level := range cfg.Levels {
		if eligible(level) {
			stillEligible = true
			break
		}
	}
	if !stillEligible && changed {
		if cfg.AutoRestartAfterComplete {
			for i := range cfg.Levels {
				cfg.Levels[i].Executed = false
				cfg.Levels[i].CooldownUntil = nil
			}
		} else {
			if err := w.store.UpdateActive(w.strategyID, false); err != nil {
				log.Printf("[LEVELS][ERROR] deactivating completed strategy %s: %v", w.strategyID, err)
			}
			defer w.Stop()
		}
	}

	encoded, err := json.Marshal(cfg)
	if err != nil {
		log.Printf("[LEVELS][ERROR] re-encoding config for %s: %v", w.strategyID, err)
		return
	}
	if err := w.store.UpdateConfig(w.strategyID, encoded); err != nil {
		log.Printf("[LEVELS][ERROR] persisting config for %s: %v", w.strategyID, err)
	}
}

func (w *Levels) execute(ctx context.Context, level *models.Level, cfg *models.LevelsConfig) {
	var amount uint64
	var inMint, outMint string

	if cfg.Mode == models.LevelsModeBuy {
		if level.USDCAmount == nil {
			w.recordFailure(level, "limit_buy level has no usdc_amount")
			return
		}
		balance, err := w.chain.TokenBalance(ctx, w.walletPubkey, w.usdcMint)
		if err != nil || float64(balance) < *level.USDCAmount {
			w.recordFailure(level, "insufficient USDC balance")
			return
		}
		inMint, outMint = w.usdcMint, w.nativeMint
		amount = uint64(*level.USDCAmount)
	} else {
		if level.SOLPercentage == nil {
			w.recordFailure(level, "sell level has no sol_percentage")
			return
		}
		balance, err := w.chain.NativeBalance(ctx, w.walletPubkey)
		if err != nil {
			w.recordFailure(level, "native balance read failed")
			return
		}
		if balance < levelsFeeReserve {
			w.recordFailure(level, "insufficient native balance")
			return
		}
		amount = percentageOfBalance(balance, *level.SOLPercentage)
		if amount > balance-levelsFeeReserve {
			amount = balance - levelsFeeReserve
		}
		if float64(amount) < models.MinLevelsTradeAmount {
			w.recordFailure(level, "sized amount below minimum trade amount")
			return
		}
		inMint, outMint = w.nativeMint, w.usdcMint
	}

	req := &models.SwapRequest{InputMint: inMint, OutputMint: outMint, Amount: amount, SlippageBps: 50, WalletKeypair: w.keypair}
	result, err := w.swap.Execute(ctx, req, w.strategyID, string(models.KindLevels), w.walletPubkey, w.platformFee, w.platformBps)
	if err != nil {
		w.recordFailure(level, err.Error())
		return
	}

	now := time.Now()
	level.Executed = true
	level.ExecutedCount++
	level.ExecutedAt = &now
	cooldown := now.Add(time.Duration(cfg.CooldownHours * float64(time.Hour)))
	level.CooldownUntil = &cooldown
	if level.ExecutedCount >= cfg.MaxRetriggers {
		level.PermanentlyDisabled = true
	}
	level.ExecutionHistory = append(level.ExecutionHistory, models.LevelExecution{Timestamp: now, Success: true, Amount: float64(amount)})

	w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: now, Success: true, Signature: result.Signature, Amount: float64(amount)})
	log.Printf("[LEVELS][INFO] strategy %s level %s executed: %s", w.strategyID, level.ID, result.Message)
}

func (w *Levels) recordFailure(level *models.Level, reason string) {
	level.ExecutionHistory = append(level.ExecutionHistory, models.LevelExecution{Timestamp: time.Now(), Success: false, Error: reason})
	w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: false, ErrorMessage: reason})
	log.Printf("[LEVELS][WARN] strategy %s level %s failed: %s", w.strategyID, level.ID, reason)
}
