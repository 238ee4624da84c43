package workers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"tradedaemon/internal/models"
)

// maxRecentTransactions bounds WalletMonitor's dedup set.
const maxRecentTransactions = 50

// recentTransactionTTL evicts entries older than one hour.
const recentTransactionTTL = time.Hour

// LogEvent is one subscription callback delivered for the watched wallet.
type LogEvent struct {
	Signature string
	Err       string
}

// Subscriber is the subset of internal/chainrpc.Client WalletMonitor
// needs to open and close an account-level log subscription.
type Subscriber interface {
	OnLogs(address string, fn func(LogEvent)) uint64
	RemoveOnLogs(handle uint64)
}

// SwapParser extracts the watched wallet's own swap amount and pre-swap
// balance from a confirmed transaction signature, so WalletMonitor can
// size a proportional mirror. No concrete chain parser is named here;
// this is the seam a deployment backs with real transaction-log parsing.
type SwapParser interface {
	ParseSwap(ctx context.Context, signature, watchedWallet string) (amount, preBalance float64, ok bool, err error)
}

type recentEntry struct {
	signature string
	seenAt    time.Time
}

// WalletMonitor mirrors a percentage of a watched wallet's swaps into this
// strategy's own trading wallet.
type WalletMonitor struct {
	strategyID   string
	walletPubkey string
	keypair      []byte
	nativeMint   string

	store  Store
	chain  BalanceReader
	swap   SwapExecutor
	sub    Subscriber
	parser SwapParser

	mu                 sync.Mutex
	recent             []recentEntry
	processing         map[string]bool
	lastProcessedSig   string
	subHandle          uint64
	stopCh             chan struct{}
}

// NewWalletMonitor builds a WalletMonitor for one strategy.
func NewWalletMonitor(strategyID, walletPubkey string, keypair []byte, nativeMint string, store Store, chain BalanceReader, swap SwapExecutor, sub Subscriber, parser SwapParser) *WalletMonitor {
	return &WalletMonitor{
		strategyID: strategyID, walletPubkey: walletPubkey, keypair: keypair, nativeMint: nativeMint,
		store: store, chain: chain, swap: swap, sub: sub, parser: parser,
		processing: make(map[string]bool), stopCh: make(chan struct{}),
	}
}

func (w *WalletMonitor) ID() string { return w.strategyID }

func (w *WalletMonitor) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// Run opens the log subscription on the watched wallet and blocks until
// stopped, unsubscribing on exit so no subscription outlives the worker.
func (w *WalletMonitor) Run(ctx context.Context) {
	strategy, err := w.store.Get(w.strategyID)
	if err != nil || strategy == nil {
		log.Printf("[WALLETMONITOR][ERROR] loading strategy %s at startup: %v", w.strategyID, err)
		return
	}
	var cfg models.WalletMonitorConfig
	if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
		log.Printf("[WALLETMONITOR][ERROR] decoding config for %s: %v", w.strategyID, err)
		return
	}

	w.subHandle = w.sub.OnLogs(cfg.WatchedWallet, func(e LogEvent) {
		w.onLog(context.Background(), &cfg, e)
	})
	defer w.sub.RemoveOnLogs(w.subHandle)

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

func (w *WalletMonitor) alreadySeen(signature string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if signature == w.lastProcessedSig || w.processing[signature] {
		return true
	}
	for _, e := range w.recent {
		if e.signature == signature {
			return true
		}
	}
	return false
}

func (w *WalletMonitor) markProcessing(signature string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processing[signature] = true
	w.recent = append(w.recent, recentEntry{signature: signature, seenAt: time.Now()})
	w.lastProcessedSig = signature
	w.evictLocked()
}

func (w *WalletMonitor) clearProcessing(signature string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processing, signature)
}

// evictLocked drops entries older than recentTransactionTTL, then trims
// to maxRecentTransactions oldest-first if still over the cap. Caller
// must hold w.mu.
func (w *WalletMonitor) evictLocked() {
	cutoff := time.Now().Add(-recentTransactionTTL)
	kept := w.recent[:0]
	for _, e := range w.recent {
		if e.seenAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	w.recent = kept

	if len(w.recent) > maxRecentTransactions {
		excess := len(w.recent) - maxRecentTransactions
		w.recent = w.recent[excess:]
	}
}

func (w *WalletMonitor) onLog(ctx context.Context, cfg *models.WalletMonitorConfig, event LogEvent) {
	if event.Err != "" {
		log.Printf("[WALLETMONITOR][WARN] log subscription error for %s: %s", w.strategyID, event.Err)
		return
	}
	if w.alreadySeen(event.Signature) {
		return // idempotence: a signature already processed is never replayed
	}
	w.markProcessing(event.Signature)
	defer w.clearProcessing(event.Signature)

	strategy, err := w.store.Get(w.strategyID)
	if err != nil || strategy == nil || !strategy.IsActive {
		return
	}

	theirAmount, theirPreBalance, ok, err := w.parser.ParseSwap(ctx, event.Signature, cfg.WatchedWallet)
	if err != nil {
		log.Printf("[WALLETMONITOR][WARN] parsing %s for %s: %v", event.Signature, w.strategyID, err)
		return
	}
	if !ok || theirPreBalance <= 0 {
		return // not a swap, or no meaningful balance reference
	}

	ourBalance, err := w.chain.NativeBalance(ctx, w.walletPubkey)
	if err != nil {
		log.Printf("[WALLETMONITOR][WARN] balance read failed for %s: %v", w.strategyID, err)
		return
	}
	allocated := percentageOfBalance(ourBalance, cfg.Percentage)
	mirrorAmount := uint64(float64(allocated) * (theirAmount / theirPreBalance))
	if mirrorAmount == 0 {
		return
	}

	req := &models.SwapRequest{InputMint: w.nativeMint, OutputMint: w.nativeMint, Amount: mirrorAmount, SlippageBps: 50, WalletKeypair: w.keypair}
	result, err := w.swap.Execute(ctx, req, w.strategyID, string(models.KindWalletMonitor), w.walletPubkey, "", 0)
	if err != nil {
		log.Printf("[WALLETMONITOR][WARN] mirror swap failed for %s: %v", w.strategyID, err)
		w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: false, ErrorMessage: err.Error()})
		return
	}

	w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: true, Signature: result.Signature, Amount: float64(mirrorAmount)})
	log.Printf("[WALLETMONITOR][INFO] strategy %s mirrored signature %s", w.strategyID, event.Signature)
}
