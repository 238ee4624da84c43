package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/models"
)

// Vault has no polling cadence; it reacts only to TradeSuccessEvent on the
// same trading wallet, excluding its own kind to prevent a capture
// transfer from being mistaken for the trade that funded it.
type Vault struct {
	strategyID   string
	walletPubkey string
	keypair      []byte
	nativeMint   string

	store      Store
	chain      BalanceReader
	transferer Transferer
	bus        Bus

	handle eventbus.Handle
	stopCh chan struct{}
}

// NewVault builds a Vault worker for one strategy. initialConfig is
// validated up front so a negative vault_percentage is a fatal
// construction error rather than a silently-wrong capture later.
func NewVault(strategyID, walletPubkey string, keypair []byte, nativeMint string, initialConfig models.VaultConfig, store Store, chain BalanceReader, transferer Transferer, bus Bus) (*Vault, error) {
	if err := models.ValidateVaultConfig(&initialConfig); err != nil {
		return nil, fmt.Errorf("workers: vault %s: %w", strategyID, err)
	}
	return &Vault{
		strategyID:   strategyID,
		walletPubkey: walletPubkey,
		keypair:      keypair,
		nativeMint:   nativeMint,
		store:        store,
		chain:        chain,
		transferer:   transferer,
		bus:          bus,
		stopCh:       make(chan struct{}),
	}, nil
}

func (w *Vault) ID() string { return w.strategyID }

// Run subscribes to the bus and blocks until ctx is cancelled or Stop is
// called, unsubscribing on exit.
func (w *Vault) Run(ctx context.Context) {
	w.handle = w.bus.Subscribe(w.onTradeEvent)
	defer w.bus.Unsubscribe(w.handle)

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

func (w *Vault) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// onTradeEvent runs synchronously inside Bus.Publish; it must never call
// Publish itself and should stay fast, since it blocks delivery to every
// other subscriber until it returns.
func (w *Vault) onTradeEvent(event eventbus.TradeSuccessEvent) {
	if event.TradingWalletPubkey != w.walletPubkey {
		return
	}
	if event.StrategyKind == string(models.KindVault) {
		return // self-kind filter: invariant 2
	}

	strategy, err := w.store.Get(w.strategyID)
	if err != nil || strategy == nil || !strategy.IsActive {
		return
	}

	var cfg models.VaultConfig
	if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
		log.Printf("[VAULT][ERROR] decoding config for %s: %v", w.strategyID, err)
		return
	}
	if err := models.ValidateVaultConfig(&cfg); err != nil {
		log.Printf("[VAULT][ERROR] config for %s: %v", w.strategyID, err)
		return
	}

	ctx := context.Background()
	balance, err := w.chain.NativeBalance(ctx, w.walletPubkey)
	if err != nil {
		log.Printf("[VAULT][WARN] balance read failed for %s: %v", w.strategyID, err)
		return
	}

	capture := percentageOfBalance(balance, cfg.VaultPercentage)
	if float64(capture) < models.MinVaultTransferAmount {
		return // below min_transfer_amount, skipped silently
	}

	signature, err := w.transferer.TransferNative(ctx, w.keypair, cfg.MainWalletPubkey, capture)
	if err != nil {
		log.Printf("[VAULT][WARN] capture transfer failed for %s: %v", w.strategyID, err)
		w.store.AppendTrade(w.strategyID, models.TradeLogItem{Timestamp: time.Now(), Success: false, ErrorMessage: err.Error()})
		return
	}

	w.store.AppendTrade(w.strategyID, models.TradeLogItem{
		Timestamp: time.Now(), Success: true, Signature: signature, Amount: float64(capture),
	})
	log.Printf("[VAULT][INFO] strategy %s captured %d base units to %s (sig=%s)", w.strategyID, capture, cfg.MainWalletPubkey, signature)
}
