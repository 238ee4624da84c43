package supervisor

import (
	"encoding/json"
	"fmt"

	"tradedaemon/internal/chainrpc"
	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/models"
	"tradedaemon/internal/oracle"
	"tradedaemon/internal/swap"
	"tradedaemon/internal/workers"
)

// WorkerFactory builds a concrete Worker for one strategy row, wiring in
// the shared infrastructure every kind needs. It implements Factory.
type WorkerFactory struct {
	Store          workers.Store
	Prices         oracle.PriceOracle
	Chain          *chainrpc.Client
	Swap           *swap.Driver
	Bus            *eventbus.Bus
	NativeMint     string
	QuoteMint      string
	PlatformFee    string
	PlatformFeeBps int

	// Trigger and Venue back PairTrade and PerpPosition, whose pair-signal
	// source and perpetuals venue have no named concrete implementation.
	// A strategy of that kind is skipped with a logged error, retried on
	// the next reconcile cycle, if unset.
	Trigger workers.TriggerSource
	Venue   workers.PerpVenue
}

// Build constructs the Worker for strategy, using keypair as its decrypted
// wallet material.
func (f *WorkerFactory) Build(strategy *models.Strategy, wallet models.TradingWallet, keypair []byte) (workers.Worker, error) {
	id := strategy.ID.String()
	pubkey := wallet.PublicKey

	switch strategy.Kind {
	case models.KindPriceMonitor:
		return workers.NewPriceMonitor(id, pubkey, keypair, f.NativeMint, f.QuoteMint, f.PlatformFee, f.PlatformFeeBps, f.Store, f.Prices, f.Chain, f.Swap), nil

	case models.KindWalletMonitor:
		return workers.NewWalletMonitor(id, pubkey, keypair, f.NativeMint, f.Store, f.Chain, f.Swap, &chainSubscriber{f.Chain}, &chainSwapParser{f.Chain}), nil

	case models.KindVault:
		var cfg models.VaultConfig
		if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
			return nil, fmt.Errorf("supervisor: strategy %s: decoding vault config: %w", id, err)
		}
		return workers.NewVault(id, pubkey, keypair, f.NativeMint, cfg, f.Store, f.Chain, f.Chain, f.Bus)

	case models.KindLevels:
		var cfg models.LevelsConfig
		if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
			return nil, fmt.Errorf("supervisor: strategy %s: decoding levels config: %w", id, err)
		}
		return workers.NewLevels(id, pubkey, keypair, f.NativeMint, f.QuoteMint, f.PlatformFee, f.PlatformFeeBps, cfg, f.Store, f.Prices, f.Chain, f.Swap)

	case models.KindPairTrade:
		if f.Trigger == nil {
			return nil, fmt.Errorf("supervisor: strategy %s is pair_trade but no trigger source is configured", id)
		}
		var cfg models.PairTradeConfig
		if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
			return nil, fmt.Errorf("supervisor: strategy %s: decoding pair_trade config: %w", id, err)
		}
		return workers.NewPairTrade(id, pubkey, keypair, f.PlatformFee, f.PlatformFeeBps, cfg, f.Store, f.Chain, f.Swap, f.Trigger)

	case models.KindPerpPosition:
		if f.Venue == nil {
			return nil, fmt.Errorf("supervisor: strategy %s is perp_position but no venue is configured", id)
		}
		var cfg models.PerpPositionConfig
		if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
			return nil, fmt.Errorf("supervisor: strategy %s: decoding perp_position config: %w", id, err)
		}
		return workers.NewPerpPosition(id, pubkey, keypair, cfg, f.Store, f.Venue, f.Bus)

	default:
		return nil, fmt.Errorf("supervisor: unknown strategy kind %q for %s", strategy.Kind, id)
	}
}
