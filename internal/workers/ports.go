// Package workers implements the Worker interface and its six concrete
// strategy state machines: one independent task per strategy, each with
// its own trigger conditions, cooldowns, idempotency keys, and auto-pause
// rules.
package workers

import (
	"context"
	"encoding/json"

	"tradedaemon/internal/eventbus"
	"tradedaemon/internal/models"
)

// Worker is one running strategy instance. The Supervisor holds at most
// one live Worker per strategy id.
type Worker interface {
	ID() string
	Run(ctx context.Context)
	Stop()
}

// Store is the subset of the Strategy Store a worker needs. Narrower than
// store.Store so workers can be tested against fakes without a database.
type Store interface {
	Get(id string) (*models.Strategy, error)
	UpdateActive(id string, active bool) error
	UpdateConfig(id string, config json.RawMessage) error
	UpdatePosition(id string, isOpen bool, position *models.PerpPosition) error
	AppendTrade(strategyID string, trade models.TradeLogItem) error
}

// PriceSource resolves a mint to its current USD price (internal/oracle.PriceOracle).
type PriceSource interface {
	GetPrice(ctx context.Context, mint string) (float64, error)
}

// BalanceReader is the subset of the Chain RPC client workers need to read
// wallet balances (internal/chainrpc.Client).
type BalanceReader interface {
	NativeBalance(ctx context.Context, pubkey string) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint string) (uint64, error)
}

// Transferer submits a plain native transfer (used by the Vault worker,
// which moves captured profit rather than swapping it).
type Transferer interface {
	TransferNative(ctx context.Context, fromKeypair []byte, toPubkey string, lamports uint64) (signature string, err error)
}

// SwapExecutor is the subset of internal/swap.Driver workers call through.
type SwapExecutor interface {
	Execute(ctx context.Context, req *models.SwapRequest, strategyID, strategyKind, walletPubkey, platformFeeAccount string, platformFeeBps int) (*models.SwapResult, error)
}

// Bus is the subset of internal/eventbus.Bus workers depend on.
type Bus interface {
	Subscribe(fn eventbus.Handler) eventbus.Handle
	Unsubscribe(h eventbus.Handle)
	Publish(event eventbus.TradeSuccessEvent)
}
