package models

import "time"

// PriceMonitorConfig drives the PriceMonitor worker. One-shot: it
// auto-pauses the owning Strategy after a successful fire.
type PriceMonitorConfig struct {
	TargetPrice       float64 `json:"target_price"`
	Direction         string  `json:"direction"` // "above" | "below"
	PercentageToSell  float64 `json:"percentage_to_sell"`
	LastTriggeredAt   time.Time `json:"last_triggered_at,omitempty"`
	Completed         bool      `json:"completed"`
}

const (
	PriceDirectionAbove = "above"
	PriceDirectionBelow = "below"
)

// WalletMonitorConfig drives the WalletMonitor (mirror) worker.
type WalletMonitorConfig struct {
	WatchedWallet string  `json:"watched_wallet"`
	Percentage    float64 `json:"percentage"`
}

// VaultConfig drives the Vault (profit capture) worker.
// VaultPercentage is clamped to MaxVaultPercentage at construction.
type VaultConfig struct {
	VaultPercentage  float64 `json:"vault_percentage"`
	MainWalletPubkey string  `json:"main_wallet_pubkey"`
}

// MaxVaultPercentage is the hard ceiling on VaultPercentage, clamped at
// construction.
const MaxVaultPercentage = 50.0

// MinVaultTransferAmount is the smallest capture worth submitting as an
// on-chain transfer, denominated in lamports (native base units, the same
// unit BalanceReader.NativeBalance returns). 0.001 SOL.
const MinVaultTransferAmount = 1_000_000

// LevelType distinguishes the three kinds of ladder rung in a Levels
// strategy.
type LevelType string

const (
	LevelLimitBuy   LevelType = "limit_buy"
	LevelStopLoss   LevelType = "stop_loss"
	LevelTakeProfit LevelType = "take_profit"
)

// Level is one rung of a Levels (ladder) strategy.
type Level struct {
	ID                  string          `json:"id"`
	Type                LevelType       `json:"type"`
	Price               float64         `json:"price"`
	USDCAmount          *float64        `json:"usdc_amount,omitempty"`
	SOLPercentage       *float64        `json:"sol_percentage,omitempty"`
	Executed            bool            `json:"executed"`
	ExecutedCount       int             `json:"executed_count"`
	ExecutedAt          *time.Time      `json:"executed_at,omitempty"`
	CooldownUntil       *time.Time      `json:"cooldown_until,omitempty"`
	PermanentlyDisabled bool            `json:"permanently_disabled"`
	ExecutionHistory    []LevelExecution `json:"execution_history,omitempty"`
}

// LevelExecution is one entry in a Level's execution_history. Recorded on
// both success and failure so the ladder's history reflects losses too.
type LevelExecution struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Amount    float64   `json:"amount,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// LevelsConfig drives the Levels (ladder) worker.
type LevelsConfig struct {
	Mode                    string  `json:"mode"` // "buy" | "sell"
	Levels                  []Level `json:"levels"`
	CooldownHours           float64 `json:"cooldown_hours"`
	MaxRetriggers           int     `json:"max_retriggers"`
	AutoRestartAfterComplete bool   `json:"auto_restart_after_complete"`
	LastPrice               float64 `json:"last_price"`
	HasLastPrice            bool    `json:"has_last_price"`
}

const (
	LevelsModeBuy  = "buy"
	LevelsModeSell = "sell"
)

// MinLevelsTradeAmount is the smallest sell worth executing for a Levels
// sell-side level, denominated in lamports (native base units). 0.01 SOL.
const MinLevelsTradeAmount = 10_000_000

// PairSwap is one entry in a PairTrade strategy's swap_history.
type PairSwap struct {
	Timestamp time.Time `json:"timestamp"`
	FromToken string    `json:"from_token"`
	ToToken   string    `json:"to_token"`
	Amount    float64   `json:"amount"`
	Signature string    `json:"signature,omitempty"`
}

// PairTradeConfig drives the PairTrade worker.
type PairTradeConfig struct {
	TokenAMint           string     `json:"token_a_mint"`
	TokenBMint           string     `json:"token_b_mint"`
	TokenASymbol         string     `json:"token_a_symbol"`
	TokenBSymbol         string     `json:"token_b_symbol"`
	AllocationPercentage float64    `json:"allocation_percentage"`
	CurrentToken         string     `json:"current_token"` // "A" | "B"
	MaxSlippage          float64    `json:"max_slippage"`  // percent
	SwapHistory          []PairSwap `json:"swap_history,omitempty"`
	LastSwapTimestamp    *time.Time `json:"last_swap_timestamp,omitempty"`
	PositionEstablished  bool       `json:"position_established"`
}

const (
	PairTokenA = "A"
	PairTokenB = "B"
)

// Bounds on PairTradeConfig's sizing fields, enforced at construction and
// re-checked on every tick since the config can be edited live.
const (
	MinPairAllocationPercentage = 1.0
	MaxPairAllocationPercentage = 100.0
	MinPairMaxSlippage          = 0.1
	MaxPairMaxSlippage          = 10.0
)

// PerpDirection is the side of a perpetual futures position.
type PerpDirection string

const (
	PerpLong  PerpDirection = "long"
	PerpShort PerpDirection = "short"
)

// PerpPosition mirrors the currently-open position for a PerpPosition
// strategy, synchronized against the venue on every tick.
type PerpPosition struct {
	MarketIndex      int           `json:"market_index"`
	Direction        PerpDirection `json:"direction"`
	BaseQty          float64       `json:"base_qty"`
	QuoteQty         float64       `json:"quote_qty"`
	EntryPrice       float64       `json:"entry_price"`
	Leverage         float64       `json:"leverage"`
	LiquidationPrice float64       `json:"liquidation_price"`
	MarginRatio      float64       `json:"margin_ratio"`
	UnrealizedPnL    float64       `json:"unrealized_pnl"`
	CurrentPrice     float64       `json:"current_price"`
}

// OrderHistoryItem records one open/close order on a PerpPosition strategy.
type OrderHistoryItem struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"` // "open" | "close"
	Signature string    `json:"signature,omitempty"`
	Price     float64   `json:"price"`
}

// Bounds on PerpPositionConfig.Leverage, enforced at construction and
// re-checked on every tick since the config can be edited live.
const (
	MinPerpLeverage = 1.0
	MaxPerpLeverage = 10.0
)

// PerpPositionConfig drives the PerpPosition worker.
type PerpPositionConfig struct {
	MarketIndex          int               `json:"market_index"`
	Direction            PerpDirection     `json:"direction"`
	AllocationPercentage float64           `json:"allocation_percentage"`
	EntryPrice           float64           `json:"entry_price"`
	ExitPrice            float64           `json:"exit_price"`
	Leverage             float64           `json:"leverage"`
	StopLoss             *float64          `json:"stop_loss,omitempty"`
	TakeProfit           *float64          `json:"take_profit,omitempty"`
	MaxSlippage          float64           `json:"max_slippage"`
	IsPositionOpen       bool              `json:"is_position_open"`
	CurrentPosition      *PerpPosition     `json:"current_position,omitempty"`
	OrderHistory         []OrderHistoryItem `json:"order_history,omitempty"`
}
