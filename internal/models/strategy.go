package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StrategyKind identifies one of the six worker variants this daemon supervises.
type StrategyKind string

const (
	KindPriceMonitor  StrategyKind = "price_monitor"
	KindWalletMonitor StrategyKind = "wallet_monitor"
	KindVault         StrategyKind = "vault"
	KindLevels        StrategyKind = "levels"
	KindPairTrade     StrategyKind = "pair_trade"
	KindPerpPosition  StrategyKind = "perp_position"
)

// TradingWallet is a per-strategy sub-wallet. Its secret key never lives here;
// SecretRef points at an encrypted blob resolved on demand via the Key Escrow
// interface (internal/escrow).
type TradingWallet struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PublicKey string    `gorm:"size:64;not null;index" json:"public_key"`
	SecretRef string    `gorm:"size:255;not null" json:"secret_ref"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TradingWallet) TableName() string { return "trading_wallets" }

// Strategy is the persisted configuration for one automated behavior. Kind
// and Config must always agree: Config holds the kind-specific JSON payload
// decoded via DecodeConfig into one of the Config types in configs.go.
type Strategy struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Kind            StrategyKind    `gorm:"size:32;not null;index" json:"kind"`
	TradingWalletID uuid.UUID       `gorm:"type:uuid;not null;index" json:"trading_wallet_id"`
	OwnerPrincipal  string          `gorm:"size:255;not null;index" json:"owner_principal"`
	IsActive        bool            `gorm:"not null;default:true;index" json:"is_active"`
	Config          json.RawMessage `gorm:"type:jsonb;not null" json:"config"`
	ProfitTracking  ProfitTracking  `gorm:"type:jsonb" json:"profit_tracking"`
	CreatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	LastActivity    time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"last_activity"`

	TradingWallet TradingWallet `gorm:"foreignKey:TradingWalletID" json:"-"`
}

func (Strategy) TableName() string { return "strategies" }

// ProfitTracking is the running performance record attached to a Strategy.
type ProfitTracking struct {
	InitialBalance float64        `json:"initial_balance"`
	CurrentBalance float64        `json:"current_balance"`
	RealizedTotal  float64        `json:"realized_total"`
	Trades         []TradeLogItem `json:"trades"`
	DailyPnL       JSONB          `json:"daily_pnl,omitempty"`
}

func (p ProfitTracking) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *ProfitTracking) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// TradeLogItem records one completed or failed swap attempt for audit
// trail purposes — both outcomes are recorded, not successes only.
type TradeLogItem struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	Signature    string    `json:"signature,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Amount       float64   `json:"amount,omitempty"`
	Profit       float64   `json:"profit,omitempty"`
}
