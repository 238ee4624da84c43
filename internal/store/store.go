// Package store implements the Strategy Store: the single source of
// truth for strategy configuration, activity state, and trade history,
// backed by Postgres via GORM.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tradedaemon/internal/escrow"
	"tradedaemon/internal/models"
	"tradedaemon/internal/observability"
)

// Store is the gorm-backed Strategy Store.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and runs AutoMigrate for every persisted model.
// Connection pooling mirrors this repository's standard production
// settings: a fixed pool ceiling, a modest idle floor, and a one-hour
// connection lifetime so the pool recycles periodically.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: resolving underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.TradingWallet{}, &models.Strategy{}, &walletSecret{}, &models.MarketplaceListing{}, &observability.ServiceLog{}, &observability.ServiceMetric{}); err != nil {
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying connection for ambient infrastructure that
// shares this database but isn't part of the Strategy Store's own public
// surface, such as the structured logger's service_logs table.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// walletSecret is the Key Escrow's sealed key-material table. It lives in
// the same database as the rest of the Store but the core never reads it
// directly — only internal/escrow does, through the Store adapter below.
// Persisted state layout stays opaque to the rest of the daemon.
type walletSecret struct {
	TradingWalletID string `gorm:"primaryKey"`
	Nonce           []byte
	Ciphertext      []byte
}

func (walletSecret) TableName() string { return "wallet_secrets" }

// ListAll returns every strategy, joined with its trading wallet.
func (s *Store) ListAll() ([]models.Strategy, error) {
	var strategies []models.Strategy
	if err := s.db.Preload("TradingWallet").Find(&strategies).Error; err != nil {
		return nil, fmt.Errorf("store: listing all strategies: %w", err)
	}
	return strategies, nil
}

// ListActive returns every strategy with is_active=true, joined with its
// trading wallet.
func (s *Store) ListActive() ([]models.Strategy, error) {
	var strategies []models.Strategy
	if err := s.db.Preload("TradingWallet").Where("is_active = ?", true).Find(&strategies).Error; err != nil {
		return nil, fmt.Errorf("store: listing active strategies: %w", err)
	}
	return strategies, nil
}

// Get returns one strategy by ID, or nil if it does not exist.
func (s *Store) Get(id string) (*models.Strategy, error) {
	var strategy models.Strategy
	err := s.db.Preload("TradingWallet").First(&strategy, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: getting strategy %s: %w", id, err)
	}
	return &strategy, nil
}

// UpdateActive sets is_active for strategy id. Used by PriceMonitor's
// auto-pause after a successful one-shot fire and by Levels when a
// completed ladder deactivates its strategy; the workers' freshness checks
// read is_active through Get.
func (s *Store) UpdateActive(id string, active bool) error {
	result := s.db.Model(&models.Strategy{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active":     active,
		"last_activity": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("store: updating is_active for %s: %w", id, result.Error)
	}
	return nil
}

// UpdateConfig overwrites strategy id's config JSON. Used after Levels
// records a trigger, WalletMonitor updates recent_transactions, etc.
func (s *Store) UpdateConfig(id string, config json.RawMessage) error {
	result := s.db.Model(&models.Strategy{}).Where("id = ?", id).Updates(map[string]interface{}{
		"config":        config,
		"last_activity": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("store: updating config for %s: %w", id, result.Error)
	}
	return nil
}

// UpdatePosition updates the PerpPosition strategy's open/closed state and
// position snapshot; position may be nil when closing.
func (s *Store) UpdatePosition(id string, isOpen bool, position *models.PerpPosition) error {
	var strategy models.Strategy
	if err := s.db.First(&strategy, "id = ?", id).Error; err != nil {
		return fmt.Errorf("store: loading strategy %s for position update: %w", id, err)
	}

	var cfg models.PerpPositionConfig
	if err := json.Unmarshal(strategy.Config, &cfg); err != nil {
		return fmt.Errorf("store: decoding perp config for %s: %w", id, err)
	}
	cfg.IsPositionOpen = isOpen
	cfg.CurrentPosition = position

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: encoding perp config for %s: %w", id, err)
	}

	return s.UpdateConfig(id, encoded)
}

// AppendTrade appends one trade-log row to strategy id's profit-tracking
// audit trail. Every completed and every failed swap is recorded, with
// success, error_message, and signature, so the trail covers losses too.
func (s *Store) AppendTrade(strategyID string, trade models.TradeLogItem) error {
	var strategy models.Strategy
	if err := s.db.First(&strategy, "id = ?", strategyID).Error; err != nil {
		return fmt.Errorf("store: loading strategy %s for trade append: %w", strategyID, err)
	}

	strategy.ProfitTracking.Trades = append(strategy.ProfitTracking.Trades, trade)
	if trade.Success {
		strategy.ProfitTracking.RealizedTotal += trade.Profit
		strategy.ProfitTracking.CurrentBalance += trade.Profit
	}

	result := s.db.Model(&models.Strategy{}).Where("id = ?", strategyID).Updates(map[string]interface{}{
		"profit_tracking": strategy.ProfitTracking,
		"last_activity":   time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("store: appending trade for %s: %w", strategyID, result.Error)
	}
	return nil
}

// CreateStrategy inserts a new strategy row. Used by the Marketplace
// Service's adopt operation and by wallet-provisioning tooling; the
// running daemon's workers never create strategies themselves.
func (s *Store) CreateStrategy(strategy *models.Strategy) error {
	if err := s.db.Create(strategy).Error; err != nil {
		return fmt.Errorf("store: creating strategy %s: %w", strategy.ID, err)
	}
	return nil
}

// SealedRecord implements internal/escrow.Store, letting the Key Escrow
// read its sealed key material from the same database without exposing it
// through the Strategy Store's own public surface.
func (s *Store) SealedRecord(tradingWalletID string) (*escrow.SealedRecord, error) {
	var row walletSecret
	err := s.db.First(&row, "trading_wallet_id = ?", tradingWalletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading sealed key material for %s: %w", tradingWalletID, err)
	}
	if len(row.Nonce) != 24 {
		return nil, fmt.Errorf("store: sealed record for %s has a malformed nonce (len=%d)", tradingWalletID, len(row.Nonce))
	}
	var nonce [24]byte
	copy(nonce[:], row.Nonce)
	return &escrow.SealedRecord{Nonce: nonce, Ciphertext: row.Ciphertext}, nil
}

// PutSealedRecord stores or replaces a trading wallet's sealed key
// material. Used by wallet-provisioning tooling, not by the daemon's
// runtime path.
func (s *Store) PutSealedRecord(tradingWalletID string, record *escrow.SealedRecord) error {
	row := walletSecret{
		TradingWalletID: tradingWalletID,
		Nonce:           record.Nonce[:],
		Ciphertext:      record.Ciphertext,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("store: saving sealed key material for %s: %w", tradingWalletID, err)
	}
	return nil
}
