// Package marketplace implements the Marketplace Service: a thin HTTP
// surface over the Strategy Store for browsing published strategy
// templates, publishing one from an owned strategy (or from scratch), and
// adopting a listing into a new, independently owned strategy. It holds
// no state of its own beyond what the Store persists.
package marketplace

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tradedaemon/internal/models"
)

// Store is the subset of the Strategy Store the Marketplace Service needs.
type Store interface {
	Get(id string) (*models.Strategy, error)
	CreateStrategy(strategy *models.Strategy) error
	PublishListing(listing *models.MarketplaceListing) error
	ListListings(kind *models.StrategyKind) ([]models.MarketplaceListing, error)
	GetListing(id string) (*models.MarketplaceListing, error)
	IncrementAdoptionCount(id string) error
}

// ErrForbidden is returned when a principal attempts to publish a strategy
// it does not own.
var ErrForbidden = fmt.Errorf("marketplace: principal does not own this strategy")

// Service implements the browse/publish/adopt operations.
type Service struct {
	store Store
}

// NewService builds a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Browse lists published listings, optionally filtered to one strategy
// kind.
func (svc *Service) Browse(kind *models.StrategyKind) ([]models.MarketplaceListing, error) {
	return svc.store.ListListings(kind)
}

// PublishRequest describes a new listing. Either SourceStrategyID is set
// (clone an owned, live strategy's kind and config) or Kind/TemplateConfig
// are set directly (publish a template with no backing strategy).
type PublishRequest struct {
	Title            string
	Description      string
	SourceStrategyID string
	Kind             models.StrategyKind
	TemplateConfig   json.RawMessage
}

// Publish creates a new listing attributed to principal.
func (svc *Service) Publish(principal string, req PublishRequest) (*models.MarketplaceListing, error) {
	kind := req.Kind
	templateConfig := req.TemplateConfig
	var sourceID *uuid.UUID

	if req.SourceStrategyID != "" {
		src, err := svc.store.Get(req.SourceStrategyID)
		if err != nil {
			return nil, fmt.Errorf("marketplace: loading source strategy: %w", err)
		}
		if src == nil {
			return nil, fmt.Errorf("marketplace: source strategy %s not found", req.SourceStrategyID)
		}
		if src.OwnerPrincipal != principal {
			return nil, ErrForbidden
		}
		kind = src.Kind
		templateConfig = src.Config
		id := src.ID
		sourceID = &id
	}

	if kind == "" || len(templateConfig) == 0 {
		return nil, fmt.Errorf("marketplace: a listing needs either source_strategy_id or kind+template_config")
	}

	listing := &models.MarketplaceListing{
		ID:               uuid.New(),
		Title:            req.Title,
		Description:      req.Description,
		Kind:             kind,
		TemplateConfig:   templateConfig,
		PublishedBy:      principal,
		SourceStrategyID: sourceID,
	}
	if err := svc.store.PublishListing(listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// Adopt instantiates a new strategy from listingID's template, owned by
// principal and funded from tradingWalletID. The new strategy starts
// active; the Supervisor picks it up on its next reconcile cycle.
func (svc *Service) Adopt(principal, listingID, tradingWalletID string) (*models.Strategy, error) {
	listing, err := svc.store.GetListing(listingID)
	if err != nil {
		return nil, fmt.Errorf("marketplace: loading listing: %w", err)
	}
	if listing == nil {
		return nil, fmt.Errorf("marketplace: listing %s not found", listingID)
	}

	walletID, err := uuid.Parse(tradingWalletID)
	if err != nil {
		return nil, fmt.Errorf("marketplace: invalid trading_wallet_id: %w", err)
	}

	strategy := &models.Strategy{
		ID:              uuid.New(),
		Kind:            listing.Kind,
		TradingWalletID: walletID,
		OwnerPrincipal:  principal,
		IsActive:        true,
		Config:          listing.TemplateConfig,
	}
	if err := svc.store.CreateStrategy(strategy); err != nil {
		return nil, err
	}
	if err := svc.store.IncrementAdoptionCount(listingID); err != nil {
		return nil, fmt.Errorf("marketplace: strategy %s adopted but adoption count update failed: %w", strategy.ID, err)
	}
	return strategy, nil
}
