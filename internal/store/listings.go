package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tradedaemon/internal/models"
)

// PublishListing inserts a new marketplace listing.
func (s *Store) PublishListing(listing *models.MarketplaceListing) error {
	if err := s.db.Create(listing).Error; err != nil {
		return fmt.Errorf("store: publishing listing %s: %w", listing.ID, err)
	}
	return nil
}

// ListListings returns every published listing, optionally filtered to one
// strategy kind.
func (s *Store) ListListings(kind *models.StrategyKind) ([]models.MarketplaceListing, error) {
	var listings []models.MarketplaceListing
	q := s.db.Order("created_at desc")
	if kind != nil {
		q = q.Where("kind = ?", *kind)
	}
	if err := q.Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("store: listing marketplace listings: %w", err)
	}
	return listings, nil
}

// GetListing returns one listing by ID, or nil if it does not exist.
func (s *Store) GetListing(id string) (*models.MarketplaceListing, error) {
	var listing models.MarketplaceListing
	err := s.db.First(&listing, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: getting listing %s: %w", id, err)
	}
	return &listing, nil
}

// IncrementAdoptionCount bumps a listing's adoption_count by one.
func (s *Store) IncrementAdoptionCount(id string) error {
	result := s.db.Model(&models.MarketplaceListing{}).Where("id = ?", id).
		UpdateColumn("adoption_count", gorm.Expr("adoption_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("store: incrementing adoption count for %s: %w", id, result.Error)
	}
	return nil
}
