package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MarketplaceListing is a published, ownerless template for a Strategy's
// kind and config. Any principal can adopt it into a new, independently
// owned Strategy of their own. Publishing never exposes the source
// strategy's trading wallet or trade history — only its kind and config
// shape.
type MarketplaceListing struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Title            string          `gorm:"size:255;not null" json:"title"`
	Description      string          `gorm:"type:text" json:"description"`
	Kind             StrategyKind    `gorm:"size:32;not null;index" json:"kind"`
	TemplateConfig   json.RawMessage `gorm:"type:jsonb;not null" json:"template_config"`
	PublishedBy      string          `gorm:"size:255;not null;index" json:"published_by"`
	SourceStrategyID *uuid.UUID      `gorm:"type:uuid" json:"source_strategy_id,omitempty"`
	AdoptionCount    int             `gorm:"not null;default:0" json:"adoption_count"`
	CreatedAt        time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (MarketplaceListing) TableName() string { return "marketplace_listings" }
