package marketplace

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradedaemon/internal/models"
)

// Controller adapts Service onto gin handler functions.
type Controller struct {
	svc *Service
}

// NewController builds a Controller over svc.
func NewController(svc *Service) *Controller {
	return &Controller{svc: svc}
}

// Browse handles GET /listings?kind=
func (c *Controller) Browse(ctx *gin.Context) {
	var kindFilter *models.StrategyKind
	if raw := ctx.Query("kind"); raw != "" {
		k := models.StrategyKind(raw)
		kindFilter = &k
	}

	listings, err := c.svc.Browse(kindFilter)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, listings)
}

type publishBody struct {
	Title            string          `json:"title" binding:"required"`
	Description      string          `json:"description"`
	SourceStrategyID string          `json:"source_strategy_id"`
	Kind             string          `json:"kind"`
	TemplateConfig   json.RawMessage `json:"template_config"`
}

// Publish handles POST /listings
func (c *Controller) Publish(ctx *gin.Context) {
	principal := principalFrom(ctx)

	var body publishBody
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := c.svc.Publish(principal, PublishRequest{
		Title:            body.Title,
		Description:      body.Description,
		SourceStrategyID: body.SourceStrategyID,
		Kind:             models.StrategyKind(body.Kind),
		TemplateConfig:   body.TemplateConfig,
	})
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, listing)
}

type adoptBody struct {
	TradingWalletID string `json:"trading_wallet_id" binding:"required"`
}

// Adopt handles POST /listings/:id/adopt
func (c *Controller) Adopt(ctx *gin.Context) {
	principal := principalFrom(ctx)
	listingID := ctx.Param("id")

	var body adoptBody
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategy, err := c.svc.Adopt(principal, listingID, body.TradingWalletID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, strategy)
}

func principalFrom(ctx *gin.Context) string {
	if v, ok := ctx.Get("principal"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
