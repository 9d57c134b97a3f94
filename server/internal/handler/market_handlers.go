package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/flowscope/internal/models"
)

type MarketHandler struct {
	desk Desk
}

func NewMarketHandler(desk Desk) *MarketHandler {
	return &MarketHandler{
		desk: desk,
	}
}

func (h *MarketHandler) GetSnapshot(c *gin.Context) {
	snap, ok := snapshot(c, h.desk)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetCandles returns the closed candles, oldest first. limit keeps only the
// newest ones.
func (h *MarketHandler) GetCandles(c *gin.Context) {
	snap, ok := snapshot(c, h.desk)
	if !ok {
		return
	}
	candles := snap.Candles
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		if limit < len(candles) {
			candles = candles[len(candles)-limit:]
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  snap.Symbol,
		"candles": candles,
		"current": snap.Current,
	})
}

func (h *MarketHandler) GetProfiles(c *gin.Context) {
	snap, ok := snapshot(c, h.desk)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":   snap.Symbol,
		"profiles": snap.Indicators.Profiles,
	})
}

func (h *MarketHandler) GetAVWAP(c *gin.Context) {
	snap, ok := snapshot(c, h.desk)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": snap.Symbol,
		"anchor": snap.Indicators.Anchor,
		"avwap":  snap.Indicators.AVWAP,
	})
}

type anchorRequest struct {
	Kind models.AnchorKind `json:"kind" binding:"required"`
	Time time.Time         `json:"time"`
}

func (h *MarketHandler) SetAnchor(c *gin.Context) {
	var req anchorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	anchor, err := h.desk.SetAnchor(c.Request.Context(), req.Kind, req.Time)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, anchor)
}

// SwitchInstrument replaces the tracked symbol and the account settings.
// All market state is cleared.
func (h *MarketHandler) SwitchInstrument(c *gin.Context) {
	var bot models.BotConfig
	if err := c.ShouldBindJSON(&bot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.desk.SwitchInstrument(c.Request.Context(), bot); err != nil {
		abortWithError(c, err)
		return
	}
	snap, ok := snapshot(c, h.desk)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": snap.Symbol,
		"epoch":  snap.Epoch,
		"config": snap.Config,
	})
}

func (h *MarketHandler) Health(c *gin.Context) {
	snap := h.desk.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	code, status := http.StatusOK, "ok"
	if snap.Feed == models.FeedStopped {
		code, status = http.StatusServiceUnavailable, "stopped"
	}
	c.JSON(code, gin.H{
		"status":  status,
		"symbol":  snap.Symbol,
		"feed":    snap.Feed,
		"candles": len(snap.Candles),
	})
}
