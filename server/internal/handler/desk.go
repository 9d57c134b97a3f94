package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/flowscope/internal/analysis"
	"github.com/navid-fn/flowscope/internal/engine"
	"github.com/navid-fn/flowscope/internal/models"
	"github.com/navid-fn/flowscope/internal/store"
)

// Desk is the part of the engine the API drives.
type Desk interface {
	Snapshot() *models.MarketSnapshot
	SwitchInstrument(ctx context.Context, bot models.BotConfig) error
	SetAnchor(ctx context.Context, kind models.AnchorKind, at time.Time) (models.Anchor, error)
	RequestAnalysis(ctx context.Context) error
	ReviewAdjustment(ctx context.Context, adj analysis.Adjustment) (string, error)
	Optimize(ctx context.Context, opt analysis.Optimization) (analysis.OptimizedPlan, error)
}

// PlanHistory lists earlier trade plans, newest first.
type PlanHistory interface {
	LatestPlans(ctx context.Context, symbol string, limit int) ([]models.PlanRecord, error)
}

var errNotStarted = errors.New("desk not started")

func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidConfig),
		errors.Is(err, store.ErrUnknownAnchor),
		errors.Is(err, store.ErrAnchorOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNoHistory),
		errors.Is(err, analysis.ErrNotEnoughData),
		errors.Is(err, analysis.ErrNothingToOptimize):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrCooldown),
		errors.Is(err, analysis.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrStopped),
		errors.Is(err, errNotStarted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
}

// snapshot loads the current snapshot or aborts the request.
func snapshot(c *gin.Context, desk Desk) (*models.MarketSnapshot, bool) {
	snap := desk.Snapshot()
	if snap == nil {
		abortWithError(c, errNotStarted)
		return nil, false
	}
	return snap, true
}
