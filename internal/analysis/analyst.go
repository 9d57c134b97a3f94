// Package analysis turns a market snapshot into a trade plan, either through
// the Gemini API or a local rule-based fallback.
package analysis

import (
	"context"
	"errors"

	"github.com/navid-fn/flowscope/internal/models"
)

// MinCandles is the history length required before a plan is requested.
const MinCandles = 10

var (
	// ErrRateLimited is returned when the AI service reports quota exhaustion.
	ErrRateLimited = errors.New("analysis rate limited")

	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("analysis API key is not configured")

	// ErrMalformedPlan is returned when the response is not a valid trade plan.
	ErrMalformedPlan = errors.New("malformed trade plan")

	// ErrNotEnoughData is returned when the history is shorter than MinCandles.
	ErrNotEnoughData = errors.New("not enough market data")

	// ErrCooldown is returned when a request arrives before the cooldown expired.
	ErrCooldown = errors.New("analysis cooling down")

	// ErrNothingToOptimize is returned for a plan without a trade to resize.
	ErrNothingToOptimize = errors.New("plan has no trade to optimize")
)

// Request is everything an analyst needs to produce a plan.
type Request struct {
	Snapshot *models.MarketSnapshot
	Config   models.BotConfig
}

// Adjustment is a user edit of a plan's stop and target.
type Adjustment struct {
	Plan       models.TradePlan
	StopLoss   float64
	TakeProfit float64
}

// Optimization is a free-text risk constraint the trader puts on a plan,
// e.g. "max $100 risk today".
type Optimization struct {
	Plan    models.TradePlan
	Comment string
}

// OptimizedPlan is a plan resized to honor an Optimization.
type OptimizedPlan struct {
	NewStopLoss     float64 `json:"newStopLoss"`
	NewTakeProfit   float64 `json:"newTakeProfit"`
	NewPositionSize float64 `json:"newPositionSize"`
	Explanation     string  `json:"explanation"`
}

// Analyst produces trade plans.
type Analyst interface {
	// Name identifies the analyst in plan records ("gemini", "mock").
	Name() string

	Analyze(ctx context.Context, req Request) (models.TradePlan, error)

	// ReviewAdjustment returns one sentence of feedback on a user edit.
	ReviewAdjustment(ctx context.Context, snap *models.MarketSnapshot, adj Adjustment) (string, error)

	// Optimize recomputes stop, target and size of a plan under the
	// trader's constraint.
	Optimize(ctx context.Context, req Request, opt Optimization) (OptimizedPlan, error)
}
