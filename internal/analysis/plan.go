package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/shopspring/decimal"
)

// DecodePlan parses a trade plan and checks its shape: known direction and
// confidence values, finite prices and the required text fields.
func DecodePlan(data []byte) (models.TradePlan, error) {
	var plan models.TradePlan
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &plan); err != nil {
		return models.TradePlan{}, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if err := ValidatePlan(plan); err != nil {
		return models.TradePlan{}, err
	}
	return plan, nil
}

// ValidatePlan checks a plan's shape.
func ValidatePlan(plan models.TradePlan) error {
	switch plan.Direction {
	case models.DirectionLong, models.DirectionShort, models.DirectionNeutral:
	default:
		return fmt.Errorf("%w: tradeDirection %q", ErrMalformedPlan, plan.Direction)
	}
	switch plan.SpeculativeDirection {
	case "", models.DirectionLong, models.DirectionShort:
	default:
		return fmt.Errorf("%w: speculativeDirection %q", ErrMalformedPlan, plan.SpeculativeDirection)
	}
	switch plan.Confidence {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
	default:
		return fmt.Errorf("%w: confidence %q", ErrMalformedPlan, plan.Confidence)
	}

	for name, v := range map[string]float64{
		"entryPrice":   plan.EntryPrice,
		"stopLoss":     plan.StopLoss,
		"takeProfit":   plan.TakeProfit,
		"positionSize": plan.PositionSize,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrMalformedPlan, name)
		}
	}

	if plan.KeyObservation == "" {
		return fmt.Errorf("%w: keyObservation is empty", ErrMalformedPlan)
	}
	return nil
}

// DecodeOptimizedPlan parses an optimizer response. Prices and size must
// be positive and finite and the explanation set.
func DecodeOptimizedPlan(data []byte) (OptimizedPlan, error) {
	var out OptimizedPlan
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &out); err != nil {
		return OptimizedPlan{}, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	for name, v := range map[string]float64{
		"newStopLoss":     out.NewStopLoss,
		"newTakeProfit":   out.NewTakeProfit,
		"newPositionSize": out.NewPositionSize,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return OptimizedPlan{}, fmt.Errorf("%w: %s must be a positive number", ErrMalformedPlan, name)
		}
	}
	if strings.TrimSpace(out.Explanation) == "" {
		return OptimizedPlan{}, fmt.Errorf("%w: explanation is empty", ErrMalformedPlan)
	}
	return out, nil
}

// PositionSize is the size that risks exactly the configured amount
// between entry and stop. A zero distance gives 0.
func PositionSize(cfg models.BotConfig, entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0
	}
	return cfg.RiskAmount() / dist
}

// PriceDecimals is 2 for prices above 100 and 4 otherwise.
func PriceDecimals(price float64) int32 {
	if price > 100 {
		return 2
	}
	return 4
}

// RoundPrice rounds v to the display precision of reference.
func RoundPrice(v, reference float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(PriceDecimals(reference)).Float64()
	return f
}

// FormatPrice renders v with the display precision of reference.
func FormatPrice(v, reference float64) string {
	return decimal.NewFromFloat(v).StringFixed(PriceDecimals(reference))
}
