package analysis

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/navid-fn/flowscope/internal/models"
)

const (
	mockStopShare  = 0.001
	mockRewardRisk = 1.5
)

var (
	dollarLimit  = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	percentLimit = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%`)
)

// MockAnalyst builds a rule-based plan locally. It stands in while the AI
// service is rate limited or unconfigured.
//
// Asia and closed sessions, or a newest candle without delta, give NEUTRAL
// with a speculative idea; otherwise it trades in the direction of the
// newest candle's delta. The stop
// sits 0.1% from entry and the target 1.5 times further.
type MockAnalyst struct{}

func (MockAnalyst) Name() string { return "mock" }

// Analyze builds a plan from the snapshot.
func (MockAnalyst) Analyze(_ context.Context, req Request) (models.TradePlan, error) {
	snap, cfg := req.Snapshot, req.Config
	price := snap.Price
	if price <= 0 {
		return models.TradePlan{}, ErrNotEnoughData
	}

	bias, flat := models.DirectionLong, true
	if last, ok := snap.LastCandle(); ok && last.Delta() != 0 {
		flat = false
		if last.Delta() < 0 {
			bias = models.DirectionShort
		}
	}

	stopDist := price * mockStopShare
	targetDist := stopDist * mockRewardRisk
	sign := 1.0
	if bias == models.DirectionShort {
		sign = -1
	}

	plan := models.TradePlan{
		Direction:    bias,
		EntryPrice:   RoundPrice(price, price),
		StopLoss:     RoundPrice(price-sign*stopDist, price),
		TakeProfit:   RoundPrice(price+sign*targetDist, price),
		PositionSize: math.Round(cfg.RiskAmount()/stopDist*1e4) / 1e4,
		Confidence:   models.ConfidenceMedium,
	}
	plan.StopLossJustification = fmt.Sprintf("Stop is %s away from entry, 0.1%% of price.", FormatPrice(stopDist, price))
	plan.TakeProfitJustification = fmt.Sprintf("Target keeps a %.1f:1 reward to risk.", mockRewardRisk)

	switch {
	case flat, snap.Session == models.SessionAsia, snap.Session == models.SessionClosed:
		plan.Direction = models.DirectionNeutral
		plan.SpeculativeDirection = bias
		plan.Confidence = models.ConfidenceLow
		if bias == models.DirectionLong {
			plan.KeyObservation = fmt.Sprintf("Market is consolidating during the %s session, but order flow hints at an upward break.", snap.Session)
		} else {
			plan.KeyObservation = fmt.Sprintf("Market is range-bound during the %s session, with minor rejection hinting at a drop.", snap.Session)
		}
		plan.NextActionableSignal = breakoutPlans(price, stopDist, targetDist)
	default:
		if bias == models.DirectionLong {
			plan.KeyObservation = fmt.Sprintf("In the %s session, buyers are in control and price leans toward %s.",
				snap.Session, nearestLevel(snap.Liquidations.Shorts, price+targetDist, price))
		} else {
			plan.KeyObservation = fmt.Sprintf("During the %s session, sellers are in control and price leans toward %s.",
				snap.Session, nearestLevel(snap.Liquidations.Longs, price-targetDist, price))
		}
		plan.NextActionableSignal = "Enter on a retest of the entry with delta confirming."
	}
	return plan, nil
}

// ReviewAdjustment flags edits whose reward to risk drops below 1.5.
func (MockAnalyst) ReviewAdjustment(_ context.Context, _ *models.MarketSnapshot, adj Adjustment) (string, error) {
	risk := math.Abs(adj.Plan.EntryPrice - adj.StopLoss)
	reward := math.Abs(adj.TakeProfit - adj.Plan.EntryPrice)
	if risk == 0 {
		return "Warning: the stop loss sits at the entry price.", nil
	}
	rr := reward / risk
	if rr < mockRewardRisk {
		return fmt.Sprintf("Warning: the adjustment leaves a %.2f:1 reward to risk, below 1.5:1.", rr), nil
	}
	return fmt.Sprintf("Reasonable adjustment with a %.2f:1 reward to risk.", rr), nil
}

// Optimize keeps the plan's stop and sizes the position to the first dollar
// amount in the comment, else the first percentage of the balance, else
// the configured risk. A target closer than 1.5:1 is pushed out to 1.5:1.
func (MockAnalyst) Optimize(_ context.Context, req Request, opt Optimization) (OptimizedPlan, error) {
	plan := opt.Plan
	dist := math.Abs(plan.EntryPrice - plan.StopLoss)
	if plan.Direction == models.DirectionNeutral || dist == 0 {
		return OptimizedPlan{}, ErrNothingToOptimize
	}

	risk, source := commentRisk(opt.Comment, req.Config)
	sign := 1.0
	if plan.Direction == models.DirectionShort {
		sign = -1
	}
	target := plan.TakeProfit
	if (target-plan.EntryPrice)*sign < dist*mockRewardRisk {
		target = plan.EntryPrice + sign*dist*mockRewardRisk
	}
	ref := plan.EntryPrice
	size := math.Round(risk/dist*1e4) / 1e4

	return OptimizedPlan{
		NewStopLoss:     RoundPrice(plan.StopLoss, ref),
		NewTakeProfit:   RoundPrice(target, ref),
		NewPositionSize: size,
		Explanation: fmt.Sprintf("To keep the risk at $%.2f %s, the position size is %s. The stop stays at $%s and the target at $%s gives a %.2f:1 reward to risk.",
			risk, source, strconv.FormatFloat(size, 'f', -1, 64), FormatPrice(plan.StopLoss, ref), FormatPrice(target, ref),
			math.Abs(target-plan.EntryPrice)/dist),
	}, nil
}

// commentRisk reads the dollar risk the comment allows.
func commentRisk(comment string, cfg models.BotConfig) (float64, string) {
	if m := dollarLimit.FindStringSubmatch(comment); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil && v > 0 {
			return v, "as requested"
		}
	}
	if m := percentLimit.FindStringSubmatch(comment); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 && v <= 100 {
			return cfg.AccountBalance * v / 100, fmt.Sprintf("(%s%% of the balance)", m[1])
		}
	}
	return cfg.RiskAmount(), "(the configured risk)"
}

func breakoutPlans(price, stopDist, targetDist float64) string {
	up := price + stopDist
	down := price - stopDist
	return fmt.Sprintf("Long breakout: Enter at $%s, SL at $%s, TP at $%s. Short breakdown: Enter at $%s, SL at $%s, TP at $%s.",
		FormatPrice(up, price), FormatPrice(up-stopDist, price), FormatPrice(up+targetDist, price),
		FormatPrice(down, price), FormatPrice(down+stopDist, price), FormatPrice(down-targetDist, price))
}

func nearestLevel(levels []models.LiquidationLevel, fallback, reference float64) string {
	if len(levels) > 0 {
		return "the liquidation cluster at $" + FormatPrice(levels[0].Price, reference)
	}
	return "$" + FormatPrice(fallback, reference)
}
