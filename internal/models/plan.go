package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Direction of a trade plan.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Confidence of a trade plan.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// TradePlan is the structured response of the analysis bridge.
type TradePlan struct {
	Direction            Direction  `json:"tradeDirection"`
	SpeculativeDirection Direction  `json:"speculativeDirection,omitempty"`
	KeyObservation       string     `json:"keyObservation"`
	EntryPrice           float64    `json:"entryPrice"`
	StopLoss             float64    `json:"stopLoss"`
	TakeProfit           float64    `json:"takeProfit"`
	PositionSize         float64    `json:"positionSize"`
	Confidence           Confidence `json:"confidence"`
	NextActionableSignal string     `json:"nextActionableSignal"`

	StopLossJustification   string `json:"stopLossJustification"`
	TakeProfitJustification string `json:"takeProfitJustification"`
}

// PlanRecord is a trade plan tagged with where it came from.
type PlanRecord struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`

	// Source is "gemini" or "mock".
	Source    string    `json:"source"`
	Plan      TradePlan `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}

// Action is the order side of a trade signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// TradeSignal is the order a LONG or SHORT plan asks for.
type TradeSignal struct {
	Asset     string    `json:"asset"`
	Action    Action    `json:"action"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Leverage  float64   `json:"leverage"`
	Timestamp time.Time `json:"timestamp"`
}

// SignalFor returns the signal of a plan, false for a NEUTRAL plan.
func SignalFor(plan TradePlan, bot BotConfig, at time.Time) (TradeSignal, bool) {
	var action Action
	switch plan.Direction {
	case DirectionLong:
		action = ActionBuy
	case DirectionShort:
		action = ActionSell
	default:
		return TradeSignal{}, false
	}
	return TradeSignal{
		Asset:     bot.Symbol,
		Action:    action,
		Price:     plan.EntryPrice,
		Size:      plan.PositionSize,
		Leverage:  bot.Leverage,
		Timestamp: at,
	}, true
}

// BotConfig holds the user-editable account parameters.
type BotConfig struct {
	Symbol         string  `json:"symbol"`
	AccountBalance float64 `json:"accountBalance"`
	Leverage       float64 `json:"leverage"`
	RiskPercentage float64 `json:"riskPercentage"`
}

// ErrInvalidConfig is returned for a bot configuration that cannot be traded.
var ErrInvalidConfig = errors.New("invalid bot config")

// Validate checks the symbol is set and the numbers are in range: positive
// balance and leverage, risk in (0, 100].
func (b BotConfig) Validate() error {
	switch {
	case strings.TrimSpace(b.Symbol) == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	case !(b.AccountBalance > 0):
		return fmt.Errorf("%w: accountBalance must be positive", ErrInvalidConfig)
	case !(b.Leverage > 0):
		return fmt.Errorf("%w: leverage must be positive", ErrInvalidConfig)
	case !(b.RiskPercentage > 0) || b.RiskPercentage > 100:
		return fmt.Errorf("%w: riskPercentage must be in (0, 100]", ErrInvalidConfig)
	}
	return nil
}

// RiskAmount is the account currency put at risk per trade.
func (b BotConfig) RiskAmount() float64 {
	return b.AccountBalance * b.RiskPercentage / 100
}
