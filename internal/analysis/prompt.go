package analysis

import (
	"fmt"
	"strings"

	"github.com/navid-fn/flowscope/internal/indicator"
	"github.com/navid-fn/flowscope/internal/models"
	"github.com/shopspring/decimal"
)

const (
	promptCandles      = 5
	promptBookLevels   = 5
	promptLiquidations = 3
)

// BuildPrompt serializes the market state and the trader's risk settings
// into the plan request sent to the model.
func BuildPrompt(snap *models.MarketSnapshot, cfg models.BotConfig) string {
	price := snap.Price
	px := func(v float64) string { return "$" + FormatPrice(v, price) }
	num := func(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) }

	recent := snap.Candles
	if len(recent) > promptCandles {
		recent = recent[len(recent)-promptCandles:]
	}

	var candles []string
	var rangeSum float64
	for _, c := range recent {
		candles = append(candles, fmt.Sprintf("{O: %s, H: %s, L: %s, C: %s, V: %s, Delta: %s}",
			num(c.Open), num(c.High), num(c.Low), num(c.Close), num(c.Volume), num(c.Delta())))
		rangeSum += c.Range()
	}
	var avgRange float64
	if len(recent) > 0 {
		avgRange = rangeSum / float64(len(recent))
	}

	var pocs []string
	for i, c := range recent {
		if len(c.Footprint) == 0 {
			continue
		}
		pocs = append(pocs, fmt.Sprintf("Candle T-%d POC: %s", len(recent)-1-i, px(indicator.Profile(c).POC)))
	}
	pocSummary := strings.Join(pocs, ", ")
	if pocSummary == "" {
		pocSummary = "N/A"
	}

	sessionLow, sessionHigh := price, price
	if len(snap.Candles) > 0 {
		sessionLow, sessionHigh = indicator.Levels(snap.Candles)
	}

	var oi float64
	if n := len(snap.OpenInterest); n > 0 {
		oi = snap.OpenInterest[n-1].Value
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert institutional-grade technical analyst. Build a CFD scalping trade plan for %s from order flow, candle volume profiles and session context.\n\n", cfg.Symbol)

	b.WriteString("Trader's Configuration:\n")
	fmt.Fprintf(&b, "- Account Balance: $%s\n", num(cfg.AccountBalance))
	fmt.Fprintf(&b, "- Leverage: %sx\n", decimal.NewFromFloat(cfg.Leverage).String())
	fmt.Fprintf(&b, "- Max Risk per trade: %s%% ($%s)\n\n", decimal.NewFromFloat(cfg.RiskPercentage).String(), num(cfg.RiskAmount()))

	b.WriteString("Core Market Data:\n")
	fmt.Fprintf(&b, "- Current Price: %s\n", px(price))
	fmt.Fprintf(&b, "- Cumulative Volume Delta (Session): %s\n", num(snap.CVD))
	fmt.Fprintf(&b, "- Average Candle Range (Volatility): %s\n", px(avgRange))
	fmt.Fprintf(&b, "- Most Recent Candles (OHLCV, Delta): %s\n\n", strings.Join(candles, ", "))

	b.WriteString("Order Flow & Session Data:\n")
	fmt.Fprintf(&b, "- Current Trading Session: %s\n", snap.Session)
	fmt.Fprintf(&b, "- Open Interest: %s\n", num(oi))
	fmt.Fprintf(&b, "- Top 5 Bids (Buy Orders): %s\n", bookSummary(snap.OrderBook.Bids, px))
	fmt.Fprintf(&b, "- Top 5 Asks (Sell Orders): %s\n", bookSummary(snap.OrderBook.Asks, px))
	fmt.Fprintf(&b, "- Major Short Liquidation Levels: %s\n", liquidationSummary(snap.Liquidations.Shorts, px))
	fmt.Fprintf(&b, "- Major Long Liquidation Levels: %s\n\n", liquidationSummary(snap.Liquidations.Longs, px))

	b.WriteString("Key Technical Levels:\n")
	fmt.Fprintf(&b, "- Session High (Liquidity Zone): %s\n", px(sessionHigh))
	fmt.Fprintf(&b, "- Session Low (Liquidity Zone): %s\n", px(sessionLow))
	fmt.Fprintf(&b, "- 5-min VWAP: %s\n", px(snap.Indicators.VWAP["5m"]))
	fmt.Fprintf(&b, "- 1-hour VWAP: %s\n", px(snap.Indicators.VWAP["1h"]))
	fmt.Fprintf(&b, "- 21 EMA (Trend): %s\n", px(snap.Indicators.EMA[21]))
	fmt.Fprintf(&b, "- 50 EMA (Baseline): %s\n\n", px(snap.Indicators.EMA[50]))

	fmt.Fprintf(&b, "Recent Candle Points of Control (POCs): %s. These are micro support/resistance levels where the most volume traded.\n\n", pocSummary)

	b.WriteString(`Process:
1. Session context first. In Asia favor range strategies unless momentum is strong; in London, New York or Overlap prioritize breakouts and trend following.
2. Order flow and liquidity drive the plan. Large bid walls below price are support, large ask walls above are resistance. The nearest major liquidation level is the default take profit target. Check whether open interest confirms the move.
3. Confirm with price action: liquidity grabs into walls or liquidation levels, reactions at EMAs and VWAP, and rejections or breakouts at recent POCs.
4. keyObservation must start with the session context and the main order flow observation. takeProfitJustification must name the level it targets. stopLossJustification must name the structure the stop sits behind and relate it to the average candle range.
5. positionSize must risk exactly the max risk amount: Position Size = Risk Amount / |Entry - Stop Loss|.
6. With no clear edge declare NEUTRAL, give a low-confidence speculativeDirection idea, and put two breakout plans in nextActionableSignal formatted as: "Long breakout: Enter at $PRICE, SL at $PRICE, TP at $PRICE. Short breakdown: Enter at $PRICE, SL at $PRICE, TP at $PRICE."

Respond with the JSON object only.
`)
	return b.String()
}

// BuildAdjustmentPrompt asks for one sentence of feedback on a user edit of
// a plan's stop and target.
func BuildAdjustmentPrompt(snap *models.MarketSnapshot, adj Adjustment) string {
	price := snap.Price
	px := func(v float64) string { return "$" + FormatPrice(v, price) }
	plan := adj.Plan

	var b strings.Builder
	b.WriteString("You are a trading mentor. A trader adjusted the stop loss and take profit of a trade idea. Give concise expert feedback on the change.\n\n")

	b.WriteString("Original Trade Idea:\n")
	fmt.Fprintf(&b, "- Direction: %s\n", plan.Direction)
	fmt.Fprintf(&b, "- Key Observation: %s\n", plan.KeyObservation)
	fmt.Fprintf(&b, "- Entry: %s\n", px(plan.EntryPrice))
	fmt.Fprintf(&b, "- Stop Loss: %s\n", px(plan.StopLoss))
	fmt.Fprintf(&b, "- Take Profit: %s\n\n", px(plan.TakeProfit))

	b.WriteString("Trader's Adjustment:\n")
	fmt.Fprintf(&b, "- New Stop Loss: %s\n", px(adj.StopLoss))
	fmt.Fprintf(&b, "- New Take Profit: %s\n\n", px(adj.TakeProfit))

	b.WriteString("Market Context:\n")
	fmt.Fprintf(&b, "- Current Price: %s\n", px(price))
	fmt.Fprintf(&b, "- Key Support: %s\n", px(snap.Indicators.Support))
	fmt.Fprintf(&b, "- Key Resistance: %s\n", px(snap.Indicators.Resistance))
	fmt.Fprintf(&b, "- 1-hour VWAP: %s\n", px(snap.Indicators.VWAP["1h"]))
	fmt.Fprintf(&b, "- 21 EMA (Trend): %s\n\n", px(snap.Indicators.EMA[21]))

	b.WriteString(`Judge whether the new stop sits behind logical structure, whether the new target is realistic, and the new risk to reward (ideally above 1.5).
Reply with one sentence in the "feedback" field. Start it with "Warning:" when the adjustment is poor.
`)
	return b.String()
}

// BuildOptimizationPrompt asks for a stop, target and size that honor the
// trader's free-text constraint.
func BuildOptimizationPrompt(snap *models.MarketSnapshot, cfg models.BotConfig, opt Optimization) string {
	price := snap.Price
	px := func(v float64) string { return "$" + FormatPrice(v, price) }
	plan := opt.Plan

	var b strings.Builder
	b.WriteString("You are a risk manager at a proprietary trading firm. A trader wants a trade idea reworked to honor a constraint stated in their own words. Recalculate stop loss, take profit and position size so the plan meets the constraint and stays technically sound.\n\n")

	fmt.Fprintf(&b, "Trader's Comment:\n%q\n\n", opt.Comment)

	fmt.Fprintf(&b, "Trade Idea for %s:\n", cfg.Symbol)
	fmt.Fprintf(&b, "- Direction: %s\n", plan.Direction)
	fmt.Fprintf(&b, "- Key Observation: %s\n", plan.KeyObservation)
	fmt.Fprintf(&b, "- Entry: %s\n\n", px(plan.EntryPrice))

	b.WriteString("Account:\n")
	fmt.Fprintf(&b, "- Account Balance: $%s\n", decimal.NewFromFloat(cfg.AccountBalance).StringFixed(2))
	fmt.Fprintf(&b, "- Default Risk per trade: %s%%\n\n", decimal.NewFromFloat(cfg.RiskPercentage).String())

	b.WriteString("Market Context:\n")
	fmt.Fprintf(&b, "- Current Price: %s\n", px(price))
	fmt.Fprintf(&b, "- Key Support: %s\n", px(snap.Indicators.Support))
	fmt.Fprintf(&b, "- Key Resistance: %s\n", px(snap.Indicators.Resistance))
	fmt.Fprintf(&b, "- 1-hour VWAP: %s\n", px(snap.Indicators.VWAP["1h"]))
	fmt.Fprintf(&b, "- 21 EMA (Trend): %s\n\n", px(snap.Indicators.EMA[21]))

	b.WriteString(`Steps:
1. Find the constraint in the comment: a maximum dollar loss, a drawdown limit, a reward to risk target. It overrides the default risk setting.
2. Work out the maximum dollar risk for this trade from the comment and the balance. A $10k account that is down $200 against a $300 daily limit can risk $100.
3. Put the stop behind structure: support or resistance, a swing point, the VWAP or the EMA.
4. newPositionSize = maximum dollar risk / |entry - newStopLoss|.
5. Put the target at the next liquidity or technical level, at least 1.5:1 reward to risk where structure allows.
6. In explanation, answer the comment directly and say how the plan meets the constraint.

Respond with the JSON object only.
`)
	return b.String()
}

func bookSummary(levels []models.BookLevel, px func(float64) string) string {
	if len(levels) > promptBookLevels {
		levels = levels[:promptBookLevels]
	}
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		parts = append(parts, fmt.Sprintf("%s (%s)", px(l.Price), decimal.NewFromFloat(l.Size).StringFixed(2)))
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, ", ")
}

func liquidationSummary(levels []models.LiquidationLevel, px func(float64) string) string {
	if len(levels) > promptLiquidations {
		levels = levels[:promptLiquidations]
	}
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		parts = append(parts, fmt.Sprintf("%s ($%sM)", px(l.Price), decimal.NewFromFloat(l.Amount/1e6).StringFixed(1)))
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, ", ")
}
