package models

import "time"

// FeedStatus describes the state of the trade feed.
type FeedStatus string

const (
	FeedConnecting   FeedStatus = "connecting"
	FeedLive         FeedStatus = "live"
	FeedReconnecting FeedStatus = "reconnecting"
	FeedSimulated    FeedStatus = "simulated"
	FeedStopped      FeedStatus = "stopped"
)

// AnalysisState describes the analysis bridge as seen by readers.
type AnalysisState struct {
	// Status is one of "idle", "pending", "ready", "error".
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Plan    *PlanRecord `json:"plan,omitempty"`

	// Fallback is true while the mock analyst stands in after a rate limit.
	Fallback      bool      `json:"fallback"`
	FallbackUntil time.Time `json:"fallbackUntil,omitempty"`
}

// MarketSnapshot is an immutable read-only view of the market data store.
type MarketSnapshot struct {
	Symbol string `json:"symbol"`
	Epoch  uint64 `json:"epoch"`

	Price float64 `json:"price"`

	// CVD is the cumulative volume delta since the instrument was selected.
	CVD float64 `json:"cvd"`

	Candles []Candle `json:"candles"`

	// Current is the in-progress candle, nil before the first tick.
	Current *Candle `json:"current,omitempty"`

	Indicators   Indicators          `json:"indicators"`
	OrderBook    OrderBook           `json:"orderBook"`
	Liquidations Liquidations        `json:"liquidations"`
	OpenInterest []OpenInterestPoint `json:"openInterest"`
	Session      Session             `json:"session"`

	// TradesPerMinute counts ticks over the trailing minute.
	TradesPerMinute int `json:"tradesPerMinute"`

	// Trades lists the most recent trades, newest first.
	Trades []Trade `json:"trades"`

	// Signal is the latest actionable plan, nil until one was made for
	// this instrument.
	Signal *TradeSignal `json:"signal,omitempty"`

	Feed      FeedStatus    `json:"feed"`
	Analysis  AnalysisState `json:"analysis"`
	Config    BotConfig     `json:"config"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// LastCandle returns the newest closed candle.
func (s *MarketSnapshot) LastCandle() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}
