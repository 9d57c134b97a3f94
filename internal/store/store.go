// Package store holds the mutable market state of the tracked instrument.
package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/navid-fn/flowscope/internal/candle"
	"github.com/navid-fn/flowscope/internal/indicator"
	"github.com/navid-fn/flowscope/internal/models"
)

var (
	// ErrUnknownAnchor is returned for an anchor kind the store cannot resolve.
	ErrUnknownAnchor = errors.New("unknown anchor kind")

	// ErrNoHistory is returned when an operation needs at least one closed candle.
	ErrNoHistory = errors.New("no closed candles yet")

	// ErrAnchorOutOfRange is returned for a custom anchor outside the history window.
	ErrAnchorOutOfRange = errors.New("anchor outside history window")
)

const (
	tradeRateWindow = time.Minute

	// TradeLogSize is how many recent trades the snapshot lists.
	TradeLogSize = 50
)

// Config holds the store sizing and footprint settings.
type Config struct {
	// HistorySize bounds the candle and open interest series.
	HistorySize int

	// PriceStep is the footprint bucket size.
	PriceStep float64

	// Engine computes indicators; nil uses indicator.NewEngine().
	Engine *indicator.Engine
}

// Store is the single owner of the market state of one instrument.
// It is not safe for concurrent use; readers on other goroutines get
// copies through Snapshot.
type Store struct {
	cfg    Config
	engine *indicator.Engine

	symbol string
	epoch  uint64

	agg     *candle.Aggregator
	history *Ring[models.Candle]
	oi      *Ring[models.OpenInterestPoint]

	state      *indicator.State
	indicators models.Indicators

	book         models.OrderBook
	liquidations models.Liquidations

	tickTimes []time.Time
	trades    *Ring[models.Trade]
	tradeSeq  uint64
}

// New creates an empty store.
func New(cfg Config) *Store {
	engine := cfg.Engine
	if engine == nil {
		engine = indicator.NewEngine()
	}
	return &Store{
		cfg:     cfg,
		engine:  engine,
		agg:     candle.NewAggregator(cfg.PriceStep),
		history: NewRing[models.Candle](cfg.HistorySize),
		oi:      NewRing[models.OpenInterestPoint](cfg.HistorySize),
		trades:  NewRing[models.Trade](TradeLogSize),
		state:   indicator.NewState(),
	}
}

// Reset drops all market state and starts tracking symbol under epoch.
func (s *Store) Reset(symbol string, epoch uint64) {
	s.symbol = symbol
	s.epoch = epoch
	s.agg.Reset()
	s.history.Clear()
	s.oi.Clear()
	s.state.Reset()
	s.indicators = models.Indicators{}
	s.book = models.OrderBook{}
	s.liquidations = models.Liquidations{}
	s.tickTimes = s.tickTimes[:0]
	s.trades.Clear()
	s.tradeSeq = 0
}

// Seed loads a closed candle history into an empty store, advancing the
// indicators once per candle as if each had closed live.
func (s *Store) Seed(candles []models.Candle) {
	if len(candles) == 0 || s.history.Len() > 0 {
		return
	}
	for _, c := range candles {
		s.history.Push(c.Clone())
		s.indicators = s.engine.Update(s.history.Items(), s.state)
	}
	s.agg.Resume(candles[len(candles)-1].Close)
}

// Symbol returns the tracked instrument.
func (s *Store) Symbol() string { return s.symbol }

// Epoch returns the generation the store was last reset under.
func (s *Store) Epoch() uint64 { return s.epoch }

// Len returns the number of closed candles held.
func (s *Store) Len() int { return s.history.Len() }

// Price is the last traded price, 0 before the first tick.
func (s *Store) Price() float64 { return s.agg.LastPrice() }

// LastCandle returns the newest closed candle.
func (s *Store) LastCandle() (models.Candle, bool) { return s.history.Last() }

// ApplyTick folds a parsed tick into the in-progress candle.
func (s *Store) ApplyTick(t models.Tick, now time.Time) {
	s.agg.Ingest(t, now)
	s.tradeSeq++
	s.trades.Push(models.Trade{
		ID:    s.tradeSeq,
		Side:  t.Side,
		Price: t.Price,
		Size:  t.Quantity,
		Time:  t.Time,
	})
	s.tickTimes = append(s.tickTimes, now)
	s.pruneTicks(now)
}

// CloseCandle closes the current bucket. When a candle is emitted it is
// appended to history and the indicators are recomputed.
func (s *Store) CloseCandle(now time.Time) (models.Candle, bool) {
	c, ok := s.agg.Close(now)
	if !ok {
		return models.Candle{}, false
	}
	s.history.Push(c)
	s.indicators = s.engine.Update(s.history.Items(), s.state)
	return c, true
}

// SetOrderFlow replaces the order book and liquidation levels and
// appends the open interest sample.
func (s *Store) SetOrderFlow(of models.OrderFlow) {
	s.book = of.Book.Clone()
	s.liquidations = of.Liquidations.Clone()
	if !of.OpenInterest.Time.IsZero() {
		s.oi.Push(of.OpenInterest)
	}
}

// SetAnchor moves the AVWAP anchor. For AnchorCustom, at must fall inside
// the history window; other kinds ignore it.
func (s *Store) SetAnchor(kind models.AnchorKind, at time.Time) (models.Anchor, error) {
	history := s.history.Items()
	if len(history) == 0 {
		return models.Anchor{}, ErrNoHistory
	}

	var anchor models.Anchor
	switch kind {
	case models.AnchorCustom:
		anchor = models.Anchor{Time: at, Label: "custom", Kind: kind}
		if indicator.AnchorStale(history, anchor) {
			return models.Anchor{}, fmt.Errorf("%w: %s", ErrAnchorOutOfRange, at.Format(time.RFC3339))
		}
	case models.AnchorSession, models.AnchorHigh, models.AnchorLow:
		a, err := indicator.ResolveAnchor(history, kind)
		if err != nil {
			return models.Anchor{}, err
		}
		anchor = a
	default:
		return models.Anchor{}, fmt.Errorf("%w: %q", ErrUnknownAnchor, kind)
	}

	s.state.Anchor = anchor
	s.indicators = s.engine.Recompute(history, s.state)
	return anchor, nil
}

// History returns the closed candles oldest first.
func (s *Store) History() []models.Candle {
	return s.history.Items()
}

// Snapshot returns a deep copy of the market state.
func (s *Store) Snapshot(now time.Time) models.MarketSnapshot {
	s.pruneTicks(now)

	snap := models.MarketSnapshot{
		Symbol:          s.symbol,
		Epoch:           s.epoch,
		Price:           s.agg.LastPrice(),
		CVD:             s.agg.CVD(),
		Candles:         make([]models.Candle, 0, s.history.Len()),
		Indicators:      s.indicators.Clone(),
		OrderBook:       s.book.Clone(),
		Liquidations:    s.liquidations.Clone(),
		OpenInterest:    s.oi.Items(),
		Session:         indicator.SessionAt(now),
		TradesPerMinute: len(s.tickTimes),
		Trades:          s.trades.Items(),
		UpdatedAt:       now,
	}
	slices.Reverse(snap.Trades)
	for _, c := range s.history.Items() {
		snap.Candles = append(snap.Candles, c.Clone())
	}
	if cur, ok := s.agg.Current(); ok {
		snap.Current = &cur
	}
	return snap
}

func (s *Store) pruneTicks(now time.Time) {
	cutoff := now.Add(-tradeRateWindow)
	i := 0
	for i < len(s.tickTimes) && !s.tickTimes[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.tickTimes = append(s.tickTimes[:0], s.tickTimes[i:]...)
	}
}
