// Package feed produces raw trades and order flow for the tracked instrument,
// either from the Binance aggTrade stream or from a random-walk simulator.
package feed

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/sirupsen/logrus"
)

// Handler receives what a Source produces. Both callbacks may be called
// from the Source's goroutine and must not block for long.
type Handler struct {
	OnTick   func(models.RawTick)
	OnStatus func(models.FeedStatus)
}

func (h Handler) tick(t models.RawTick) {
	if h.OnTick != nil {
		h.OnTick(t)
	}
}

func (h Handler) status(s models.FeedStatus) {
	if h.OnStatus != nil {
		h.OnStatus(s)
	}
}

// Source is a stream of raw trades for one instrument.
type Source interface {
	Name() string

	// Run blocks until ctx is cancelled.
	Run(ctx context.Context, h Handler) error
}

// Backfiller is a Source that can make up a closed candle history to
// start from, so indicators and analysis need not wait for live candles.
type Backfiller interface {
	// Backfill returns n candles of interval length, oldest first, the
	// newest ending at now.
	Backfill(n int, interval time.Duration, now time.Time) []models.Candle
}

// Config selects and tunes the feed sources.
type Config struct {
	BinanceURL              string
	LiveSymbols             []string
	SimulatedTicksPerSecond float64
}

// NewSource returns the live Binance source for the configured live
// symbols and a simulator for everything else.
func NewSource(cfg Config, symbol string, logger *logrus.Logger) Source {
	if slices.ContainsFunc(cfg.LiveSymbols, func(s string) bool { return strings.EqualFold(s, symbol) }) {
		return NewBinanceSource(cfg.BinanceURL, symbol, logger)
	}
	return NewSimulator(symbol, cfg.SimulatedTicksPerSecond, time.Now().UnixNano())
}
