// Package models defines the domain models used across the application.
package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrMalformedTick is returned when a raw tick carries a field that is not a finite number.
var ErrMalformedTick = errors.New("malformed tick")

// Side is the aggressor side of an executed trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// RawTick is a single executed trade as received from the feed.
// Field names follow the Binance aggTrade payload.
type RawTick struct {
	// Price is the execution price as a decimal string.
	Price string `json:"p"`

	// Quantity is the executed base amount as a decimal string.
	Quantity string `json:"q"`

	// Timestamp is the trade time in epoch milliseconds.
	Timestamp int64 `json:"T"`

	// IsMakerSell is true when the buyer was the maker, so the aggressor sold.
	IsMakerSell bool `json:"m"`
}

// Tick is a parsed trade ready for aggregation.
type Tick struct {
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Side     Side      `json:"side"`
	Time     time.Time `json:"time"`
}

// IsBuy reports whether the aggressor bought.
func (t Tick) IsBuy() bool { return t.Side == SideBuy }

// SignedQuantity is +quantity for buys and -quantity for sells.
func (t Tick) SignedQuantity() float64 {
	if t.IsBuy() {
		return t.Quantity
	}
	return -t.Quantity
}

// Trade is one entry of the recent-trades log.
type Trade struct {
	// ID numbers the trades of one instrument from 1.
	ID    uint64    `json:"id"`
	Side  Side      `json:"side"`
	Price float64   `json:"price"`
	Size  float64   `json:"size"`
	Time  time.Time `json:"time"`
}

// ParseTick converts a raw feed record into a Tick.
// Non-numeric, NaN or infinite fields fail the tick, not the stream.
func ParseTick(raw RawTick) (Tick, error) {
	price, err := parseFinite(raw.Price)
	if err != nil {
		return Tick{}, fmt.Errorf("%w: price %q: %v", ErrMalformedTick, raw.Price, err)
	}
	qty, err := parseFinite(raw.Quantity)
	if err != nil {
		return Tick{}, fmt.Errorf("%w: quantity %q: %v", ErrMalformedTick, raw.Quantity, err)
	}

	side := SideBuy
	if raw.IsMakerSell {
		side = SideSell
	}

	return Tick{
		Price:    price,
		Quantity: qty,
		Side:     side,
		Time:     time.UnixMilli(raw.Timestamp).UTC(),
	}, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}
