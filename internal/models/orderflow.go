package models

import "time"

// BookLevel is one price level of an order book side.
type BookLevel struct {
	// Price of the resting orders at this level.
	Price float64 `json:"price"`

	// Size is the resting base amount at this level.
	Size float64 `json:"size"`
}

// OrderBook is a full depth snapshot. It is replaced wholesale on each refresh.
type OrderBook struct {
	// Bids are sorted by price descending.
	Bids []BookLevel `json:"bids"`

	// Asks are sorted by price ascending.
	Asks []BookLevel `json:"asks"`

	// UpdatedAt is when the snapshot was produced.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the book.
func (b OrderBook) Clone() OrderBook {
	b.Bids = append([]BookLevel(nil), b.Bids...)
	b.Asks = append([]BookLevel(nil), b.Asks...)
	return b
}

// LiquidationLevel is an estimated cluster of liquidations at a price.
type LiquidationLevel struct {
	Price float64 `json:"price"`

	// Amount is the notional expected to be liquidated.
	Amount float64 `json:"amount"`
}

// Liquidations holds the estimated long and short liquidation clusters.
type Liquidations struct {
	// Longs sit below the price.
	Longs []LiquidationLevel `json:"longs"`

	// Shorts sit above the price.
	Shorts []LiquidationLevel `json:"shorts"`
}

// Clone returns a deep copy of the levels.
func (l Liquidations) Clone() Liquidations {
	l.Longs = append([]LiquidationLevel(nil), l.Longs...)
	l.Shorts = append([]LiquidationLevel(nil), l.Shorts...)
	return l
}

// OpenInterestPoint is one sample of the open interest series.
type OpenInterestPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// OrderFlow is one refresh of the non-trade market data.
type OrderFlow struct {
	Book         OrderBook         `json:"book"`
	Liquidations Liquidations      `json:"liquidations"`
	OpenInterest OpenInterestPoint `json:"openInterest"`
}

// OrderBookSnapshot is a book tagged with its instrument, as recorded to storage.
type OrderBookSnapshot struct {
	// SnapshotID groups all levels of one refresh.
	SnapshotID string
	Symbol     string
	Book       OrderBook
}
