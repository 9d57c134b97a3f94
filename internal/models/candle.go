package models

import (
	"math"
	"time"
)

// FootprintLevel is the traded volume at one price bucket of a candle, split by aggressor side.
type FootprintLevel struct {
	// Price is the bucket price, rounded to the configured price step.
	Price float64 `json:"price"`

	// BuyVolume is the volume bought aggressively at this bucket.
	BuyVolume float64 `json:"buyVolume"`

	// SellVolume is the volume sold aggressively at this bucket.
	SellVolume float64 `json:"sellVolume"`
}

// Total is the combined volume at the bucket.
func (f FootprintLevel) Total() float64 { return f.BuyVolume + f.SellVolume }

// Candle is an OHLCV aggregate over one fixed time bucket.
// Once closed it is never mutated.
type Candle struct {
	// Time is the start of the bucket.
	Time time.Time `json:"time"`

	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`

	// Volume is BuyVolume + SellVolume.
	Volume     float64 `json:"volume"`
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`

	// Footprint lists price buckets in the order they were first traded.
	Footprint []FootprintLevel `json:"footprint,omitempty"`
}

// Delta is the signed volume of the candle.
func (c Candle) Delta() float64 { return c.BuyVolume - c.SellVolume }

// TypicalPrice is (high+low+close)/3.
func (c Candle) TypicalPrice() float64 { return (c.High + c.Low + c.Close) / 3 }

// Range is high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Clone returns a deep copy of the candle.
func (c Candle) Clone() Candle {
	if c.Footprint != nil {
		fp := make([]FootprintLevel, len(c.Footprint))
		copy(fp, c.Footprint)
		c.Footprint = fp
	}
	return c
}

// Consistent reports whether the OHLC bounds and the volume split agree within tol.
func (c Candle) Consistent(tol float64) bool {
	if c.High+tol < math.Max(c.Open, c.Close) {
		return false
	}
	if c.Low-tol > math.Min(c.Open, c.Close) {
		return false
	}
	return math.Abs(c.Volume-(c.BuyVolume+c.SellVolume)) <= tol
}

// CandleRecord is a closed candle tagged with its instrument, as recorded
// and published.
type CandleRecord struct {
	Symbol   string        `json:"symbol"`
	Interval time.Duration `json:"interval"`
	Candle
}
