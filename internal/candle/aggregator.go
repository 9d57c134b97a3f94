// Package candle turns a stream of ticks into fixed-interval candles with a footprint.
package candle

import (
	"math"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
)

// DefaultPriceStep is the footprint bucket size used when none is configured.
const DefaultPriceStep = 0.5

// Aggregator owns the in-progress candle and the cumulative volume delta
// of one instrument. It is not safe for concurrent use; the dispatcher
// is its only caller.
type Aggregator struct {
	step float64

	current   *models.Candle
	ticks     int
	footprint map[float64]int // bucket price -> index into current.Footprint

	lastClose float64
	hasClose  bool

	cvd float64
}

// NewAggregator creates an aggregator with the given footprint price step.
func NewAggregator(step float64) *Aggregator {
	if step <= 0 {
		step = DefaultPriceStep
	}
	return &Aggregator{step: step}
}

// BucketPrice rounds price to the nearest footprint step.
func BucketPrice(price, step float64) float64 {
	return math.Round(price/step) * step
}

// Ingest folds a tick into the in-progress candle and the running CVD.
// On a cold start the first tick opens a candle at now.
func (a *Aggregator) Ingest(t models.Tick, now time.Time) {
	if a.current == nil {
		a.open(now, t.Price)
	}

	c := a.current
	if a.ticks == 0 {
		c.Open, c.High, c.Low = t.Price, t.Price, t.Price
	} else {
		c.High = math.Max(c.High, t.Price)
		c.Low = math.Min(c.Low, t.Price)
	}
	c.Close = t.Price
	c.Volume += t.Quantity

	bucket := BucketPrice(t.Price, a.step)
	idx, ok := a.footprint[bucket]
	if !ok {
		idx = len(c.Footprint)
		c.Footprint = append(c.Footprint, models.FootprintLevel{Price: bucket})
		a.footprint[bucket] = idx
	}

	if t.IsBuy() {
		c.BuyVolume += t.Quantity
		c.Footprint[idx].BuyVolume += t.Quantity
	} else {
		c.SellVolume += t.Quantity
		c.Footprint[idx].SellVolume += t.Quantity
	}

	a.ticks++
	a.cvd += t.SignedQuantity()
}

// Close finalizes the current bucket and seeds the next one at now.
//
// A bucket that saw ticks is emitted as accumulated. A bucket without
// ticks is emitted as a zero-volume candle at the previous close. With
// no previous close and no ticks nothing is emitted.
func (a *Aggregator) Close(now time.Time) (models.Candle, bool) {
	var (
		out  models.Candle
		emit bool
	)

	switch {
	case a.current != nil && a.ticks > 0:
		out = a.current.Clone()
		emit = true
	case a.hasClose:
		start := now
		if a.current != nil {
			start = a.current.Time
		}
		out = models.Candle{
			Time:  start,
			Open:  a.lastClose,
			High:  a.lastClose,
			Low:   a.lastClose,
			Close: a.lastClose,
		}
		emit = true
	default:
		return models.Candle{}, false
	}

	a.lastClose = out.Close
	a.hasClose = true
	a.open(now, out.Close)
	return out, emit
}

// Current returns a copy of the in-progress candle.
func (a *Aggregator) Current() (models.Candle, bool) {
	if a.current == nil {
		return models.Candle{}, false
	}
	return a.current.Clone(), true
}

// LastPrice is the close of the in-progress candle, falling back to the
// last emitted close.
func (a *Aggregator) LastPrice() float64 {
	if a.current != nil {
		return a.current.Close
	}
	return a.lastClose
}

// CVD returns the cumulative volume delta.
func (a *Aggregator) CVD() float64 { return a.cvd }

// Ticks returns the number of ticks in the in-progress candle.
func (a *Aggregator) Ticks() int { return a.ticks }

// Resume continues from a history that was not built from ticks: the next
// empty bucket closes flat at lastClose.
func (a *Aggregator) Resume(lastClose float64) {
	a.lastClose = lastClose
	a.hasClose = true
}

// Reset drops all state, including CVD. Used on an instrument switch.
func (a *Aggregator) Reset() {
	a.current = nil
	a.ticks = 0
	a.footprint = nil
	a.lastClose = 0
	a.hasClose = false
	a.cvd = 0
}

func (a *Aggregator) open(start time.Time, price float64) {
	a.current = &models.Candle{
		Time:  start,
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
	}
	a.ticks = 0
	a.footprint = make(map[float64]int)
}
