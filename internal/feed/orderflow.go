package feed

import (
	"math"
	"math/rand"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
)

const (
	bookDepth         = 20
	liquidationLevels = 5
)

// OrderFlowSimulator synthesizes order book depth, liquidation clusters
// and an open interest walk around the current price.
type OrderFlowSimulator struct {
	asset Asset
	rng   *rand.Rand
	oi    float64
}

// NewOrderFlowSimulator creates an order flow simulator for symbol.
func NewOrderFlowSimulator(symbol string, seed int64) *OrderFlowSimulator {
	rng := rand.New(rand.NewSource(seed))
	return &OrderFlowSimulator{
		asset: AssetFor(symbol),
		rng:   rng,
		oi:    50000 + rng.Float64()*10000,
	}
}

// Next builds one refresh around price. lastVolume is the volume of the
// newest closed candle and drives the open interest drift.
func (o *OrderFlowSimulator) Next(price, lastVolume float64, now time.Time) models.OrderFlow {
	vol := o.asset.Volatility
	step := vol * 0.2

	book := models.OrderBook{
		Bids:      make([]models.BookLevel, 0, bookDepth),
		Asks:      make([]models.BookLevel, 0, bookDepth),
		UpdatedAt: now,
	}
	for i := 1; i <= bookDepth; i++ {
		book.Bids = append(book.Bids, models.BookLevel{Price: price - float64(i)*step, Size: o.rng.Float64() * 50})
		book.Asks = append(book.Asks, models.BookLevel{Price: price + float64(i)*step, Size: o.rng.Float64() * 50})
	}

	var liq models.Liquidations
	for i := 1; i <= liquidationLevels; i++ {
		liq.Longs = append(liq.Longs, models.LiquidationLevel{
			Price:  price - float64(i)*vol*2,
			Amount: (o.rng.Float64()*50 + 10) * 1e6,
		})
		liq.Shorts = append(liq.Shorts, models.LiquidationLevel{
			Price:  price + float64(i)*vol*2,
			Amount: (o.rng.Float64()*50 + 10) * 1e6,
		})
	}

	o.oi = math.Max(0, o.oi+lastVolume/10*(o.rng.Float64()-0.45))

	return models.OrderFlow{
		Book:         book,
		Liquidations: liq,
		OpenInterest: models.OpenInterestPoint{Time: now, Value: o.oi},
	}
}
