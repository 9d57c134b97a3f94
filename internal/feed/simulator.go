package feed

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"golang.org/x/time/rate"
)

// Asset holds the random-walk parameters of a simulated instrument.
type Asset struct {
	// Volatility is the typical price move of one candle.
	Volatility float64

	// BasePrice is where the walk starts.
	BasePrice float64
}

var (
	assets = map[string]Asset{
		"BTCUSDT": {Volatility: 500, BasePrice: 68000},
		"ETHUSDT": {Volatility: 50, BasePrice: 3800},
		"SOLUSDT": {Volatility: 5, BasePrice: 165},
		"EURUSD":  {Volatility: 0.0005, BasePrice: 1.085},
		"GBPUSD":  {Volatility: 0.0006, BasePrice: 1.27},
		"USDJPY":  {Volatility: 0.1, BasePrice: 157},
		"XAUUSD":  {Volatility: 15, BasePrice: 2350},
		"XAGUSD":  {Volatility: 0.5, BasePrice: 30.5},
	}
	defaultAsset = Asset{Volatility: 1000, BasePrice: 50000}
)

// AssetFor returns the simulation parameters of symbol.
func AssetFor(symbol string) Asset {
	if a, ok := assets[strings.ToUpper(symbol)]; ok {
		return a
	}
	return defaultAsset
}

// Simulator generates a random walk of trades around the asset base price.
type Simulator struct {
	symbol  string
	asset   Asset
	limiter *rate.Limiter
	rng     *rand.Rand
	price   float64
}

// NewSimulator creates a simulator emitting ticksPerSecond trades on average.
func NewSimulator(symbol string, ticksPerSecond float64, seed int64) *Simulator {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 4
	}
	asset := AssetFor(symbol)
	return &Simulator{
		symbol:  symbol,
		asset:   asset,
		limiter: rate.NewLimiter(rate.Limit(ticksPerSecond), 1),
		rng:     rand.New(rand.NewSource(seed)),
		price:   asset.BasePrice,
	}
}

func (s *Simulator) Name() string { return "simulator" }

// Next produces the next simulated trade at now.
func (s *Simulator) Next(now time.Time) models.RawTick {
	step := s.asset.Volatility * 0.05
	s.price += (s.rng.Float64() - 0.5) * step
	if floor := s.asset.BasePrice * 0.01; s.price < floor {
		s.price = floor
	}

	qty := s.rng.Float64()*5 + 0.01
	return models.RawTick{
		Price:       strconv.FormatFloat(s.price, 'f', -1, 64),
		Quantity:    strconv.FormatFloat(qty, 'f', -1, 64),
		Timestamp:   now.UnixMilli(),
		IsMakerSell: s.rng.Intn(2) == 0,
	}
}

// Backfill walks n candles back from now with the asset volatility, each
// with a footprint that adds up to its volume. The live walk continues
// from the last close.
func (s *Simulator) Backfill(n int, interval time.Duration, now time.Time) []models.Candle {
	if n <= 0 {
		return nil
	}
	vol := s.asset.Volatility
	floor := s.asset.BasePrice * 0.01
	price := s.asset.BasePrice * (1 + (s.rng.Float64()-0.5)*0.001)
	start := now.Add(-time.Duration(n) * interval)

	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		open := price
		close := math.Max(floor, open+(s.rng.Float64()-0.5)*vol*2)
		volume := s.rng.Float64()*100 + 50
		buy := volume * (0.4 + s.rng.Float64()*0.2)

		c := models.Candle{
			Time:       start.Add(time.Duration(i) * interval),
			Open:       open,
			High:       math.Max(open, close) + s.rng.Float64()*vol*0.5,
			Low:        math.Max(floor, math.Min(open, close)-s.rng.Float64()*vol*0.5),
			Close:      close,
			Volume:     volume,
			BuyVolume:  buy,
			SellVolume: volume - buy,
		}
		c.Footprint = s.footprint(c)
		out = append(out, c)
		price = close
	}
	s.price = price
	return out
}

// footprint spreads the candle volume over 5 to 14 evenly spaced levels
// between its low and high.
func (s *Simulator) footprint(c models.Candle) []models.FootprintLevel {
	levels := 5 + s.rng.Intn(10)
	step := c.Range() / float64(levels-1)
	if step <= 0 {
		return []models.FootprintLevel{{Price: c.Close, BuyVolume: c.BuyVolume, SellVolume: c.SellVolume}}
	}

	buyW := make([]float64, levels)
	sellW := make([]float64, levels)
	var buySum, sellSum float64
	for i := range buyW {
		buyW[i] = s.rng.Float64() + 0.01
		sellW[i] = s.rng.Float64() + 0.01
		buySum += buyW[i]
		sellSum += sellW[i]
	}

	fp := make([]models.FootprintLevel, levels)
	for i := range fp {
		fp[i] = models.FootprintLevel{
			Price:      c.Low + float64(i)*step,
			BuyVolume:  c.BuyVolume * buyW[i] / buySum,
			SellVolume: c.SellVolume * sellW[i] / sellSum,
		}
	}
	return fp
}

// Run emits trades paced by the limiter until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, h Handler) error {
	h.status(models.FeedSimulated)
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		h.tick(s.Next(time.Now()))
	}
}
