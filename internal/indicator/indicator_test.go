package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func flat(at time.Time, price, vol float64) models.Candle {
	return models.Candle{Time: at, Open: price, High: price, Low: price, Close: price, Volume: vol, BuyVolume: vol}
}

func TestEMAScenario(t *testing.T) {
	candles := []models.Candle{
		{Time: t0, Open: 50, High: 55, Low: 48, Close: 52, Volume: 10},
		{Time: t0.Add(5 * time.Second), Open: 52, High: 60, Low: 51, Close: 58, Volume: 20},
		{Time: t0.Add(10 * time.Second), Open: 58, High: 59, Low: 54, Close: 56, Volume: 15},
	}

	// Smoothing starts once period candles exist: 58*2/3 + 52/3 = 56.
	var ema float64
	want := []float64{52, 56, 56}
	for i := range candles {
		ema = EMA(candles[:i+1], 2, ema)
		assert.InDelta(t, want[i], ema, 1e-9, "after candle %d", i+1)
	}
}

func TestEMABootstrapThenSmooth(t *testing.T) {
	const period = 5
	var (
		history []models.Candle
		ema     float64
		sum     float64
	)
	for i := 0; i < 12; i++ {
		c := flat(t0.Add(time.Duration(i)*5*time.Second), float64(100+i*3), 1)
		history = append(history, c)
		prev := ema
		ema = EMA(history, period, prev)

		sum += c.Close
		if len(history) < period {
			assert.InDelta(t, sum/float64(len(history)), ema, 1e-9)
			continue
		}
		k := 2.0 / (period + 1)
		assert.InDelta(t, c.Close*k+prev*(1-k), ema, 1e-9)
	}
}

func TestEMASmoothsOncePeriodCandlesExist(t *testing.T) {
	history := []models.Candle{flat(t0, 50, 1), flat(t0.Add(5*time.Second), 60, 1)}
	assert.InDelta(t, 60*2.0/3+50*1.0/3, EMA(history, 2, 50), 1e-9)
	assert.InDelta(t, 50.0, EMA(history[:1], 2, 50), 1e-9)
}

func TestEMAZeroSentinelRebootstraps(t *testing.T) {
	history := []models.Candle{flat(t0, 10, 1), flat(t0, 20, 1), flat(t0, 30, 1)}
	assert.InDelta(t, 25.0, EMA(history, 2, 0), 1e-9)
	assert.Zero(t, EMA(nil, 2, 0))
	assert.Zero(t, EMA(history, 0, 5))
}

func TestVWAPWindows(t *testing.T) {
	history := []models.Candle{
		flat(t0, 100, 1),
		flat(t0.Add(4*time.Minute), 110, 3),
		flat(t0.Add(10*time.Minute), 120, 1),
	}

	assert.InDelta(t, 120.0, VWAP(history, 5*time.Minute), 1e-9)
	assert.InDelta(t, (100*1+110*3+120*1)/5.0, VWAP(history, time.Hour), 1e-9)
	assert.Zero(t, VWAP([]models.Candle{flat(t0, 100, 0)}, time.Hour))
	assert.Zero(t, VWAP(nil, time.Hour))
}

func TestAnchoredVWAPFlatVolumeIsMeanOfTypicalPrices(t *testing.T) {
	var history []models.Candle
	for i, p := range []float64{5, 10, 20, 30, 40} {
		history = append(history, flat(t0.Add(time.Duration(i)*time.Minute), p, 5))
	}

	points := AnchoredVWAP(history, history[1].Time)
	require.Len(t, points, len(history))
	assert.False(t, points[0].Valid)

	var sum float64
	for i := 1; i < len(history); i++ {
		sum += history[i].TypicalPrice()
		require.True(t, points[i].Valid)
		assert.InDelta(t, sum/float64(i), points[i].Value, 1e-9)
		assert.GreaterOrEqual(t, points[i].Upper, points[i].Value)
		assert.LessOrEqual(t, points[i].Lower, points[i].Value)
	}

	assert.Zero(t, points[1].Upper-points[1].Lower)
	sigma := math.Sqrt((20 - 15.0) * (20 - 15.0) * 5 / 10)
	assert.InDelta(t, 15+sigma, points[2].Upper, 1e-9)
	assert.InDelta(t, 15-sigma, points[2].Lower, 1e-9)
}

func TestAnchoredVWAPZeroVolume(t *testing.T) {
	history := []models.Candle{flat(t0, 100, 0), flat(t0.Add(time.Minute), 101, 0)}
	points := AnchoredVWAP(history, t0)
	for _, p := range points {
		assert.True(t, p.Valid)
		assert.Zero(t, p.Value)
		assert.Zero(t, p.Upper)
	}
}

func TestProfileScenario(t *testing.T) {
	c := models.Candle{
		Close: 50, Low: 45, High: 55,
		Footprint: []models.FootprintLevel{
			{Price: 45, BuyVolume: 5, SellVolume: 1},
			{Price: 50, BuyVolume: 10, SellVolume: 2},
			{Price: 55, BuyVolume: 3, SellVolume: 1},
		},
	}

	vp := Profile(c)
	assert.Equal(t, 50.0, vp.POC)
	assert.Equal(t, 12.0, vp.MaxVolume)
	assert.Equal(t, 22.0, vp.TotalVolume)
	assert.Equal(t, 45.0, vp.ValueAreaLow)
	assert.Equal(t, 50.0, vp.ValueAreaHigh)
}

func TestProfile(t *testing.T) {
	tests := []struct {
		name           string
		footprint      []models.FootprintLevel
		poc, low, high float64
	}{
		{
			name:      "tie goes to first traded bucket",
			footprint: []models.FootprintLevel{{Price: 101, BuyVolume: 5}, {Price: 100, SellVolume: 5}},
			poc:       101, low: 100, high: 101,
		},
		{
			name:      "equal neighbours expand downward",
			footprint: []models.FootprintLevel{{Price: 100, BuyVolume: 5}, {Price: 99, BuyVolume: 3}, {Price: 101, BuyVolume: 3}},
			poc:       100, low: 99, high: 100,
		},
		{
			name:      "single bucket",
			footprint: []models.FootprintLevel{{Price: 100, BuyVolume: 1}},
			poc:       100, low: 100, high: 100,
		},
		{
			name:      "expands upward when above is heavier",
			footprint: []models.FootprintLevel{{Price: 100, BuyVolume: 10}, {Price: 100.5, BuyVolume: 6}, {Price: 99.5, BuyVolume: 2}},
			poc:       100, low: 100, high: 100.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := Profile(models.Candle{Footprint: tt.footprint})
			assert.Equal(t, tt.poc, vp.POC)
			assert.Equal(t, tt.low, vp.ValueAreaLow)
			assert.Equal(t, tt.high, vp.ValueAreaHigh)

			var inside float64
			for _, lvl := range tt.footprint {
				if lvl.Price >= vp.ValueAreaLow && lvl.Price <= vp.ValueAreaHigh {
					inside += lvl.Total()
				}
			}
			assert.GreaterOrEqual(t, inside, ValueAreaShare*vp.TotalVolume)
		})
	}
}

func TestProfileWithoutFootprint(t *testing.T) {
	vp := Profile(models.Candle{Open: 10, High: 12, Low: 9, Close: 11})
	assert.Equal(t, 11.0, vp.POC)
	assert.Equal(t, 9.0, vp.ValueAreaLow)
	assert.Equal(t, 12.0, vp.ValueAreaHigh)
	assert.Equal(t, 1.0, vp.MaxVolume)
}

func TestSessionAt(t *testing.T) {
	tests := []struct {
		hour int
		want models.Session
	}{
		{0, models.SessionAsia},
		{6, models.SessionAsia},
		{7, models.SessionOverlap},
		{8, models.SessionLondon},
		{11, models.SessionLondon},
		{12, models.SessionOverlap},
		{15, models.SessionOverlap},
		{16, models.SessionNewYork},
		{20, models.SessionNewYork},
		{21, models.SessionClosed},
		{23, models.SessionClosed},
	}
	for _, tt := range tests {
		at := time.Date(2024, 5, 1, tt.hour, 30, 0, 0, time.UTC)
		assert.Equal(t, tt.want, SessionAt(at), "hour %d", tt.hour)
	}
}

func TestLevelsAndPriceRange(t *testing.T) {
	history := []models.Candle{
		{Open: 10, High: 12, Low: 9, Close: 11},
		{Open: 11, High: 15, Low: 10, Close: 14},
	}
	s, r := Levels(history)
	assert.Equal(t, 9.0, s)
	assert.Equal(t, 15.0, r)

	lo, hi := PriceRange([]models.Candle{flat(t0, 100, 1), flat(t0, 100, 0)})
	assert.InDelta(t, 99.0, lo, 1e-9)
	assert.InDelta(t, 101.0, hi, 1e-9)

	s, r = Levels(nil)
	assert.Zero(t, s)
	assert.Zero(t, r)
}

func TestResolveAnchor(t *testing.T) {
	asia := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	history := []models.Candle{
		{Time: asia, High: 10, Low: 5, Close: 8},
		{Time: asia.Add(2 * time.Hour), High: 20, Low: 7, Close: 9},
		{Time: asia.Add(3 * time.Hour), High: 12, Low: 2, Close: 10},
	}

	a, err := ResolveAnchor(history, models.AnchorSession)
	require.NoError(t, err)
	assert.Equal(t, history[1].Time, a.Time)

	a, err = ResolveAnchor(history, models.AnchorHigh)
	require.NoError(t, err)
	assert.Equal(t, history[1].Time, a.Time)

	a, err = ResolveAnchor(history, models.AnchorLow)
	require.NoError(t, err)
	assert.Equal(t, history[2].Time, a.Time)

	_, err = ResolveAnchor(history, "weekly")
	assert.Error(t, err)
	_, err = ResolveAnchor(nil, models.AnchorSession)
	assert.Error(t, err)
}

func TestEngineReanchorsWhenAnchorLeavesWindow(t *testing.T) {
	e := NewEngine()
	st := NewState()
	st.Anchor = models.Anchor{Time: t0.Add(100 * time.Second), Kind: models.AnchorCustom}

	var history []models.Candle
	for i := 0; i < 10; i++ {
		history = append(history, flat(t0.Add(time.Duration(150+5*i)*time.Second), float64(100+i), 2))
	}

	out := e.Update(history, st)

	assert.Equal(t, models.AnchorSession, st.Anchor.Kind)
	assert.Equal(t, history[0].Time, st.Anchor.Time)
	assert.Equal(t, st.Anchor, out.Anchor)
	assert.Equal(t, AnchoredVWAP(history, history[0].Time), out.AVWAP)
	assert.True(t, out.AVWAP[0].Valid)
}

func TestEngineKeepsAnchorInsideWindow(t *testing.T) {
	e := NewEngine()
	st := NewState()

	var history []models.Candle
	for i := 0; i < 5; i++ {
		history = append(history, flat(t0.Add(time.Duration(i)*time.Minute), float64(100+i), 1))
	}
	st.Anchor = models.Anchor{Time: history[2].Time, Kind: models.AnchorHigh}

	out := e.Update(history, st)
	assert.Equal(t, history[2].Time, out.Anchor.Time)
	assert.False(t, out.AVWAP[1].Valid)
	assert.True(t, out.AVWAP[2].Valid)
}

func TestEngineUpdateAdvancesEMAOnce(t *testing.T) {
	e := &Engine{EMAPeriods: []int{2}, Windows: DefaultWindows, ProfileDepth: 40}
	st := NewState()
	history := []models.Candle{flat(t0, 52, 1)}
	e.Update(history, st)
	history = append(history, flat(t0.Add(5*time.Second), 58, 1))
	out := e.Update(history, st)
	assert.InDelta(t, 56.0, out.EMA[2], 1e-9)

	again := e.Recompute(history, st)
	assert.InDelta(t, 56.0, again.EMA[2], 1e-9)
	assert.Len(t, again.Profiles, 2)
}
