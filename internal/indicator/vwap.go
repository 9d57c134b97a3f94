package indicator

import (
	"math"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
)

// Window is a named trailing VWAP window.
type Window struct {
	Label    string
	Duration time.Duration
}

// DefaultWindows are the VWAP windows tracked by the desk.
var DefaultWindows = []Window{
	{Label: "5m", Duration: 5 * time.Minute},
	{Label: "30m", Duration: 30 * time.Minute},
	{Label: "1h", Duration: time.Hour},
	{Label: "24h", Duration: 24 * time.Hour},
}

// VWAP is the volume-weighted typical price of the candles that started
// within window of the newest candle. It is 0 when that volume is 0.
func VWAP(history []models.Candle, window time.Duration) float64 {
	if len(history) == 0 {
		return 0
	}
	from := history[len(history)-1].Time.Add(-window)

	var pv, vol float64
	for i := len(history) - 1; i >= 0; i-- {
		c := history[i]
		if c.Time.Before(from) {
			break
		}
		pv += c.TypicalPrice() * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}

// AnchoredVWAP computes the anchored VWAP with ±1σ volume-weighted bands
// for every candle. Candles before the anchor are returned with Valid false.
func AnchoredVWAP(history []models.Candle, anchor time.Time) []models.AVWAPPoint {
	out := make([]models.AVWAPPoint, len(history))

	var (
		started             bool
		cumPV, cumV, cumVar float64
	)
	for i, c := range history {
		out[i].Time = c.Time
		if !started {
			if c.Time.Before(anchor) {
				continue
			}
			started = true
		}

		tp := c.TypicalPrice()
		cumPV += tp * c.Volume
		cumV += c.Volume

		p := models.AVWAPPoint{Time: c.Time, Valid: true}
		if cumV > 0 {
			p.Value = cumPV / cumV
			cumVar += (tp - p.Value) * (tp - p.Value) * c.Volume
			sigma := math.Sqrt(cumVar / cumV)
			p.Upper = p.Value + sigma
			p.Lower = p.Value - sigma
		}
		out[i] = p
	}
	return out
}
