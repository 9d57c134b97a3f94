package indicator

import (
	"fmt"
	"math"

	"github.com/navid-fn/flowscope/internal/models"
)

// flatRange is the price range below which PriceRange pads the history.
const flatRange = 0.00001

// Levels returns the lowest low and the highest high of the history.
func Levels(history []models.Candle) (support, resistance float64) {
	if len(history) == 0 {
		return 0, 0
	}
	support, resistance = history[0].Low, history[0].High
	for _, c := range history[1:] {
		support = math.Min(support, c.Low)
		resistance = math.Max(resistance, c.High)
	}
	return support, resistance
}

// PriceRange is like Levels, but a flat history is widened to ±1% around the last close.
func PriceRange(history []models.Candle) (low, high float64) {
	low, high = Levels(history)
	if len(history) > 0 && high-low <= flatRange {
		last := history[len(history)-1].Close
		return last * 0.99, last * 1.01
	}
	return low, high
}

// ResolveAnchor picks the anchor candle for kind:
//   - session: the first candle in the same session as the newest candle
//   - high24h: the candle with the highest high
//   - low24h:  the candle with the lowest low
func ResolveAnchor(history []models.Candle, kind models.AnchorKind) (models.Anchor, error) {
	if len(history) == 0 {
		return models.Anchor{}, fmt.Errorf("resolve %s anchor: empty history", kind)
	}

	switch kind {
	case models.AnchorSession:
		session := SessionAt(history[len(history)-1].Time)
		for _, c := range history {
			if SessionAt(c.Time) == session {
				return models.Anchor{Time: c.Time, Label: string(session) + " open", Kind: kind}, nil
			}
		}
	case models.AnchorHigh:
		best := history[0]
		for _, c := range history[1:] {
			if c.High > best.High {
				best = c
			}
		}
		return models.Anchor{Time: best.Time, Label: "24h high", Kind: kind}, nil
	case models.AnchorLow:
		best := history[0]
		for _, c := range history[1:] {
			if c.Low < best.Low {
				best = c
			}
		}
		return models.Anchor{Time: best.Time, Label: "24h low", Kind: kind}, nil
	}
	return models.Anchor{}, fmt.Errorf("resolve anchor: unknown kind %q", kind)
}

// AnchorStale reports whether anchor has left the history window: it is
// unset, older than the oldest candle, or newer than the newest.
func AnchorStale(history []models.Candle, anchor models.Anchor) bool {
	if anchor.IsZero() || len(history) == 0 {
		return true
	}
	return anchor.Time.Before(history[0].Time) || anchor.Time.After(history[len(history)-1].Time)
}
