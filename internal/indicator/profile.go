package indicator

import (
	"sort"

	"github.com/navid-fn/flowscope/internal/models"
)

// ValueAreaShare is the fraction of a candle's volume the value area must hold.
const ValueAreaShare = 0.7

// Profile computes the point of control and value area of one candle.
//
// The POC is the first bucket, in footprint order (first traded), with the
// strictly greatest volume. The value area grows from the POC one bucket
// at a time toward whichever neighbour has more volume, preferring the
// lower side on ties, until it holds ValueAreaShare of the volume or both
// sides run out.
func Profile(c models.Candle) models.VolumeProfile {
	vp := models.VolumeProfile{Time: c.Time}
	if len(c.Footprint) == 0 {
		vp.POC = c.Close
		vp.ValueAreaLow = c.Low
		vp.ValueAreaHigh = c.High
		vp.MaxVolume = 1
		return vp
	}

	poc := c.Footprint[0]
	for _, lvl := range c.Footprint {
		vp.TotalVolume += lvl.Total()
		if lvl.Total() > poc.Total() {
			poc = lvl
		}
	}
	vp.POC = poc.Price
	vp.MaxVolume = poc.Total()
	if vp.MaxVolume == 0 {
		vp.MaxVolume = 1
	}

	levels := make([]models.FootprintLevel, len(c.Footprint))
	copy(levels, c.Footprint)
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })

	pocIdx := 0
	for i, lvl := range levels {
		if lvl.Price == poc.Price {
			pocIdx = i
			break
		}
	}

	target := vp.TotalVolume * ValueAreaShare
	acc := poc.Total()
	hi, lo := pocIdx, pocIdx // hi is the highest price (lowest index)
	for acc < target {
		above, below := -1.0, -1.0
		if hi > 0 {
			above = levels[hi-1].Total()
		}
		if lo < len(levels)-1 {
			below = levels[lo+1].Total()
		}
		if above < 0 && below < 0 {
			break
		}
		if above > below {
			hi--
			acc += above
		} else {
			lo++
			acc += below
		}
	}

	vp.ValueAreaHigh = levels[hi].Price
	vp.ValueAreaLow = levels[lo].Price
	return vp
}

// Profiles computes the volume profile of each of the last n candles.
func Profiles(history []models.Candle, n int) []models.VolumeProfile {
	if n <= 0 || n > len(history) {
		n = len(history)
	}
	out := make([]models.VolumeProfile, 0, n)
	for _, c := range history[len(history)-n:] {
		out = append(out, Profile(c))
	}
	return out
}
