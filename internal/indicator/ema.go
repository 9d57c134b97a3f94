// Package indicator derives EMA, VWAP, anchored VWAP, volume profile and
// session data from a candle history. All functions are pure; carried
// state lives in State and is owned by the caller.
package indicator

import "github.com/navid-fn/flowscope/internal/models"

// DefaultEMAPeriods are the EMA periods tracked by the desk.
var DefaultEMAPeriods = []int{9, 21, 50}

// EMA returns the next exponential moving average of closes for period.
//
// While the history holds fewer than period candles, or prev is the zero
// sentinel, the result is the simple mean of the last period closes.
// Otherwise the newest close is smoothed in with k = 2/(period+1).
func EMA(history []models.Candle, period int, prev float64) float64 {
	if period <= 0 || len(history) == 0 {
		return 0
	}

	if prev == 0 || len(history) < period {
		return meanClose(history, period)
	}

	k := 2 / float64(period+1)
	return history[len(history)-1].Close*k + prev*(1-k)
}

func meanClose(history []models.Candle, n int) float64 {
	if n > len(history) {
		n = len(history)
	}
	var sum float64
	for _, c := range history[len(history)-n:] {
		sum += c.Close
	}
	return sum / float64(n)
}
