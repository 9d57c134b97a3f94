package indicator

import (
	"time"

	"github.com/navid-fn/flowscope/internal/models"
)

// UTC hour ranges, start inclusive and end exclusive.
const (
	asiaOpen, asiaClose     = 0, 8
	londonOpen, londonClose = 7, 16
	nyOpen, nyClose         = 12, 21
)

// SessionAt classifies t by its UTC hour. Overlap wins whenever two
// sessions are open at once.
func SessionAt(t time.Time) models.Session {
	h := t.UTC().Hour()
	asia := h >= asiaOpen && h < asiaClose
	london := h >= londonOpen && h < londonClose
	ny := h >= nyOpen && h < nyClose

	switch {
	case london && ny, asia && london:
		return models.SessionOverlap
	case ny:
		return models.SessionNewYork
	case london:
		return models.SessionLondon
	case asia:
		return models.SessionAsia
	default:
		return models.SessionClosed
	}
}
