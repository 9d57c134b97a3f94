package models

import "time"

// Session is a coarse trading session derived from the UTC hour.
type Session string

const (
	SessionAsia    Session = "Asia"
	SessionLondon  Session = "London"
	SessionNewYork Session = "New York"
	SessionOverlap Session = "Overlap"
	SessionClosed  Session = "Closed"
)

// AnchorKind selects how an AVWAP anchor was chosen.
type AnchorKind string

const (
	AnchorSession AnchorKind = "session"
	AnchorHigh    AnchorKind = "high24h"
	AnchorLow     AnchorKind = "low24h"
	AnchorCustom  AnchorKind = "custom"
)

// Anchor is the starting point of an anchored VWAP.
type Anchor struct {
	Time  time.Time  `json:"time"`
	Label string     `json:"label"`
	Kind  AnchorKind `json:"kind"`
}

// IsZero reports whether no anchor has been set.
func (a Anchor) IsZero() bool { return a.Time.IsZero() }

// AVWAPPoint is the anchored VWAP at one candle.
// Valid is false for candles before the anchor.
type AVWAPPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Upper float64   `json:"upper"`
	Lower float64   `json:"lower"`
	Valid bool      `json:"valid"`
}

// VolumeProfile is the point of control and value area of one candle.
type VolumeProfile struct {
	Time          time.Time `json:"time"`
	POC           float64   `json:"poc"`
	ValueAreaHigh float64   `json:"valueAreaHigh"`
	ValueAreaLow  float64   `json:"valueAreaLow"`

	// MaxVolume is the POC bucket volume, or 1 when the candle has no footprint.
	MaxVolume   float64 `json:"maxVolumeInBar"`
	TotalVolume float64 `json:"totalVolume"`
}

// Indicators is everything derived from the candle history.
type Indicators struct {
	// EMA is keyed by period.
	EMA map[int]float64 `json:"ema"`

	// VWAP is keyed by window label ("5m", "30m", "1h", "24h").
	VWAP map[string]float64 `json:"vwap"`

	Anchor   Anchor          `json:"anchor"`
	AVWAP    []AVWAPPoint    `json:"avwap"`
	Profiles []VolumeProfile `json:"profiles"`

	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`

	// RangeLow and RangeHigh bound the history, padded to ±1% when flat.
	RangeLow  float64 `json:"rangeLow"`
	RangeHigh float64 `json:"rangeHigh"`
}

// Clone returns a deep copy of the indicators.
func (in Indicators) Clone() Indicators {
	out := in
	out.EMA = make(map[int]float64, len(in.EMA))
	for k, v := range in.EMA {
		out.EMA[k] = v
	}
	out.VWAP = make(map[string]float64, len(in.VWAP))
	for k, v := range in.VWAP {
		out.VWAP[k] = v
	}
	out.AVWAP = append([]AVWAPPoint(nil), in.AVWAP...)
	out.Profiles = append([]VolumeProfile(nil), in.Profiles...)
	return out
}
