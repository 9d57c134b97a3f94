package indicator

import "github.com/navid-fn/flowscope/internal/models"

// DefaultProfileDepth is how many recent candles get a volume profile.
const DefaultProfileDepth = 40

// State is the indicator state carried between history changes.
type State struct {
	// EMA holds the last value per period; 0 means not yet seeded.
	EMA map[int]float64

	// Anchor is the current AVWAP anchor.
	Anchor models.Anchor
}

// NewState returns an empty carried state.
func NewState() *State {
	return &State{EMA: make(map[int]float64)}
}

// Reset clears the carried EMAs and the anchor.
func (s *State) Reset() {
	s.EMA = make(map[int]float64)
	s.Anchor = models.Anchor{}
}

// Engine computes the indicator set over a candle history.
type Engine struct {
	EMAPeriods   []int
	Windows      []Window
	ProfileDepth int
}

// NewEngine returns an engine with the desk defaults.
func NewEngine() *Engine {
	return &Engine{
		EMAPeriods:   DefaultEMAPeriods,
		Windows:      DefaultWindows,
		ProfileDepth: DefaultProfileDepth,
	}
}

// Update recomputes all indicators after a candle was appended to history.
// It advances the carried EMAs, so it must run exactly once per new candle.
// A stale or missing anchor is reset to the current session start.
func (e *Engine) Update(history []models.Candle, st *State) models.Indicators {
	out := models.Indicators{
		EMA:  make(map[int]float64, len(e.EMAPeriods)),
		VWAP: make(map[string]float64, len(e.Windows)),
	}
	if len(history) == 0 {
		return out
	}

	for _, p := range e.EMAPeriods {
		st.EMA[p] = EMA(history, p, st.EMA[p])
		out.EMA[p] = st.EMA[p]
	}

	return e.derive(history, st, out)
}

// Recompute rebuilds the non-carried indicators, e.g. after the anchor moved,
// reusing the current EMA values.
func (e *Engine) Recompute(history []models.Candle, st *State) models.Indicators {
	out := models.Indicators{
		EMA:  make(map[int]float64, len(e.EMAPeriods)),
		VWAP: make(map[string]float64, len(e.Windows)),
	}
	if len(history) == 0 {
		return out
	}
	for _, p := range e.EMAPeriods {
		out.EMA[p] = st.EMA[p]
	}
	return e.derive(history, st, out)
}

func (e *Engine) derive(history []models.Candle, st *State, out models.Indicators) models.Indicators {
	for _, w := range e.Windows {
		out.VWAP[w.Label] = VWAP(history, w.Duration)
	}

	if AnchorStale(history, st.Anchor) {
		if a, err := ResolveAnchor(history, models.AnchorSession); err == nil {
			st.Anchor = a
		}
	}
	out.Anchor = st.Anchor
	out.AVWAP = AnchoredVWAP(history, st.Anchor.Time)

	out.Profiles = Profiles(history, e.ProfileDepth)
	out.Support, out.Resistance = Levels(history)
	out.RangeLow, out.RangeHigh = PriceRange(history)
	return out
}
