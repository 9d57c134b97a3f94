package engine

import (
	"time"

	"github.com/navid-fn/flowscope/internal/models"
)

// event is anything the dispatch loop handles. Producer events carry the
// epoch they were produced under; the loop drops those from an older
// epoch.
type event interface {
	isEvent()
}

type TickEvent struct {
	Epoch uint64
	Raw   models.RawTick
	At    time.Time
}

type CloseEvent struct {
	Epoch uint64
	At    time.Time
}

type OrderFlowEvent struct {
	Epoch uint64
	At    time.Time
}

type FeedStatusEvent struct {
	Epoch  uint64
	Status models.FeedStatus
}

// AnalysisEvent is the result of one analysis request. Seq identifies the
// request; a newer request supersedes older ones.
type AnalysisEvent struct {
	Epoch  uint64
	Seq    uint64
	Source string
	Plan   models.TradePlan
	Err    error
	At     time.Time
}

type switchCommand struct {
	bot   models.BotConfig
	reply chan error
}

type anchorReply struct {
	anchor models.Anchor
	err    error
}

type anchorCommand struct {
	kind  models.AnchorKind
	at    time.Time
	reply chan anchorReply
}

type analysisCommand struct {
	reply chan error
}

func (TickEvent) isEvent()       {}
func (CloseEvent) isEvent()      {}
func (OrderFlowEvent) isEvent()  {}
func (FeedStatusEvent) isEvent() {}
func (AnalysisEvent) isEvent()   {}
func (switchCommand) isEvent()   {}
func (anchorCommand) isEvent()   {}
func (analysisCommand) isEvent() {}
