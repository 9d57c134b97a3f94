// Package engine runs the desk: one goroutine owns the market data store
// and applies feed events and user commands to it in order, publishing an
// immutable snapshot after each one. Trades are the exception: they are
// published at most once per PublishInterval.
package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/navid-fn/flowscope/internal/analysis"
	"github.com/navid-fn/flowscope/internal/feed"
	"github.com/navid-fn/flowscope/internal/models"
	"github.com/navid-fn/flowscope/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrStopped is returned by commands sent after Run returned.
var ErrStopped = errors.New("engine stopped")

const eventBuffer = 1024

type Config struct {
	Bot               models.BotConfig
	CandleInterval    time.Duration
	OrderFlowInterval time.Duration
	HistorySize       int
	PriceStep         float64

	AnalysisTimeout  time.Duration
	Cooldown         time.Duration
	FallbackCooldown time.Duration
	FallbackRetry    time.Duration
	AutoAnalyze      bool

	// PublishInterval throttles snapshots after trades. Candle closes,
	// order flow and commands always publish.
	PublishInterval time.Duration

	// PlanHistory is how many plans LatestPlans keeps in memory.
	PlanHistory int
}

// OrderFlowGenerator produces the order book, liquidation levels and open
// interest around the current price.
type OrderFlowGenerator interface {
	Next(price, lastVolume float64, now time.Time) models.OrderFlow
}

// Recorder takes closed candles, books and plans without blocking.
type Recorder interface {
	RecordCandle(models.CandleRecord) bool
	RecordOrderBook(models.OrderBookSnapshot) bool
	RecordPlan(models.PlanRecord) bool
}

type Deps struct {
	// Sources returns the trade feed for a symbol. Required.
	Sources func(symbol string) feed.Source

	// OrderFlow defaults to the order-flow simulator.
	OrderFlow func(symbol string) OrderFlowGenerator

	// Analyst is the primary analyst; nil uses Fallback for everything.
	Analyst analysis.Analyst

	// Fallback stands in while the primary is rate limited. Defaults to
	// analysis.MockAnalyst.
	Fallback analysis.Analyst

	Recorder Recorder
	Clock    func() time.Time
	Logger   *logrus.Logger
}

// Engine is the single writer of the market state.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *logrus.Logger

	events   chan event
	done     chan struct{}
	snapshot atomic.Pointer[models.MarketSnapshot]

	plansMu sync.RWMutex
	plans   []models.PlanRecord

	// Owned by the Run goroutine.
	runCtx      context.Context
	store       *store.Store
	bot         models.BotConfig
	epoch       uint64
	epochCancel context.CancelFunc
	producers   sync.WaitGroup
	workers     sync.WaitGroup
	flow        OrderFlowGenerator
	feedStatus  models.FeedStatus

	analysisState models.AnalysisState
	analysisSeq   uint64
	limiter       *rate.Limiter
	autoDone      bool
	signal        *models.TradeSignal

	lastPublish time.Time
	dirty       bool
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Sources == nil {
		return nil, errors.New("engine: a feed source factory is required")
	}
	if err := cfg.Bot.Validate(); err != nil {
		return nil, err
	}
	if cfg.CandleInterval <= 0 {
		cfg.CandleInterval = 5 * time.Second
	}
	if cfg.OrderFlowInterval <= 0 {
		cfg.OrderFlowInterval = 5 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 60 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 90 * time.Second
	}
	if cfg.FallbackCooldown <= 0 {
		cfg.FallbackCooldown = 15 * time.Second
	}
	if cfg.FallbackRetry <= 0 {
		cfg.FallbackRetry = 90 * time.Second
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 250 * time.Millisecond
	}
	if cfg.PlanHistory <= 0 {
		cfg.PlanHistory = 20
	}

	if deps.OrderFlow == nil {
		deps.OrderFlow = func(symbol string) OrderFlowGenerator {
			return feed.NewOrderFlowSimulator(symbol, time.Now().UnixNano())
		}
	}
	if deps.Fallback == nil {
		deps.Fallback = analysis.MockAnalyst{}
	}
	if deps.Analyst == nil {
		deps.Analyst = deps.Fallback
	}
	if deps.Recorder == nil {
		deps.Recorder = discard{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	cfg.Bot.Symbol = strings.ToUpper(cfg.Bot.Symbol)
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
		store: store.New(store.Config{
			HistorySize: cfg.HistorySize,
			PriceStep:   cfg.PriceStep,
		}),
		bot: cfg.Bot,
	}, nil
}

// Run starts the producers for the configured instrument and handles
// events until ctx is done. It returns after every goroutine it started
// has exited.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	e.begin(e.bot)
	e.publish()
	e.logger.WithFields(logrus.Fields{
		"symbol":   e.bot.Symbol,
		"interval": e.cfg.CandleInterval,
	}).Info("Desk started")

	defer e.shutdown()
	flush := time.NewTicker(e.cfg.PublishInterval)
	defer flush.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.events:
			e.handle(ev)
		case <-flush.C:
			e.flush()
		}
	}
}

func (e *Engine) shutdown() {
	e.stopProducers()
	e.workers.Wait()
	e.feedStatus = models.FeedStopped
	e.publish()
	close(e.done)
	e.logger.Info("Desk stopped")
}

// Snapshot returns the last published market state, nil before Run.
// The value must not be modified.
func (e *Engine) Snapshot() *models.MarketSnapshot {
	return e.snapshot.Load()
}

// SwitchInstrument tears down the current feeds, clears all market state
// and starts tracking bot.Symbol with the new risk settings. Events still
// in flight from the old instrument are discarded.
func (e *Engine) SwitchInstrument(ctx context.Context, bot models.BotConfig) error {
	if err := bot.Validate(); err != nil {
		return err
	}
	bot.Symbol = strings.ToUpper(strings.TrimSpace(bot.Symbol))
	reply := make(chan error, 1)
	if err := e.send(ctx, switchCommand{bot: bot, reply: reply}); err != nil {
		return err
	}
	res, err := wait(ctx, e.done, reply)
	if err != nil {
		return err
	}
	return res
}

// SetAnchor moves the AVWAP anchor. at is only used for
// models.AnchorCustom.
func (e *Engine) SetAnchor(ctx context.Context, kind models.AnchorKind, at time.Time) (models.Anchor, error) {
	reply := make(chan anchorReply, 1)
	if err := e.send(ctx, anchorCommand{kind: kind, at: at, reply: reply}); err != nil {
		return models.Anchor{}, err
	}
	r, err := wait(ctx, e.done, reply)
	if err != nil {
		return models.Anchor{}, err
	}
	return r.anchor, r.err
}

// RequestAnalysis starts an analysis of the current market. The plan
// arrives later in the snapshot's Analysis state. It fails with
// analysis.ErrNotEnoughData or analysis.ErrCooldown.
func (e *Engine) RequestAnalysis(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := e.send(ctx, analysisCommand{reply: reply}); err != nil {
		return err
	}
	res, err := wait(ctx, e.done, reply)
	if err != nil {
		return err
	}
	return res
}

// ReviewAdjustment asks the analyst for feedback on a user edit of the
// plan's stop and target, falling back to the local analyst while the
// primary is rate limited.
func (e *Engine) ReviewAdjustment(ctx context.Context, adj analysis.Adjustment) (string, error) {
	snap := e.Snapshot()
	if snap == nil || snap.Price <= 0 {
		return "", analysis.ErrNotEnoughData
	}

	analyst := e.deps.Analyst
	if snap.Analysis.Fallback {
		analyst = e.deps.Fallback
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AnalysisTimeout)
	defer cancel()

	feedback, err := analyst.ReviewAdjustment(ctx, snap, adj)
	if errors.Is(err, analysis.ErrRateLimited) && analyst != e.deps.Fallback {
		return e.deps.Fallback.ReviewAdjustment(ctx, snap, adj)
	}
	return feedback, err
}

// Optimize reworks a plan's stop, target and size to honor the trader's
// comment, with the same fallback as ReviewAdjustment.
func (e *Engine) Optimize(ctx context.Context, opt analysis.Optimization) (analysis.OptimizedPlan, error) {
	snap := e.Snapshot()
	if snap == nil || snap.Price <= 0 {
		return analysis.OptimizedPlan{}, analysis.ErrNotEnoughData
	}
	if opt.Plan.Direction != models.DirectionLong && opt.Plan.Direction != models.DirectionShort {
		return analysis.OptimizedPlan{}, analysis.ErrNothingToOptimize
	}

	analyst := e.deps.Analyst
	if snap.Analysis.Fallback {
		analyst = e.deps.Fallback
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AnalysisTimeout)
	defer cancel()

	req := analysis.Request{Snapshot: snap, Config: snap.Config}
	out, err := analyst.Optimize(ctx, req, opt)
	if errors.Is(err, analysis.ErrRateLimited) && analyst != e.deps.Fallback {
		out, err = e.deps.Fallback.Optimize(ctx, req, opt)
	}
	if err != nil {
		return analysis.OptimizedPlan{}, err
	}
	out.NewPositionSize = math.Round(out.NewPositionSize*1e4) / 1e4
	return out, nil
}

// LatestPlans returns up to limit plans made this run for symbol, newest
// first.
func (e *Engine) LatestPlans(_ context.Context, symbol string, limit int) ([]models.PlanRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	e.plansMu.RLock()
	defer e.plansMu.RUnlock()

	out := make([]models.PlanRecord, 0, min(limit, len(e.plans)))
	for i := len(e.plans) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.EqualFold(e.plans[i].Symbol, symbol) {
			out = append(out, e.plans[i])
		}
	}
	return out, nil
}

func (e *Engine) send(ctx context.Context, ev event) error {
	select {
	case e.events <- ev:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// emit hands an event to the loop, giving up when ctx is cancelled so a
// producer never outlives its epoch.
func (e *Engine) emit(ctx context.Context, ev event) bool {
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) now() time.Time { return e.deps.Clock() }

func (e *Engine) handle(ev event) {
	switch ev := ev.(type) {
	case TickEvent:
		if e.stale(ev.Epoch) {
			return
		}
		t, err := models.ParseTick(ev.Raw)
		if err != nil {
			e.logger.WithError(err).Debug("Dropping malformed trade")
			return
		}
		e.store.ApplyTick(t, ev.At)
		e.dirty = true
		if e.now().Sub(e.lastPublish) < e.cfg.PublishInterval {
			return
		}

	case CloseEvent:
		if e.stale(ev.Epoch) {
			return
		}
		e.closeCandle(ev.At)

	case OrderFlowEvent:
		if e.stale(ev.Epoch) {
			return
		}
		e.refreshOrderFlow(ev.At)

	case FeedStatusEvent:
		if e.stale(ev.Epoch) {
			return
		}
		e.feedStatus = ev.Status

	case AnalysisEvent:
		e.finishAnalysis(ev)

	case switchCommand:
		e.stopProducers()
		e.begin(ev.bot)
		e.logger.WithFields(logrus.Fields{
			"symbol": ev.bot.Symbol,
			"epoch":  e.epoch,
		}).Info("Switched instrument")
		e.publish()
		ev.reply <- nil
		return

	case anchorCommand:
		a, err := e.store.SetAnchor(ev.kind, ev.at)
		e.publish()
		ev.reply <- anchorReply{anchor: a, err: err}
		return

	case analysisCommand:
		err := e.startAnalysis(e.now(), false)
		e.publish()
		ev.reply <- err
		return
	}
	e.publish()
}

func (e *Engine) stale(epoch uint64) bool {
	return epoch != e.epoch
}

// begin starts a new epoch for bot: fresh store, order-flow generator,
// analysis state and producers. The old producers must already be stopped.
func (e *Engine) begin(bot models.BotConfig) {
	e.epoch++
	e.bot = bot
	e.store.Reset(bot.Symbol, e.epoch)
	e.flow = e.deps.OrderFlow(bot.Symbol)
	e.feedStatus = models.FeedConnecting
	e.autoDone = false
	e.signal = nil

	// Supersede any analysis still running for the old instrument. The
	// cooldown and fallback mode start over too.
	e.analysisSeq++
	e.analysisState = models.AnalysisState{Status: analysisIdle}
	e.limiter = rate.NewLimiter(rate.Every(e.cfg.Cooldown), 1)

	src := e.deps.Sources(bot.Symbol)
	if bf, ok := src.(feed.Backfiller); ok {
		e.store.Seed(bf.Backfill(e.cfg.HistorySize, e.cfg.CandleInterval, e.now()))
	}
	e.startProducers(src)
}

func (e *Engine) startProducers(src feed.Source) {
	ctx, cancel := context.WithCancel(e.runCtx)
	e.epochCancel = cancel
	epoch, symbol := e.epoch, e.bot.Symbol
	log := e.logger.WithFields(logrus.Fields{"symbol": symbol, "source": src.Name()})

	e.producers.Add(3)
	go func() {
		defer e.producers.Done()
		h := feed.Handler{
			OnTick: func(raw models.RawTick) {
				e.emit(ctx, TickEvent{Epoch: epoch, Raw: raw, At: e.now()})
			},
			OnStatus: func(s models.FeedStatus) {
				e.emit(ctx, FeedStatusEvent{Epoch: epoch, Status: s})
			},
		}
		if err := src.Run(ctx, h); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Feed stopped")
		}
	}()
	go func() {
		defer e.producers.Done()
		e.every(ctx, e.cfg.CandleInterval, func(at time.Time) event {
			return CloseEvent{Epoch: epoch, At: at}
		})
	}()
	go func() {
		defer e.producers.Done()
		e.every(ctx, e.cfg.OrderFlowInterval, func(at time.Time) event {
			return OrderFlowEvent{Epoch: epoch, At: at}
		})
	}()
}

func (e *Engine) every(ctx context.Context, d time.Duration, ev func(time.Time) event) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.emit(ctx, ev(e.now())) {
				return
			}
		}
	}
}

func (e *Engine) stopProducers() {
	if e.epochCancel != nil {
		e.epochCancel()
		e.epochCancel = nil
	}
	e.producers.Wait()
}

func (e *Engine) closeCandle(at time.Time) {
	c, ok := e.store.CloseCandle(at)
	if ok {
		e.deps.Recorder.RecordCandle(models.CandleRecord{
			Symbol:   e.bot.Symbol,
			Interval: e.cfg.CandleInterval,
			Candle:   c,
		})
	}

	e.expireFallback(at)
	if e.cfg.AutoAnalyze && !e.autoDone && e.store.Len() >= analysis.MinCandles {
		e.autoDone = true
		if err := e.startAnalysis(at, true); err != nil {
			e.logger.WithError(err).Debug("Automatic analysis skipped")
		}
	}
}

func (e *Engine) refreshOrderFlow(at time.Time) {
	price := e.store.Price()
	if price <= 0 {
		return
	}
	var lastVolume float64
	if c, ok := e.store.LastCandle(); ok {
		lastVolume = c.Volume
	}

	of := e.flow.Next(price, lastVolume, at)
	e.store.SetOrderFlow(of)
	e.deps.Recorder.RecordOrderBook(models.OrderBookSnapshot{
		SnapshotID: uuid.NewString(),
		Symbol:     e.bot.Symbol,
		Book:       of.Book,
	})
}

// publish stores a fresh snapshot for readers.
func (e *Engine) publish() {
	now := e.now()
	snap := e.store.Snapshot(now)
	snap.Feed = e.feedStatus
	snap.Analysis = e.analysisState
	snap.Config = e.bot
	snap.Signal = e.signal
	e.snapshot.Store(&snap)
	e.lastPublish = now
	e.dirty = false
}

// flush publishes trades the throttle held back.
func (e *Engine) flush() {
	if e.dirty {
		e.publish()
	}
}

type discard struct{}

func (discard) RecordCandle(models.CandleRecord) bool         { return true }
func (discard) RecordOrderBook(models.OrderBookSnapshot) bool { return true }
func (discard) RecordPlan(models.PlanRecord) bool             { return true }
