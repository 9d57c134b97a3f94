package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/navid-fn/flowscope/internal/analysis"
	"github.com/navid-fn/flowscope/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	analysisIdle    = "idle"
	analysisPending = "pending"
	analysisReady   = "ready"
	analysisError   = "error"
)

func (e *Engine) inFallback(now time.Time) bool {
	return e.analysisState.Fallback && now.Before(e.analysisState.FallbackUntil)
}

// startAnalysis checks history length and the cooldown, then runs the
// analyst on a snapshot in its own goroutine. The result comes back as an
// AnalysisEvent. force skips the cooldown.
func (e *Engine) startAnalysis(now time.Time, force bool) error {
	if e.analysisState.Status == analysisPending {
		return fmt.Errorf("%w: a request is already running", analysis.ErrCooldown)
	}
	if e.store.Len() < analysis.MinCandles {
		return fmt.Errorf("%w: %d of %d candles", analysis.ErrNotEnoughData, e.store.Len(), analysis.MinCandles)
	}
	if !force && !e.limiter.AllowN(now, 1) {
		wait := e.limiter.ReserveN(now, 1)
		delay := wait.DelayFrom(now)
		wait.CancelAt(now)
		return fmt.Errorf("%w: retry in %s", analysis.ErrCooldown, delay.Round(time.Second))
	}

	analyst := e.deps.Analyst
	if e.inFallback(now) {
		analyst = e.deps.Fallback
	}

	e.analysisSeq++
	seq, epoch := e.analysisSeq, e.epoch
	snap := e.store.Snapshot(now)
	snap.Config = e.bot
	req := analysis.Request{Snapshot: &snap, Config: e.bot}

	// The last plan stays on display until a new one replaces it.
	e.analysisState.Status = analysisPending
	e.analysisState.Message = fmt.Sprintf("%s is analyzing market conditions", analyst.Name())

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		ctx, cancel := context.WithTimeout(e.runCtx, e.cfg.AnalysisTimeout)
		plan, err := analyst.Analyze(ctx, req)
		cancel()
		e.emit(e.runCtx, AnalysisEvent{
			Epoch:  epoch,
			Seq:    seq,
			Source: analyst.Name(),
			Plan:   plan,
			Err:    err,
			At:     e.now(),
		})
	}()
	return nil
}

func (e *Engine) finishAnalysis(ev AnalysisEvent) {
	log := e.logger.WithFields(logrus.Fields{
		"source": ev.Source,
		"seq":    ev.Seq,
	})
	if e.stale(ev.Epoch) || ev.Seq != e.analysisSeq {
		log.Debug("Discarding superseded analysis")
		return
	}

	switch {
	case errors.Is(ev.Err, analysis.ErrRateLimited):
		until := ev.At.Add(e.cfg.FallbackRetry)
		e.limiter.SetLimitAt(ev.At, rate.Every(e.cfg.FallbackCooldown))
		e.analysisState = models.AnalysisState{
			Status:        analysisError,
			Message:       "AI rate limit exceeded. Using local analysis until " + until.UTC().Format(time.TimeOnly) + ".",
			Plan:          e.analysisState.Plan,
			Fallback:      true,
			FallbackUntil: until,
		}
		log.WithField("until", until).Warn("Analyst rate limited, switching to fallback")

	case ev.Err != nil:
		e.analysisState.Status = analysisError
		e.analysisState.Message = ev.Err.Error()
		if errors.Is(ev.Err, context.DeadlineExceeded) {
			e.analysisState.Message = fmt.Sprintf("analysis timed out after %s", e.cfg.AnalysisTimeout)
		}
		log.WithError(ev.Err).Warn("Analysis failed")

	default:
		plan := ev.Plan
		if plan.Direction != models.DirectionNeutral {
			if size := analysis.PositionSize(e.bot, plan.EntryPrice, plan.StopLoss); size > 0 {
				plan.PositionSize = math.Round(size*1e4) / 1e4
			}
		}
		rec := models.PlanRecord{
			ID:        uuid.NewString(),
			Symbol:    e.bot.Symbol,
			Source:    ev.Source,
			Plan:      plan,
			CreatedAt: ev.At,
		}

		// A plan from the primary ends fallback mode early.
		if ev.Source != e.deps.Fallback.Name() && e.analysisState.Fallback {
			e.leaveFallback(ev.At)
		}
		e.analysisState.Status = analysisReady
		e.analysisState.Message = ""
		e.analysisState.Plan = &rec

		if sig, ok := models.SignalFor(plan, e.bot, ev.At); ok {
			e.signal = &sig
		}
		e.keepPlan(rec)
		e.deps.Recorder.RecordPlan(rec)
		log.WithField("direction", plan.Direction).Info("Trade plan ready")
	}
}

// expireFallback leaves fallback mode once its time is up and retries the
// primary analyst straight away.
func (e *Engine) expireFallback(now time.Time) {
	if !e.analysisState.Fallback || now.Before(e.analysisState.FallbackUntil) {
		return
	}
	e.leaveFallback(now)
	e.analysisState.Status = analysisIdle
	e.analysisState.Message = "Rate limit period ended. Reconnecting to the AI analyst."
	e.logger.Info("Fallback period over, retrying primary analyst")
	if err := e.startAnalysis(now, true); err != nil {
		e.logger.WithError(err).Debug("Retry after fallback skipped")
	}
}

func (e *Engine) leaveFallback(now time.Time) {
	e.analysisState.Fallback = false
	e.analysisState.FallbackUntil = time.Time{}
	e.limiter.SetLimitAt(now, rate.Every(e.cfg.Cooldown))
}

func (e *Engine) keepPlan(rec models.PlanRecord) {
	e.plansMu.Lock()
	defer e.plansMu.Unlock()
	e.plans = append(e.plans, rec)
	if over := len(e.plans) - e.cfg.PlanHistory; over > 0 {
		e.plans = append(e.plans[:0], e.plans[over:]...)
	}
}
