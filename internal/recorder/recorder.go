// Package recorder batches closed candles, order-book snapshots and trade
// plans and writes them to the configured sinks.
package recorder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/navid-fn/flowscope/internal/retry"
	"github.com/sirupsen/logrus"
)

const shutdownFlushTimeout = 10 * time.Second

// Batch is one flush worth of records. Sinks write the parts they store
// and ignore the rest.
type Batch struct {
	Candles []models.CandleRecord
	Books   []models.OrderBookSnapshot
	Plans   []models.PlanRecord
}

func (b Batch) Len() int { return len(b.Candles) + len(b.Books) + len(b.Plans) }

// Sink persists or forwards a batch.
type Sink interface {
	Name() string
	Write(ctx context.Context, b Batch) error
}

type Config struct {
	BatchSize    int
	BatchTimeout time.Duration
	Buffer       int
	Retry        retry.Config
	Breaker      retry.BreakerConfig
}

type guardedSink struct {
	sink    Sink
	retryer *retry.Retryer
	breaker *retry.Breaker
}

// Recorder receives records without blocking the caller and flushes them
// in batches from Run.
type Recorder struct {
	cfg     Config
	sinks   []guardedSink
	in      chan any
	logger  *logrus.Logger
	dropped atomic.Int64
}

func New(cfg Config, logger *logrus.Logger, sinks ...Sink) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	r := &Recorder{
		cfg:    cfg,
		in:     make(chan any, cfg.Buffer),
		logger: logger,
	}
	for _, s := range sinks {
		rc := cfg.Retry
		rc.Name = s.Name()
		bc := cfg.Breaker
		bc.Name = s.Name()
		r.sinks = append(r.sinks, guardedSink{
			sink:    s,
			retryer: retry.NewRetryer(rc, logger),
			breaker: retry.NewBreaker(bc, logger),
		})
	}
	return r
}

// RecordCandle queues a closed candle. It reports false when the buffer is
// full and the record was dropped.
func (r *Recorder) RecordCandle(c models.CandleRecord) bool { return r.offer(c) }

func (r *Recorder) RecordOrderBook(s models.OrderBookSnapshot) bool { return r.offer(s) }

func (r *Recorder) RecordPlan(p models.PlanRecord) bool { return r.offer(p) }

// Dropped is the number of records lost to a full buffer.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) offer(v any) bool {
	select {
	case r.in <- v:
		return true
	default:
		r.dropped.Add(1)
		r.logger.WithField("dropped", r.dropped.Load()).Warn("Recorder buffer full, dropping record")
		return false
	}
}

// Run flushes on BatchSize or BatchTimeout until ctx is done, then drains
// the buffer and flushes once more.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.WithFields(logrus.Fields{
		"batch_size": r.cfg.BatchSize,
		"sinks":      len(r.sinks),
	}).Info("Starting recorder")

	var batch Batch
	ticker := time.NewTicker(r.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if batch.Len() == 0 {
			return
		}
		r.write(ctx, batch)
		batch = Batch{}
		ticker.Reset(r.cfg.BatchTimeout)
	}

	for {
		select {
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case v := <-r.in:
					add(&batch, v)
				default:
					drained = true
				}
			}
			final, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			flush(final)
			cancel()
			r.logger.Info("Recorder stopped")
			return nil

		case <-ticker.C:
			flush(ctx)

		case v := <-r.in:
			add(&batch, v)
			if batch.Len() >= r.cfg.BatchSize {
				flush(ctx)
			}
		}
	}
}

func add(b *Batch, v any) {
	switch rec := v.(type) {
	case models.CandleRecord:
		b.Candles = append(b.Candles, rec)
	case models.OrderBookSnapshot:
		b.Books = append(b.Books, rec)
	case models.PlanRecord:
		b.Plans = append(b.Plans, rec)
	}
}

// write hands the batch to every sink. A sink that keeps failing loses the
// batch; the others still get it.
func (r *Recorder) write(ctx context.Context, b Batch) {
	for _, s := range r.sinks {
		err := s.retryer.DoWithBreaker(ctx, s.breaker, func(ctx context.Context) error {
			return s.sink.Write(ctx, b)
		})
		log := r.logger.WithFields(logrus.Fields{
			"sink":    s.sink.Name(),
			"candles": len(b.Candles),
			"books":   len(b.Books),
			"plans":   len(b.Plans),
		})
		if err != nil {
			log.WithError(err).Error("Sink write failed, batch dropped")
			continue
		}
		log.Debug("Batch written")
	}
}
