package storage

import (
	"context"

	"github.com/navid-fn/flowscope/internal/recorder"
)

// Sink stores the candle and order-book parts of recorder batches.
type Sink struct {
	storage Storage
}

func NewSink(s Storage) *Sink { return &Sink{storage: s} }

func (s *Sink) Name() string { return "clickhouse" }

func (s *Sink) Write(ctx context.Context, b recorder.Batch) error {
	if err := s.storage.CreateCandles(ctx, b.Candles); err != nil {
		return err
	}
	return s.storage.CreateOrderBooks(ctx, b.Books)
}
