// Package storage writes closed candles and order-book snapshots to
// ClickHouse with native batch inserts.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/navid-fn/flowscope/internal/models"
)

// Storage persists market data. Implementations must be safe for
// concurrent use.
type Storage interface {
	// CreateCandles inserts a batch of closed candles.
	CreateCandles(ctx context.Context, candles []models.CandleRecord) error

	// CreateOrderBooks inserts every level of each snapshot as one row.
	CreateOrderBooks(ctx context.Context, books []models.OrderBookSnapshot) error

	Close() error
}

type clickhouseStorage struct {
	conn driver.Conn
	now  func() time.Time
}

// NewClickHouseStorage parses the DSN, opens a connection and pings it.
// It fails if the server does not answer within 5 seconds.
func NewClickHouseStorage(dsn string) (Storage, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &clickhouseStorage{conn: conn, now: time.Now}, nil
}

func (s *clickhouseStorage) CreateCandles(ctx context.Context, candles []models.CandleRecord) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candle (
			symbol, interval_ms, open_time,
			open, high, low, close,
			volume, buy_volume, sell_volume,
			footprint, inserted_at
		)
	`)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	for _, c := range candles {
		row, err := candleRow(c, now)
		if err != nil {
			_ = batch.Abort()
			return err
		}
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}

func (s *clickhouseStorage) CreateOrderBooks(ctx context.Context, books []models.OrderBookSnapshot) error {
	if len(books) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO order_book (
			snapshot_id, symbol, side, level,
			price, size, updated_at
		)
	`)
	if err != nil {
		return err
	}

	for _, b := range books {
		for _, row := range bookRows(b) {
			if err := batch.Append(row...); err != nil {
				_ = batch.Abort()
				return err
			}
		}
	}
	return batch.Send()
}

func (s *clickhouseStorage) Close() error {
	return s.conn.Close()
}

// candleRow flattens a candle into insert order. The footprint is stored as
// a JSON array in first-touch order.
func candleRow(c models.CandleRecord, insertedAt time.Time) ([]any, error) {
	footprint := []byte("[]")
	if len(c.Footprint) > 0 {
		var err error
		if footprint, err = json.Marshal(c.Footprint); err != nil {
			return nil, fmt.Errorf("encode footprint: %w", err)
		}
	}
	return []any{
		c.Symbol,
		uint32(c.Interval.Milliseconds()),
		c.Time.UTC(),
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Volume,
		c.BuyVolume,
		c.SellVolume,
		string(footprint),
		insertedAt,
	}, nil
}

func bookRows(s models.OrderBookSnapshot) [][]any {
	rows := make([][]any, 0, len(s.Book.Bids)+len(s.Book.Asks))
	side := func(name string, levels []models.BookLevel) {
		for i, l := range levels {
			rows = append(rows, []any{
				s.SnapshotID,
				s.Symbol,
				name,
				uint16(i),
				l.Price,
				l.Size,
				s.Book.UpdatedAt.UTC(),
			})
		}
	}
	side("bid", s.Book.Bids)
	side("ask", s.Book.Asks)
	return rows
}
