package storage

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/navid-fn/flowscope/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleRow(t *testing.T) {
	open := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
	inserted := open.Add(time.Minute)
	rec := models.CandleRecord{
		Symbol:   "BTCUSDT",
		Interval: 5 * time.Second,
		Candle: models.Candle{
			Time: open, Open: 100, High: 101, Low: 99.5, Close: 100.5,
			Volume: 3, BuyVolume: 2, SellVolume: 1,
			Footprint: []models.FootprintLevel{{Price: 100.5, BuyVolume: 2}, {Price: 100, SellVolume: 1}},
		},
	}

	row, err := candleRow(rec, inserted)
	require.NoError(t, err)
	require.Len(t, row, 12)
	assert.Equal(t, "BTCUSDT", row[0])
	assert.Equal(t, uint32(5000), row[1])
	assert.Equal(t, open, row[2])
	assert.Equal(t, 100.5, row[6])
	assert.JSONEq(t, `[{"price":100.5,"buyVolume":2,"sellVolume":0},{"price":100,"buyVolume":0,"sellVolume":1}]`, row[10].(string))
	assert.Equal(t, inserted, row[11])

	rec.Footprint = nil
	row, err = candleRow(rec, inserted)
	require.NoError(t, err)
	assert.Equal(t, "[]", row[10])
}

func TestBookRows(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := bookRows(models.OrderBookSnapshot{
		SnapshotID: "snap",
		Symbol:     "ETHUSDT",
		Book: models.OrderBook{
			Bids:      []models.BookLevel{{Price: 99, Size: 1}, {Price: 98, Size: 2}},
			Asks:      []models.BookLevel{{Price: 101, Size: 3}},
			UpdatedAt: at,
		},
	})

	require.Len(t, rows, 3)
	assert.Equal(t, []any{"snap", "ETHUSDT", "bid", uint16(0), 99.0, 1.0, at}, rows[0])
	assert.Equal(t, []any{"snap", "ETHUSDT", "bid", uint16(1), 98.0, 2.0, at}, rows[1])
	assert.Equal(t, []any{"snap", "ETHUSDT", "ask", uint16(0), 101.0, 3.0, at}, rows[2])
}

type fakeStorage struct {
	candles   int
	books     int
	candleErr error
}

func (f *fakeStorage) CreateCandles(_ context.Context, c []models.CandleRecord) error {
	if f.candleErr != nil {
		return f.candleErr
	}
	f.candles += len(c)
	return nil
}

func (f *fakeStorage) CreateOrderBooks(_ context.Context, b []models.OrderBookSnapshot) error {
	f.books += len(b)
	return nil
}

func (f *fakeStorage) Close() error { return nil }

func TestSink(t *testing.T) {
	store := &fakeStorage{}
	sink := NewSink(store)
	err := sink.Write(context.Background(), recorder.Batch{
		Candles: []models.CandleRecord{{}, {}},
		Books:   []models.OrderBookSnapshot{{}},
		Plans:   []models.PlanRecord{{}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, store.candles)
	assert.Equal(t, 1, store.books)

	store.candleErr = errors.New("down")
	assert.Error(t, sink.Write(context.Background(), recorder.Batch{Candles: []models.CandleRecord{{}}}))
	assert.Equal(t, 1, store.books, "books are not written after a candle failure")
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(Migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/00001_create_candle.sql",
		"migrations/00002_create_order_book.sql",
		"migrations/00003_create_trade_plan.sql",
	}, names)
}
