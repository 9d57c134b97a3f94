package repository

import (
	"context"
	"testing"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/navid-fn/flowscope/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowRoundTrip(t *testing.T) {
	rec := models.PlanRecord{
		ID:     "b7c1",
		Symbol: "BTCUSDT",
		Source: "gemini",
		Plan: models.TradePlan{
			Direction:            models.DirectionNeutral,
			SpeculativeDirection: models.DirectionShort,
			KeyObservation:       "Asia range.",
			EntryPrice:           68000,
			StopLoss:             68068,
			TakeProfit:           67898,
			PositionSize:         1.4706,
			Confidence:           models.ConfidenceLow,
		},
		CreatedAt: time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC),
	}

	row := toRow(rec)
	assert.Equal(t, "NEUTRAL", row.Direction)
	assert.Equal(t, "SHORT", row.SpeculativeDirection)
	assert.Equal(t, "trade_plan", row.TableName())
	assert.Equal(t, rec, fromRow(row))
}

type fakeRepo struct {
	created []models.PlanRecord
}

func (f *fakeRepo) CreatePlans(_ context.Context, plans []models.PlanRecord) error {
	f.created = append(f.created, plans...)
	return nil
}

func (f *fakeRepo) LatestPlans(context.Context, string, int) ([]models.PlanRecord, error) {
	return f.created, nil
}

func TestPlanSinkWritesPlansOnly(t *testing.T) {
	repo := &fakeRepo{}
	sink := NewPlanSink(repo)
	require.NoError(t, sink.Write(context.Background(), recorder.Batch{
		Candles: []models.CandleRecord{{}},
		Plans:   []models.PlanRecord{{ID: "a"}, {ID: "b"}},
	}))
	assert.Len(t, repo.created, 2)
	assert.Equal(t, "plans", sink.Name())
}
