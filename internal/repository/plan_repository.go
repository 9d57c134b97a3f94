// Package repository stores trade plans through gorm.
package repository

import (
	"context"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/navid-fn/flowscope/internal/recorder"
	"gorm.io/gorm"
)

// Plan is the trade_plan row.
type Plan struct {
	ID                      string
	Symbol                  string
	Source                  string
	Direction               string
	SpeculativeDirection    string
	Confidence              string
	EntryPrice              float64
	StopLoss                float64
	TakeProfit              float64
	PositionSize            float64
	KeyObservation          string
	NextActionableSignal    string
	StopLossJustification   string
	TakeProfitJustification string
	CreatedAt               time.Time
}

func (Plan) TableName() string { return "trade_plan" }

type PlanRepository interface {
	CreatePlans(ctx context.Context, plans []models.PlanRecord) error

	// LatestPlans returns up to limit plans for symbol, newest first.
	LatestPlans(ctx context.Context, symbol string, limit int) ([]models.PlanRecord, error)
}

type gormPlanRepository struct {
	db *gorm.DB
}

func NewGormPlanRepository(db *gorm.DB) PlanRepository {
	return &gormPlanRepository{db: db}
}

func (r *gormPlanRepository) CreatePlans(ctx context.Context, plans []models.PlanRecord) error {
	if len(plans) == 0 {
		return nil
	}
	rows := make([]Plan, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, toRow(p))
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *gormPlanRepository) LatestPlans(ctx context.Context, symbol string, limit int) ([]models.PlanRecord, error) {
	var rows []Plan
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.PlanRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func toRow(p models.PlanRecord) Plan {
	return Plan{
		ID:                      p.ID,
		Symbol:                  p.Symbol,
		Source:                  p.Source,
		Direction:               string(p.Plan.Direction),
		SpeculativeDirection:    string(p.Plan.SpeculativeDirection),
		Confidence:              string(p.Plan.Confidence),
		EntryPrice:              p.Plan.EntryPrice,
		StopLoss:                p.Plan.StopLoss,
		TakeProfit:              p.Plan.TakeProfit,
		PositionSize:            p.Plan.PositionSize,
		KeyObservation:          p.Plan.KeyObservation,
		NextActionableSignal:    p.Plan.NextActionableSignal,
		StopLossJustification:   p.Plan.StopLossJustification,
		TakeProfitJustification: p.Plan.TakeProfitJustification,
		CreatedAt:               p.CreatedAt.UTC(),
	}
}

func fromRow(row Plan) models.PlanRecord {
	return models.PlanRecord{
		ID:     row.ID,
		Symbol: row.Symbol,
		Source: row.Source,
		Plan: models.TradePlan{
			Direction:               models.Direction(row.Direction),
			SpeculativeDirection:    models.Direction(row.SpeculativeDirection),
			KeyObservation:          row.KeyObservation,
			EntryPrice:              row.EntryPrice,
			StopLoss:                row.StopLoss,
			TakeProfit:              row.TakeProfit,
			PositionSize:            row.PositionSize,
			Confidence:              models.Confidence(row.Confidence),
			NextActionableSignal:    row.NextActionableSignal,
			StopLossJustification:   row.StopLossJustification,
			TakeProfitJustification: row.TakeProfitJustification,
		},
		CreatedAt: row.CreatedAt,
	}
}

// PlanSink stores the plan part of recorder batches.
type PlanSink struct {
	repo PlanRepository
}

func NewPlanSink(repo PlanRepository) *PlanSink { return &PlanSink{repo: repo} }

func (s *PlanSink) Name() string { return "plans" }

func (s *PlanSink) Write(ctx context.Context, b recorder.Batch) error {
	return s.repo.CreatePlans(ctx, b.Plans)
}
