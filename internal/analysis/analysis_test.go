package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPlan = `{
	"tradeDirection": "LONG",
	"keyObservation": "London session, bid wall at 67900.",
	"entryPrice": 68000,
	"stopLoss": 67900,
	"takeProfit": 68200,
	"positionSize": 1,
	"confidence": "High",
	"nextActionableSignal": "Enter on retest.",
	"stopLossJustification": "Below the wall.",
	"takeProfitJustification": "Short liquidations."
}`

var botConfig = models.BotConfig{Symbol: "BTCUSDT", AccountBalance: 10000, Leverage: 10, RiskPercentage: 1}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSnapshot(session models.Session, delta float64) *models.MarketSnapshot {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snap := &models.MarketSnapshot{
		Symbol:  "BTCUSDT",
		Price:   68000,
		CVD:     12.5,
		Session: session,
		Indicators: models.Indicators{
			EMA:        map[int]float64{9: 67990, 21: 67950, 50: 67800},
			VWAP:       map[string]float64{"5m": 67980, "1h": 67900},
			Support:    67500,
			Resistance: 68500,
		},
		OrderBook: models.OrderBook{
			Bids: []models.BookLevel{{Price: 67900, Size: 12}},
			Asks: []models.BookLevel{{Price: 68100, Size: 8}},
		},
		Liquidations: models.Liquidations{
			Longs:  []models.LiquidationLevel{{Price: 67000, Amount: 25e6}},
			Shorts: []models.LiquidationLevel{{Price: 69000, Amount: 40e6}},
		},
		OpenInterest: []models.OpenInterestPoint{{Time: start, Value: 51234.5}},
	}
	for i := 0; i < 12; i++ {
		buy, sell := 5.0, 5.0
		if i == 11 {
			buy += delta
		}
		snap.Candles = append(snap.Candles, models.Candle{
			Time: start.Add(time.Duration(i) * 5 * time.Second),
			Open: 68000, High: 68050, Low: 67950, Close: 68000,
			Volume: buy + sell, BuyVolume: buy, SellVolume: sell,
			Footprint: []models.FootprintLevel{{Price: 68000, BuyVolume: buy, SellVolume: sell}},
		})
	}
	return snap
}

func TestDecodePlan(t *testing.T) {
	plan, err := DecodePlan([]byte(validPlan))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionLong, plan.Direction)
	assert.Equal(t, 67900.0, plan.StopLoss)
	assert.Equal(t, models.ConfidenceHigh, plan.Confidence)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"tradeDirection":`},
		{"bad direction", strings.Replace(validPlan, `"LONG"`, `"UP"`, 1)},
		{"bad confidence", strings.Replace(validPlan, `"High"`, `"Certain"`, 1)},
		{"missing observation", strings.Replace(validPlan, `"London session, bid wall at 67900."`, `""`, 1)},
		{"wrong type", strings.Replace(validPlan, `68000`, `"68000"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePlan([]byte(tt.body))
			assert.True(t, errors.Is(err, ErrMalformedPlan), "got %v", err)
		})
	}
}

func TestPositionSize(t *testing.T) {
	assert.InDelta(t, 1.0, PositionSize(botConfig, 68000, 67900), 1e-9)
	assert.InDelta(t, 1.0, PositionSize(botConfig, 67900, 68000), 1e-9)
	assert.Zero(t, PositionSize(botConfig, 100, 100))
}

func TestPriceFormatting(t *testing.T) {
	assert.Equal(t, "68000.13", FormatPrice(68000.126, 68000))
	assert.Equal(t, "1.0851", FormatPrice(1.08512, 1.08))
	assert.Equal(t, 1.0851, RoundPrice(1.08512, 1.08))
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(testSnapshot(models.SessionLondon, 2), botConfig)

	for _, want := range []string{
		"BTCUSDT",
		"Max Risk per trade: 1% ($100.00)",
		"Current Price: $68000.00",
		"Cumulative Volume Delta (Session): 12.50",
		"Average Candle Range (Volatility): $100.00",
		"Delta: 2.00",
		"Current Trading Session: London",
		"Open Interest: 51234.50",
		"$67900.00 (12.00)",
		"$69000.00 ($40.0M)",
		"$67000.00 ($25.0M)",
		"Session High (Liquidity Zone): $68050.00",
		"5-min VWAP: $67980.00",
		"50 EMA (Baseline): $67800.00",
		"Candle T-0 POC: $68000.00",
	} {
		assert.Contains(t, prompt, want)
	}
}

func TestMockAnalyst(t *testing.T) {
	m := MockAnalyst{}

	long, err := m.Analyze(context.Background(), Request{Snapshot: testSnapshot(models.SessionLondon, 3), Config: botConfig})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionLong, long.Direction)
	assert.Equal(t, 68000.0, long.EntryPrice)
	assert.Equal(t, 67932.0, long.StopLoss)
	assert.Equal(t, 68102.0, long.TakeProfit)
	assert.InDelta(t, 100.0/68, long.PositionSize, 1e-4)
	assert.NoError(t, ValidatePlan(long))

	short, err := m.Analyze(context.Background(), Request{Snapshot: testSnapshot(models.SessionNewYork, -3), Config: botConfig})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionShort, short.Direction)
	assert.Equal(t, 68068.0, short.StopLoss)
	assert.Equal(t, 67898.0, short.TakeProfit)

	neutral, err := m.Analyze(context.Background(), Request{Snapshot: testSnapshot(models.SessionAsia, -3), Config: botConfig})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNeutral, neutral.Direction)
	assert.Equal(t, models.DirectionShort, neutral.SpeculativeDirection)
	assert.Equal(t, models.ConfidenceLow, neutral.Confidence)
	assert.Contains(t, neutral.NextActionableSignal, "Long breakout: Enter at $68068.00")
	assert.Contains(t, neutral.NextActionableSignal, "Short breakdown: Enter at $67932.00")

	flat, err := m.Analyze(context.Background(), Request{Snapshot: testSnapshot(models.SessionLondon, 0), Config: botConfig})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNeutral, flat.Direction)
	assert.Equal(t, models.DirectionLong, flat.SpeculativeDirection)

	_, err = m.Analyze(context.Background(), Request{Snapshot: &models.MarketSnapshot{}, Config: botConfig})
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestMockReviewAdjustment(t *testing.T) {
	plan := models.TradePlan{EntryPrice: 100}
	good, err := MockAnalyst{}.ReviewAdjustment(context.Background(), nil, Adjustment{Plan: plan, StopLoss: 99, TakeProfit: 102})
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(good, "Warning:"))

	bad, err := MockAnalyst{}.ReviewAdjustment(context.Background(), nil, Adjustment{Plan: plan, StopLoss: 98, TakeProfit: 101})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(bad, "Warning:"))
}

func geminiServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
			if assert.Len(t, req.Contents, 1) && assert.NotEmpty(t, req.Contents[0].Parts) {
				assert.Contains(t, req.Contents[0].Parts[0].Text, "BTCUSDT")
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func candidate(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}}},
	})
	return string(b)
}

func TestGeminiClientAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "plan", status: http.StatusOK, body: candidate(validPlan)},
		{name: "http 429", status: http.StatusTooManyRequests, body: `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, wantErr: ErrRateLimited},
		{name: "resource exhausted", status: http.StatusBadRequest, body: `{"error":{"code":400,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, wantErr: ErrRateLimited},
		{name: "bad plan", status: http.StatusOK, body: candidate(`{"tradeDirection":"SIDEWAYS"}`), wantErr: ErrMalformedPlan},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, wantErr: ErrMalformedPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := geminiServer(t, tt.status, tt.body)
			defer srv.Close()

			client := NewGeminiClient(GeminiConfig{APIKey: "secret", BaseURL: srv.URL, Model: "test-model", Timeout: 5 * time.Second}, quietLogger())
			plan, err := client.Analyze(context.Background(), Request{Snapshot: testSnapshot(models.SessionLondon, 1), Config: botConfig})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.DirectionLong, plan.Direction)
			assert.Equal(t, 68200.0, plan.TakeProfit)
		})
	}
}

func TestGeminiClientServerError(t *testing.T) {
	srv := geminiServer(t, http.StatusInternalServerError, `{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`)
	defer srv.Close()

	client := NewGeminiClient(GeminiConfig{APIKey: "secret", BaseURL: srv.URL, Model: "test-model"}, quietLogger())
	_, err := client.Analyze(context.Background(), Request{Snapshot: testSnapshot(models.SessionLondon, 1), Config: botConfig})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "boom")
}

func TestGeminiClientMissingKey(t *testing.T) {
	client := NewGeminiClient(GeminiConfig{BaseURL: "http://127.0.0.1:1", Model: "m"}, quietLogger())
	_, err := client.Analyze(context.Background(), Request{Snapshot: testSnapshot(models.SessionLondon, 1), Config: botConfig})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGeminiReviewAdjustment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(candidate(`{"feedback":"Warning: stop is inside the range."}`)))
	}))
	defer srv.Close()

	client := NewGeminiClient(GeminiConfig{APIKey: "secret", BaseURL: srv.URL, Model: "m"}, quietLogger())
	fb, err := client.ReviewAdjustment(context.Background(), testSnapshot(models.SessionLondon, 1), Adjustment{
		Plan: models.TradePlan{Direction: models.DirectionLong, EntryPrice: 68000, StopLoss: 67900, TakeProfit: 68200},
		StopLoss: 67990, TakeProfit: 68300,
	})
	require.NoError(t, err)
	assert.Equal(t, "Warning: stop is inside the range.", fb)
}

func TestMockOptimize(t *testing.T) {
	long := models.TradePlan{Direction: models.DirectionLong, EntryPrice: 100, StopLoss: 99, TakeProfit: 102}
	short := models.TradePlan{Direction: models.DirectionShort, EntryPrice: 100, StopLoss: 101, TakeProfit: 99.5}

	tests := []struct {
		name       string
		plan       models.TradePlan
		comment    string
		wantSize   float64
		wantTarget float64
		wantErr    error
	}{
		{name: "dollar limit", plan: long, comment: "max $50 risk on this one", wantSize: 50, wantTarget: 102},
		{name: "dollar limit with separators", plan: long, comment: "I can lose $1,200 at most", wantSize: 1200, wantTarget: 102},
		{name: "percent of balance", plan: long, comment: "keep it under 0.5% today", wantSize: 50, wantTarget: 102},
		{name: "no constraint uses configured risk", plan: long, comment: "tighten it up", wantSize: 100, wantTarget: 102},
		{name: "short target pushed to 1.5R", plan: short, comment: "$20", wantSize: 20, wantTarget: 98.5},
		{name: "neutral plan", plan: models.TradePlan{Direction: models.DirectionNeutral, EntryPrice: 100, StopLoss: 99}, wantErr: ErrNothingToOptimize},
		{name: "stop at entry", plan: models.TradePlan{Direction: models.DirectionLong, EntryPrice: 100, StopLoss: 100}, wantErr: ErrNothingToOptimize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MockAnalyst{}.Optimize(context.Background(), Request{Config: botConfig}, Optimization{Plan: tt.plan, Comment: tt.comment})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.plan.StopLoss, out.NewStopLoss)
			assert.InDelta(t, tt.wantSize, out.NewPositionSize, 1e-9)
			assert.InDelta(t, tt.wantTarget, out.NewTakeProfit, 1e-9)
			assert.NotEmpty(t, out.Explanation)
		})
	}
}

func TestDecodeOptimizedPlan(t *testing.T) {
	out, err := DecodeOptimizedPlan([]byte(` {"newStopLoss":67850,"newTakeProfit":68300,"newPositionSize":0.6667,"explanation":"Risk capped at $100."} `))
	require.NoError(t, err)
	assert.Equal(t, OptimizedPlan{NewStopLoss: 67850, NewTakeProfit: 68300, NewPositionSize: 0.6667, Explanation: "Risk capped at $100."}, out)

	for _, body := range []string{
		`{"newStopLoss":67850,"newTakeProfit":68300,"newPositionSize":0,"explanation":"x"}`,
		`{"newStopLoss":-1,"newTakeProfit":68300,"newPositionSize":1,"explanation":"x"}`,
		`{"newStopLoss":67850,"newTakeProfit":68300,"newPositionSize":1,"explanation":"  "}`,
		`not json`,
	} {
		_, err := DecodeOptimizedPlan([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedPlan, body)
	}
}

func TestBuildOptimizationPrompt(t *testing.T) {
	prompt := BuildOptimizationPrompt(testSnapshot(models.SessionLondon, 1), botConfig, Optimization{
		Plan:    models.TradePlan{Direction: models.DirectionLong, KeyObservation: "Bids stacked.", EntryPrice: 68000},
		Comment: "down $200 today, daily limit is $300",
	})
	for _, want := range []string{
		`"down $200 today, daily limit is $300"`,
		"Trade Idea for BTCUSDT",
		"- Entry: $68000.00",
		"- Account Balance: $10000.00",
		"- Key Support: $67500.00",
		"- 1-hour VWAP: $67900.00",
		"newPositionSize = maximum dollar risk / |entry - newStopLoss|",
	} {
		assert.Contains(t, prompt, want)
	}
}

func TestGeminiOptimize(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, candidate(`{"newStopLoss":67850,"newTakeProfit":68300,"newPositionSize":0.6667,"explanation":"Risk capped at $100."}`))
	defer srv.Close()

	client := NewGeminiClient(GeminiConfig{APIKey: "secret", BaseURL: srv.URL, Model: "test-model"}, quietLogger())
	out, err := client.Optimize(context.Background(), Request{Snapshot: testSnapshot(models.SessionLondon, 1), Config: botConfig}, Optimization{
		Plan:    models.TradePlan{Direction: models.DirectionLong, EntryPrice: 68000, StopLoss: 67900, TakeProfit: 68200},
		Comment: "max $100",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.6667, out.NewPositionSize)
	assert.Equal(t, "Risk capped at $100.", out.Explanation)

	limited := geminiServer(t, http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	defer limited.Close()
	client = NewGeminiClient(GeminiConfig{APIKey: "secret", BaseURL: limited.URL, Model: "test-model"}, quietLogger())
	_, err = client.Optimize(context.Background(), Request{Snapshot: testSnapshot(models.SessionLondon, 1), Config: botConfig}, Optimization{Comment: "max $100"})
	assert.ErrorIs(t, err, ErrRateLimited)
}
