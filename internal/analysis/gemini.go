package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/navid-fn/flowscope/internal/models"
	"github.com/sirupsen/logrus"
)

const generatePath = "/v1beta/models/{model}:generateContent"

// GeminiConfig holds the API settings.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GeminiClient requests trade plans from the Gemini generateContent API.
type GeminiClient struct {
	cfg    GeminiConfig
	http   *resty.Client
	logger *logrus.Logger
}

// NewGeminiClient creates a client. A missing key is reported on each call
// rather than here, so the desk can still start without one.
func NewGeminiClient(cfg GeminiConfig, logger *logrus.Logger) *GeminiClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &GeminiClient{cfg: cfg, http: client, logger: logger}
}

func (g *GeminiClient) Name() string { return "gemini" }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
	ResponseSchema   any    `json:"responseSchema"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var planSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"tradeDirection":          map[string]any{"type": "STRING", "enum": []string{"LONG", "SHORT", "NEUTRAL"}},
		"speculativeDirection":    map[string]any{"type": "STRING", "enum": []string{"LONG", "SHORT"}},
		"keyObservation":          map[string]any{"type": "STRING"},
		"entryPrice":              map[string]any{"type": "NUMBER"},
		"stopLoss":                map[string]any{"type": "NUMBER"},
		"takeProfit":              map[string]any{"type": "NUMBER"},
		"positionSize":            map[string]any{"type": "NUMBER"},
		"confidence":              map[string]any{"type": "STRING", "enum": []string{"High", "Medium", "Low"}},
		"nextActionableSignal":    map[string]any{"type": "STRING"},
		"stopLossJustification":   map[string]any{"type": "STRING"},
		"takeProfitJustification": map[string]any{"type": "STRING"},
	},
	"required": []string{
		"tradeDirection", "keyObservation", "entryPrice", "stopLoss", "takeProfit", "positionSize",
		"confidence", "nextActionableSignal", "stopLossJustification", "takeProfitJustification",
	},
}

var feedbackSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"feedback": map[string]any{"type": "STRING"},
	},
	"required": []string{"feedback"},
}

var optimizeSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"newStopLoss":     map[string]any{"type": "NUMBER"},
		"newTakeProfit":   map[string]any{"type": "NUMBER"},
		"newPositionSize": map[string]any{"type": "NUMBER"},
		"explanation":     map[string]any{"type": "STRING"},
	},
	"required": []string{"newStopLoss", "newTakeProfit", "newPositionSize", "explanation"},
}

// Analyze requests a trade plan for the snapshot.
func (g *GeminiClient) Analyze(ctx context.Context, req Request) (models.TradePlan, error) {
	text, err := g.generate(ctx, BuildPrompt(req.Snapshot, req.Config), planSchema)
	if err != nil {
		return models.TradePlan{}, err
	}
	return DecodePlan([]byte(text))
}

// ReviewAdjustment asks for feedback on a user edit of stop and target.
func (g *GeminiClient) ReviewAdjustment(ctx context.Context, snap *models.MarketSnapshot, adj Adjustment) (string, error) {
	text, err := g.generate(ctx, BuildAdjustmentPrompt(snap, adj), feedbackSchema)
	if err != nil {
		return "", err
	}
	var out struct {
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil || out.Feedback == "" {
		return "", fmt.Errorf("%w: feedback", ErrMalformedPlan)
	}
	return out.Feedback, nil
}

// Optimize asks for a plan resized to the trader's constraint.
func (g *GeminiClient) Optimize(ctx context.Context, req Request, opt Optimization) (OptimizedPlan, error) {
	text, err := g.generate(ctx, BuildOptimizationPrompt(req.Snapshot, req.Config, opt), optimizeSchema)
	if err != nil {
		return OptimizedPlan{}, err
	}
	return DecodeOptimizedPlan([]byte(text))
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, schema any) (string, error) {
	if g.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	var (
		result generateResponse
		failed apiError
	)
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("model", g.cfg.Model).
		SetBody(generateRequest{
			Contents: []content{{Parts: []part{{Text: prompt}}}},
			GenerationConfig: generationConfig{
				ResponseMimeType: "application/json",
				ResponseSchema:   schema,
			},
		}).
		SetResult(&result).
		SetError(&failed).
		Post(generatePath)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("gemini request: %w", err)
	}

	if resp.IsError() {
		g.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode(),
			"reason": failed.Error.Status,
		}).Warn("Gemini request failed")

		if resp.StatusCode() == http.StatusTooManyRequests || failed.Error.Status == "RESOURCE_EXHAUSTED" {
			return "", ErrRateLimited
		}
		return "", fmt.Errorf("gemini request: status %d: %s", resp.StatusCode(), failed.Error.Message)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrMalformedPlan)
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
