package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/navid-fn/flowscope/internal/analysis"
	"github.com/navid-fn/flowscope/internal/models"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type AnalysisHandler struct {
	desk    Desk
	history PlanHistory
}

func NewAnalysisHandler(desk Desk, history PlanHistory) *AnalysisHandler {
	return &AnalysisHandler{
		desk:    desk,
		history: history,
	}
}

// Request starts an analysis. The plan shows up in GET /analysis once the
// analyst answers.
func (h *AnalysisHandler) Request(c *gin.Context) {
	if err := h.desk.RequestAnalysis(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	snap, ok := snapshot(c, h.desk)
	if !ok {
		return
	}
	c.JSON(http.StatusAccepted, snap.Analysis)
}

func (h *AnalysisHandler) Get(c *gin.Context) {
	snap, ok := snapshot(c, h.desk)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap.Analysis)
}

type adjustmentRequest struct {
	StopLoss   float64 `json:"stopLoss" binding:"required"`
	TakeProfit float64 `json:"takeProfit" binding:"required"`

	// Plan defaults to the current plan.
	Plan *models.TradePlan `json:"plan"`
}

// Adjust asks the analyst to comment on a user edit of the stop and target.
func (h *AnalysisHandler) Adjust(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan := req.Plan
	if plan == nil {
		snap, ok := snapshot(c, h.desk)
		if !ok {
			return
		}
		if snap.Analysis.Plan == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "no trade plan to adjust"})
			return
		}
		plan = &snap.Analysis.Plan.Plan
	}

	feedback, err := h.desk.ReviewAdjustment(c.Request.Context(), analysis.Adjustment{
		Plan:       *plan,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": feedback})
}

type optimizeRequest struct {
	Comment string `json:"comment" binding:"required"`

	// Plan defaults to the current plan.
	Plan *models.TradePlan `json:"plan"`
}

// Optimize reworks stop, target and size of a plan to fit the trader's
// risk comment.
func (h *AnalysisHandler) Optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Comment) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment is empty"})
		return
	}

	plan := req.Plan
	if plan == nil {
		snap, ok := snapshot(c, h.desk)
		if !ok {
			return
		}
		if snap.Analysis.Plan == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "no trade plan to optimize"})
			return
		}
		plan = &snap.Analysis.Plan.Plan
	}

	out, err := h.desk.Optimize(c.Request.Context(), analysis.Optimization{
		Plan:    *plan,
		Comment: req.Comment,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// History lists recent plans for ?symbol=, or the tracked symbol.
func (h *AnalysisHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	symbol := strings.ToUpper(c.Query("symbol"))
	if symbol == "" {
		snap, ok := snapshot(c, h.desk)
		if !ok {
			return
		}
		symbol = snap.Symbol
	}

	plans, err := h.history.LatestPlans(c.Request.Context(), symbol, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if plans == nil {
		plans = []models.PlanRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"plans":  plans,
	})
}
