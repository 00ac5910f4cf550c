package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bondwatch/internal/domain"
	"bondwatch/internal/repository"
)

type backtestRequest struct {
	Start string `json:"start"` // YYYY-MM-DD, optional
	End   string `json:"end"`   // YYYY-MM-DD, optional
	Step  int    `json:"step"`  // observations between evaluations, optional
}

// RunBacktest godoc
// @Summary      Replay the scoring pipeline over history
// @Description  Walk-forward backtest with realized forward returns and a significance check
// @Tags         backtest
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        request  body  backtestRequest  false  "Replay bounds"
// @Success      200  {object}  backtest.Report
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/backtest [post]
func (h *Handler) RunBacktest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-backtest")
	defer span.End()

	var req backtestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	var start, end time.Time
	var err error
	if req.Start != "" {
		if start, err = time.ParseInLocation("2006-01-02", req.Start, time.UTC); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date: " + req.Start})
			return
		}
	}
	if req.End != "" {
		if end, err = time.ParseInLocation("2006-01-02", req.End, time.UTC); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date: " + req.End})
			return
		}
	}

	report, err := h.svc.Backtest(ctx, start, end, req.Step)
	if errors.Is(err, domain.ErrInsufficientData) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Performance godoc
// @Summary      Realized signal performance
// @Description  Aggregates realized outcomes of directional signals, overall and per tier
// @Tags         backtest
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200  {object}  service.PerformanceSummary
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/performance [get]
func (h *Handler) Performance(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.performance")
	defer span.End()

	summary, err := h.svc.Performance(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
