package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bondwatch/internal/domain"
	"bondwatch/internal/repository"
)

// CurrentStress godoc
// @Summary      Latest bond stress classification
// @Description  Returns the most recent persisted stress signal with its feature snapshot
// @Tags         stress
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200  {object}  domain.StressSignal
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/stress/current [get]
func (h *Handler) CurrentStress(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.current-stress")
	defer span.End()

	s, err := h.svc.CurrentStress(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stress signal recorded yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

// RunCycle godoc
// @Summary      Trigger a scoring cycle manually
// @Description  Fetches market data, classifies bond stress, and derives trading signals
// @Tags         stress
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200  {object}  domain.CycleResult
// @Failure      422  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/cycle/run [post]
func (h *Handler) RunCycle(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-cycle")
	defer span.End()

	result, err := h.svc.RunCycle(ctx)
	if errors.Is(err, domain.ErrInsufficientData) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
