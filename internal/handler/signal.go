package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bondwatch/internal/domain"
)

// RecentSignals godoc
// @Summary      Recent trading signals
// @Description  Returns persisted trading signals, newest first, optionally filtered
// @Tags         signals
// @Produce      json
// @Security     ApiKeyAuth
// @Param        symbol     query  string  false  "Symbol filter (e.g. NVDA)"
// @Param        direction  query  string  false  "Direction filter (BUY, SELL, HOLD)"
// @Param        tier       query  string  false  "Tier filter (NOW, SOON, WATCH, NEUTRAL)"
// @Param        limit      query  int     false  "Max rows (default 100)"
// @Success      200  {array}   domain.TradingSignal
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/signals [get]
func (h *Handler) RecentSignals(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.recent-signals")
	defer span.End()

	filter := domain.SignalFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
	}
	if d := strings.ToUpper(strings.TrimSpace(c.Query("direction"))); d != "" {
		dir := domain.Direction(d)
		if dir != domain.DirectionBuy && dir != domain.DirectionSell && dir != domain.DirectionHold {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid direction: " + d})
			return
		}
		filter.Direction = dir
	}
	if t := strings.ToUpper(strings.TrimSpace(c.Query("tier"))); t != "" {
		tier := domain.Tier(t)
		if !tier.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier: " + t})
			return
		}
		filter.Tier = tier
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: " + raw})
			return
		}
		filter.Limit = n
	}

	signals, err := h.svc.RecentSignals(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if signals == nil {
		signals = []domain.TradingSignal{}
	}
	c.JSON(http.StatusOK, signals)
}
