package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"bondwatch/internal/backtest"
	"bondwatch/internal/domain"
	"bondwatch/internal/service"
)

// CycleService is the slice of the stress service the API exposes.
type CycleService interface {
	RunCycle(ctx context.Context) (domain.CycleResult, error)
	CurrentStress(ctx context.Context) (domain.StressSignal, error)
	RecentSignals(ctx context.Context, f domain.SignalFilter) ([]domain.TradingSignal, error)
	Performance(ctx context.Context) (service.PerformanceSummary, error)
	Backtest(ctx context.Context, start, end time.Time, step int) (backtest.Report, error)
}

type Handler struct {
	tracer trace.Tracer
	svc    CycleService
	apiKey string
}

func New(tracer trace.Tracer, svc CycleService, apiKey string) *Handler {
	return &Handler{tracer: tracer, svc: svc, apiKey: apiKey}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(h.apiKey))
	api.GET("/stress/current", h.CurrentStress)
	api.GET("/signals", h.RecentSignals)
	api.GET("/performance", h.Performance)
	api.POST("/cycle/run", h.RunCycle)
	api.POST("/backtest", h.RunBacktest)
}
