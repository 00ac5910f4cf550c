package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bondwatch/internal/backtest"
	"bondwatch/internal/bot"
	"bondwatch/internal/cache"
	"bondwatch/internal/config"
	"bondwatch/internal/db"
	"bondwatch/internal/features"
	"bondwatch/internal/handler"
	"bondwatch/internal/job"
	"bondwatch/internal/provider"
	"bondwatch/internal/repository"
	"bondwatch/internal/service"
	"bondwatch/internal/signals"
	"bondwatch/internal/stress"
	"bondwatch/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "bondwatch/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newStressRepoFunc      = repository.NewStressRepository
	newSignalRepoFunc      = repository.NewSignalRepository
	newStressServiceFunc   = service.NewStressService
	newStressPollerFunc    = job.NewStressPoller
	startPollerFunc        = func(p *job.StressPoller, ctx context.Context) { go p.Start(ctx) }
	newOutcomeResolverFunc = job.NewOutcomeResolverJob
	startResolverFunc      = func(j *job.OutcomeResolverJob, ctx context.Context) { go j.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Bondwatch API
// @version         1.0
// @description     Bond market stress scoring and trading signal service.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Pure pipeline components, parameterized from config.
	builder, err := features.NewBuilder(features.Params{
		VolWindow:      cfg.VolWindow,
		PeriodsPerYear: 252,
		MaxForwardFill: cfg.MaxForwardFill,
	})
	if err != nil {
		log.Fatalf("feature builder: %v", err)
	}
	classifierParams := stress.DefaultParams()
	classifierParams.ShortWindow = cfg.ShortWindow
	classifierParams.LongWindow = cfg.LongWindow
	classifierParams.ZStrong = cfg.ZScoreStrong
	classifierParams.ZModerate = cfg.ZScoreModerate
	classifierParams.ZMild = cfg.ZScoreMild
	classifier, err := stress.NewClassifier(classifierParams)
	if err != nil {
		log.Fatalf("stress classifier: %v", err)
	}
	engine, err := signals.NewEngine(signals.Params{
		CorrWindow:    cfg.CorrWindow,
		VolWindow:     cfg.VolWindow,
		BuyCorrNow:    cfg.BuyCorrNow,
		BuyCorrSoon:   cfg.BuyCorrSoon,
		SellCorr:      cfg.SellCorr,
		VIXLowMax:     cfg.VIXLowMax,
		VIXHighMin:    cfg.VIXHighMin,
		PosBaseLow:    cfg.PosBaseLow,
		PosBaseMedium: cfg.PosBaseMedium,
		PosBaseHigh:   cfg.PosBaseHigh,
		KellyFraction: cfg.KellyFraction,
		MaxPosition:   cfg.MaxPositionPct,
		StopVolMult:   cfg.StopVolMult,
	})
	if err != nil {
		log.Fatalf("signal engine: %v", err)
	}
	runner := backtest.NewRunner(builder, classifier, engine, cfg.LongWindow)

	// Repositories and migrations. With no DATABASE_URL the pool is nil and
	// the service runs stateless.
	var (
		stressStore service.StressStore
		signalStore service.SignalStore
	)
	if db.Pool != nil {
		stressRepo := newStressRepoFunc(db.Pool, tracer)
		signalRepo := newSignalRepoFunc(db.Pool, tracer)
		if err := stressRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run stress migrations: %v", err)
		}
		if err := signalRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run signal migrations: %v", err)
		}
		stressStore = stressRepo
		signalStore = signalRepo
	}

	var seriesCache service.SeriesCache
	if cache.Client != nil {
		seriesCache = cache.NewSeriesCache(cache.Client, time.Duration(cfg.CyclePollSecs)*time.Second)
	}

	fred := provider.NewFredProvider(cfg.FredAPIKey, provider.NewRateLimiter(2, time.Second), tracer)
	yahoo := provider.NewYahooProvider(provider.NewRateLimiter(2, time.Second), tracer)

	svc := newStressServiceFunc(*cfg, tracer, fred, yahoo,
		builder, classifier, engine, runner,
		stressStore, signalStore, seriesCache, nil)

	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	if tgBot := startTelegramBotFunc(svc, cfg.TelegramChatID); tgBot != nil {
		svc.SetAlerter(tgBot)
	}

	poller := newStressPollerFunc(tracer, svc, cfg.CyclePollSecs)
	startPollerFunc(poller, ctx)

	resolver := newOutcomeResolverFunc(tracer, svc, 30*time.Minute, 200)
	startResolverFunc(resolver, ctx)

	h := newHandlerFunc(tracer, svc, cfg.APIKey)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("bondwatch"))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
