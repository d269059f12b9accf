package main

import (
	"context"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"project-chimera/internal/agent"
	"project-chimera/internal/bot"
	"project-chimera/internal/cache"
	"project-chimera/internal/config"
	"project-chimera/internal/db"
	"project-chimera/internal/handler"
	"project-chimera/internal/job"
	"project-chimera/internal/orchestrator"
	"project-chimera/internal/repository"
	"project-chimera/internal/service"
	"project-chimera/internal/stream"
	"project-chimera/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "project-chimera/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newMemoRepoFunc        = repository.NewMemoRepository
	newRunRepoFunc         = repository.NewRunRepository
	newWatchlistRepoFunc   = repository.NewWatchlistRepository
	newSnapshotRepoFunc    = repository.NewSnapshotRepository
	newUserRepoFunc        = repository.NewUserRepository
	newDeltaRepoFunc       = repository.NewDeltaRepository
	newInvokerFunc         = agent.NewInvoker
	newOrchestratorFunc    = orchestrator.New
	newSweeperFunc         = job.NewStuckRunSweeper
	startSweeperFunc       = func(s *job.StuckRunSweeper, ctx context.Context) { go s.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Project Chimera API
// @version         1.0
// @description     Multi-agent investment analysis with a human decision gate.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repositories and run migrations
	memoRepo := newMemoRepoFunc(db.Pool, tracer)
	runRepo := newRunRepoFunc(db.Pool, tracer)
	watchlistRepo := newWatchlistRepoFunc(db.Pool, tracer)
	snapshotRepo := newSnapshotRepoFunc(db.Pool, tracer)
	userRepo := newUserRepoFunc(db.Pool, tracer)
	deltaRepo := newDeltaRepoFunc(db.Pool, tracer)
	if db.Pool != nil {
		for name, migrate := range map[string]func(context.Context) error{
			"memo":      memoRepo.RunMigrations,
			"run":       runRepo.RunMigrations,
			"watchlist": watchlistRepo.RunMigrations,
			"snapshot":  snapshotRepo.RunMigrations,
			"user":      userRepo.RunMigrations,
			"delta":     deltaRepo.RunMigrations,
		} {
			if err := migrate(ctx); err != nil {
				log.Fatalf("failed to run %s migrations: %v", name, err)
			}
		}
	}

	// Services
	sessions := cache.NewSessionStore(cache.Client, time.Duration(cfg.SessionTTLHours)*time.Hour)
	authService := service.NewAuthService(userRepo, sessions, tracer)
	memoService := service.NewMemoService(memoRepo, time.Duration(cfg.StuckRunThresholdMins)*time.Minute, tracer)
	marketService := service.NewMarketService(snapshotRepo, deltaRepo, cache.Client, 0, tracer)
	hub := stream.NewHub()

	// Agent pipeline
	chat := agent.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	invoker := newInvokerFunc(chat, tracer, agent.InvokerOptions{
		Timeout:      time.Duration(cfg.AgentTimeoutSecs) * time.Second,
		MaxRetries:   cfg.AgentMaxRetries,
		RetryBackoff: time.Duration(cfg.AgentRetryBackoffMs) * time.Millisecond,
	})
	pipeline := newOrchestratorFunc(invoker, marketService, tracer, orchestrator.Options{
		EnableMemory:         cfg.EnableMemory,
		EnableResearchDebate: cfg.EnableResearchDebate,
		EnableRiskDebate:     cfg.EnableRiskDebate,
		DebateRounds:         cfg.DebateRounds,
		MaxPositionPct:       cfg.MaxPositionPct,
	})

	// Start Telegram digest bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	var notifier service.CompletionNotifier
	if digests := startTelegramBotFunc(cfg.OperatorUserID, memoService, watchlistRepo); digests != nil {
		notifier = digests
	}
	analysisService := service.NewAnalysisService(runRepo, memoRepo, watchlistRepo, pipeline, hub, notifier, tracer)
	watchlistService := service.NewWatchlistService(watchlistRepo, analysisService, tracer)

	// Stuck-run sweeper (stopped by ctx cancel)
	sweeper := newSweeperFunc(tracer, runRepo,
		time.Duration(cfg.SweepIntervalSecs)*time.Second,
		time.Duration(cfg.StuckRunThresholdMins)*time.Minute,
	)
	startSweeperFunc(sweeper, ctx)

	// Create handlers and routes
	h := newHandlerFunc(tracer, authService, memoService, watchlistService, analysisService, marketService, hub)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("project-chimera"))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

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
	analysisService.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
