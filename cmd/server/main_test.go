package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"project-chimera/internal/agent"
	"project-chimera/internal/bot"
	"project-chimera/internal/config"
	"project-chimera/internal/job"
	"project-chimera/internal/orchestrator"
	"project-chimera/internal/repository"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps()
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func stubServerDeps() func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origInitTracer := initTracerFunc
	origNewMemoRepo := newMemoRepoFunc
	origNewRunRepo := newRunRepoFunc
	origNewWatchlistRepo := newWatchlistRepoFunc
	origNewSnapshotRepo := newSnapshotRepoFunc
	origNewUserRepo := newUserRepoFunc
	origNewDeltaRepo := newDeltaRepoFunc
	origNewInvoker := newInvokerFunc
	origNewOrchestrator := newOrchestratorFunc
	origNewSweeper := newSweeperFunc
	origStartSweeper := startSweeperFunc
	origStartTelegram := startTelegramBotFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			CORSAllowedOrigins: []string{"http://localhost:3000"},
			AgentTimeoutSecs:   1,
			SweepIntervalSecs:  1,
			SessionTTLHours:    1,
		}
	}
	initPostgresFunc = func(context.Context) {}
	initRedisFunc = func(context.Context) {}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newMemoRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.MemoRepository { return nil }
	newRunRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.RunRepository { return nil }
	newWatchlistRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.WatchlistRepository { return nil }
	newSnapshotRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.SnapshotRepository { return nil }
	newUserRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.UserRepository { return nil }
	newDeltaRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.DeltaRepository { return nil }
	newInvokerFunc = func(agent.ChatCompleter, trace.Tracer, agent.InvokerOptions) *agent.Invoker { return nil }
	newOrchestratorFunc = func(orchestrator.AgentInvoker, orchestrator.SnapshotSource, trace.Tracer, orchestrator.Options) *orchestrator.Orchestrator {
		return nil
	}
	newSweeperFunc = func(trace.Tracer, job.StuckRunFailer, time.Duration, time.Duration) *job.StuckRunSweeper {
		return nil
	}
	startSweeperFunc = func(*job.StuckRunSweeper, context.Context) {}
	startTelegramBotFunc = func(int64, bot.MemoLister, bot.WatchlistViewer) *bot.DigestDispatcher { return nil }
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		initTracerFunc = origInitTracer
		newMemoRepoFunc = origNewMemoRepo
		newRunRepoFunc = origNewRunRepo
		newWatchlistRepoFunc = origNewWatchlistRepo
		newSnapshotRepoFunc = origNewSnapshotRepo
		newUserRepoFunc = origNewUserRepo
		newDeltaRepoFunc = origNewDeltaRepo
		newInvokerFunc = origNewInvoker
		newOrchestratorFunc = origNewOrchestrator
		newSweeperFunc = origNewSweeper
		startSweeperFunc = origStartSweeper
		startTelegramBotFunc = origStartTelegram
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
