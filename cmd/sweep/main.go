package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"project-chimera/internal/job"
	"project-chimera/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

const defaultThresholdMins = 30

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

type options struct {
	stuckThreshold   time.Duration
	pendingThreshold time.Duration
	pendingUserID    int64
}

func main() {
	loadEnvFunc()

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("parse options: %v", err)
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	tracer := trace.NewNoopTracerProvider().Tracer("sweep")
	runRepo := repository.NewRunRepository(pool, tracer)
	memoRepo := repository.NewMemoRepository(pool, tracer)

	sweeper := job.NewStuckRunSweeper(tracer, runRepo, 0, opts.stuckThreshold)
	failed, err := sweeper.Sweep(ctx)
	if err != nil {
		log.Fatalf("fail stuck runs: %v", err)
	}
	log.Printf("marked %d stuck runs failed (threshold %s)", failed, opts.stuckThreshold)

	if opts.pendingThreshold > 0 {
		rejected, err := memoRepo.CleanupPending(ctx, opts.pendingUserID, opts.pendingThreshold)
		if err != nil {
			log.Fatalf("cleanup pending memos: %v", err)
		}
		log.Printf("auto-rejected %d pending memos for user %d (older than %s)", rejected, opts.pendingUserID, opts.pendingThreshold)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	stuckMins := fs.Int("stuck-mins", defaultStuckMins(getenv), "age in minutes before an unfinished run is marked failed (default from STUCK_RUN_THRESHOLD_MINS, else 30)")
	pendingMins := fs.Int("pending-mins", 0, "also auto-reject pending memos older than this many minutes (0 disables)")
	pendingUser := fs.Int64("user", 0, "user whose pending memos to clean up; required with -pending-mins")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *stuckMins <= 0 {
		return options{}, fmt.Errorf("stuck-mins must be > 0")
	}
	if *pendingMins < 0 {
		return options{}, fmt.Errorf("pending-mins must be >= 0")
	}
	if *pendingMins > 0 && *pendingUser <= 0 {
		return options{}, fmt.Errorf("user is required when pending-mins is set")
	}

	return options{
		stuckThreshold:   time.Duration(*stuckMins) * time.Minute,
		pendingThreshold: time.Duration(*pendingMins) * time.Minute,
		pendingUserID:    *pendingUser,
	}, nil
}

func defaultStuckMins(getenv func(string) string) int {
	v := strings.TrimSpace(getenv("STUCK_RUN_THRESHOLD_MINS"))
	if v == "" {
		return defaultThresholdMins
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultThresholdMins
	}
	return n
}
