package repository

import (
	"context"
	"errors"
	"testing"

	"project-chimera/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

func TestWatchlistListPreservesInsertionOrder(t *testing.T) {
	pool := &stubPool{rowsData: [][]any{{"AAPL"}, {"MSFT"}, {"NVDA"}}}
	repo := NewWatchlistRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	tickers, err := repo.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tickers) != 3 || tickers[0] != "AAPL" || tickers[2] != "NVDA" {
		t.Fatalf("unexpected tickers: %v", tickers)
	}
}

func TestWatchlistAddDuplicateTicker(t *testing.T) {
	pool := &stubPool{execErr: &pgconn.PgError{Code: "23505"}}
	repo := NewWatchlistRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	err := repo.Add(context.Background(), 1, "AAPL")
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestWatchlistRemoveUnknownTicker(t *testing.T) {
	pool := &stubPool{}
	repo := NewWatchlistRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	err := repo.Remove(context.Background(), 1, "ZZZZ")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWatchlistCount(t *testing.T) {
	pool := &stubPool{rowQueue: []stubRow{{data: []any{20}}}}
	repo := NewWatchlistRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	n, err := repo.Count(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != domain.WatchlistCap {
		t.Fatalf("expected count %d, got %d", domain.WatchlistCap, n)
	}
}
