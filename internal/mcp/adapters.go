package mcp

import (
	"context"

	"project-chimera/internal/domain"
)

// MemoReaderDecider exposes read and decision operations on memos.
type MemoReaderDecider interface {
	List(ctx context.Context, filter domain.MemoFilter) ([]domain.InvestmentMemo, error)
	Get(ctx context.Context, id, userID int64) (*domain.InvestmentMemo, error)
	Decide(ctx context.Context, id, userID int64, decision domain.MemoStatus, notes string) (*domain.InvestmentMemo, error)
}

// WatchlistReaderWriter exposes watchlist management operations.
type WatchlistReaderWriter interface {
	List(ctx context.Context, userID int64) ([]string, error)
	Add(ctx context.Context, userID int64, rawTicker string) (string, error)
	Remove(ctx context.Context, userID int64, rawTicker string) error
}

// RunStarter kicks off analysis runs and reports their state.
type RunStarter interface {
	Generate(ctx context.Context, userID int64, rawTicker string, mode domain.AnalysisMode) (*domain.AnalysisRun, error)
	GetRun(ctx context.Context, id, userID int64) (*domain.AnalysisRun, error)
}
