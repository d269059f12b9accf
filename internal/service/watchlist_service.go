package service

import (
	"context"

	"project-chimera/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type WatchlistRepository interface {
	List(ctx context.Context, userID int64) ([]string, error)
	Count(ctx context.Context, userID int64) (int, error)
	Add(ctx context.Context, userID int64, ticker string) error
	Remove(ctx context.Context, userID int64, ticker string) error
}

// RunCanceller stops in-flight analysis runs for a ticker. Removing a ticker
// from the watchlist must not leave its runs burning tokens.
type RunCanceller interface {
	CancelTicker(userID int64, ticker string)
}

type WatchlistService struct {
	watchlist WatchlistRepository
	canceller RunCanceller
	tracer    trace.Tracer
}

func NewWatchlistService(watchlist WatchlistRepository, canceller RunCanceller, tracer trace.Tracer) *WatchlistService {
	return &WatchlistService{watchlist: watchlist, canceller: canceller, tracer: tracer}
}

func (s *WatchlistService) List(ctx context.Context, userID int64) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "watchlist-service.list")
	defer span.End()

	return s.watchlist.List(ctx, userID)
}

// Add enforces the watchlist cap before touching the table.
func (s *WatchlistService) Add(ctx context.Context, userID int64, rawTicker string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "watchlist-service.add")
	defer span.End()

	ticker, err := domain.NormalizeTicker(rawTicker)
	if err != nil {
		return "", err
	}
	count, err := s.watchlist.Count(ctx, userID)
	if err != nil {
		return "", err
	}
	if count >= domain.WatchlistCap {
		return "", domain.ErrWatchlistFull
	}
	if err := s.watchlist.Add(ctx, userID, ticker); err != nil {
		return "", err
	}
	return ticker, nil
}

// Remove drops the ticker and cancels any analysis still running for it.
func (s *WatchlistService) Remove(ctx context.Context, userID int64, rawTicker string) error {
	ctx, span := s.tracer.Start(ctx, "watchlist-service.remove")
	defer span.End()

	ticker, err := domain.NormalizeTicker(rawTicker)
	if err != nil {
		return err
	}
	if err := s.watchlist.Remove(ctx, userID, ticker); err != nil {
		return err
	}
	if s.canceller != nil {
		s.canceller.CancelTicker(userID, ticker)
	}
	return nil
}
