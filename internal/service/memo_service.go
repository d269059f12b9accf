package service

import (
	"context"
	"fmt"
	"time"

	"project-chimera/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type MemoRepository interface {
	InsertMemo(ctx context.Context, memo domain.InvestmentMemo) (*domain.InvestmentMemo, error)
	ListMemos(ctx context.Context, filter domain.MemoFilter) ([]domain.InvestmentMemo, error)
	GetMemo(ctx context.Context, id, userID int64) (*domain.InvestmentMemo, error)
	Decide(ctx context.Context, id, userID int64, decision domain.MemoStatus, notes string) (*domain.InvestmentMemo, error)
	DeleteMemo(ctx context.Context, id, userID int64) error
	CleanupPending(ctx context.Context, userID int64, olderThan time.Duration) (int64, error)
}

type MemoService struct {
	memos            MemoRepository
	pendingThreshold time.Duration
	tracer           trace.Tracer
}

func NewMemoService(memos MemoRepository, pendingThreshold time.Duration, tracer trace.Tracer) *MemoService {
	if pendingThreshold <= 0 {
		pendingThreshold = 30 * time.Minute
	}
	return &MemoService{memos: memos, pendingThreshold: pendingThreshold, tracer: tracer}
}

func (s *MemoService) List(ctx context.Context, filter domain.MemoFilter) ([]domain.InvestmentMemo, error) {
	ctx, span := s.tracer.Start(ctx, "memo-service.list")
	defer span.End()

	if filter.Ticker != "" {
		ticker, err := domain.NormalizeTicker(filter.Ticker)
		if err != nil {
			return nil, err
		}
		filter.Ticker = ticker
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("unknown memo status %q", filter.Status)
	}
	return s.memos.ListMemos(ctx, filter)
}

func (s *MemoService) Get(ctx context.Context, id, userID int64) (*domain.InvestmentMemo, error) {
	ctx, span := s.tracer.Start(ctx, "memo-service.get")
	defer span.End()

	memo, err := s.memos.GetMemo(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if memo == nil {
		return nil, domain.ErrNotFound
	}
	return memo, nil
}

// Decide applies the one-shot approve/reject gate. Re-deciding surfaces as a
// conflict from the repository.
func (s *MemoService) Decide(ctx context.Context, id, userID int64, decision domain.MemoStatus, notes string) (*domain.InvestmentMemo, error) {
	ctx, span := s.tracer.Start(ctx, "memo-service.decide")
	defer span.End()

	if !decision.IsDecided() {
		return nil, fmt.Errorf("decision must be %s or %s", domain.MemoApproved, domain.MemoRejected)
	}
	return s.memos.Decide(ctx, id, userID, decision, notes)
}

func (s *MemoService) Delete(ctx context.Context, id, userID int64) error {
	ctx, span := s.tracer.Start(ctx, "memo-service.delete")
	defer span.End()

	return s.memos.DeleteMemo(ctx, id, userID)
}

// CleanupPending auto-rejects memos that sat undecided past the threshold.
func (s *MemoService) CleanupPending(ctx context.Context, userID int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "memo-service.cleanup-pending")
	defer span.End()

	return s.memos.CleanupPending(ctx, userID, s.pendingThreshold)
}
