package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"project-chimera/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type RunRepository interface {
	InsertRun(ctx context.Context, run domain.AnalysisRun) (*domain.AnalysisRun, error)
	UpdateState(ctx context.Context, id int64, state domain.RunState) error
	MarkCompleted(ctx context.Context, id, memoID int64) error
	MarkFailed(ctx context.Context, id int64, errorKind string) error
	GetRun(ctx context.Context, id, userID int64) (*domain.AnalysisRun, error)
}

// Pipeline is the orchestrator surface the run manager drives.
type Pipeline interface {
	Run(ctx context.Context, req domain.AnalysisRequest, onState func(state domain.RunState)) (*domain.InvestmentMemo, error)
}

// RunEventSink receives every state transition of every run. The websocket
// hub implements it; a nil sink disables live updates.
type RunEventSink interface {
	Publish(userID, runID int64, ticker string, state domain.RunState, errorKind string)
}

// CompletionNotifier is told about finished memos. The Telegram digest
// implements it; delivery is fire-and-forget.
type CompletionNotifier interface {
	MemoCompleted(userID int64, memo domain.InvestmentMemo)
}

type activeRun struct {
	userID int64
	ticker string
	cancel context.CancelFunc
}

// AnalysisService accepts analysis requests, runs the pipeline in the
// background and persists the outcome. Requests return as soon as the run
// row exists; clients poll or subscribe for progress.
type AnalysisService struct {
	runs      RunRepository
	memos     MemoRepository
	watchlist WatchlistRepository
	pipeline  Pipeline
	events    RunEventSink
	notifier  CompletionNotifier
	tracer    trace.Tracer

	mu     sync.Mutex
	active map[int64]*activeRun
	wg     sync.WaitGroup
}

func NewAnalysisService(runs RunRepository, memos MemoRepository, watchlist WatchlistRepository, pipeline Pipeline, events RunEventSink, notifier CompletionNotifier, tracer trace.Tracer) *AnalysisService {
	return &AnalysisService{
		runs:      runs,
		memos:     memos,
		watchlist: watchlist,
		pipeline:  pipeline,
		events:    events,
		notifier:  notifier,
		tracer:    tracer,
		active:    make(map[int64]*activeRun),
	}
}

// Generate starts one background run and returns its queued row.
func (s *AnalysisService) Generate(ctx context.Context, userID int64, rawTicker string, mode domain.AnalysisMode) (*domain.AnalysisRun, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.generate")
	defer span.End()

	ticker, err := domain.NormalizeTicker(rawTicker)
	if err != nil {
		return nil, err
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown analysis mode %q", mode)
	}

	run, err := s.runs.InsertRun(ctx, domain.AnalysisRun{
		UserID: userID,
		Ticker: ticker,
		Mode:   mode,
		State:  domain.RunQueued,
	})
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[run.ID] = &activeRun{userID: userID, ticker: ticker, cancel: cancel}
	s.mu.Unlock()

	s.publish(userID, run.ID, ticker, domain.RunQueued, "")
	s.wg.Add(1)
	go s.execute(runCtx, *run)
	return run, nil
}

// GenerateAll starts a run for every watchlist ticker that has no memo from
// today. Returns the started runs and the skipped tickers.
func (s *AnalysisService) GenerateAll(ctx context.Context, userID int64, mode domain.AnalysisMode) ([]*domain.AnalysisRun, []string, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.generate-all")
	defer span.End()

	tickers, err := s.watchlist.List(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	var runs []*domain.AnalysisRun
	var skipped []string
	for _, ticker := range tickers {
		fresh, err := s.hasMemoFromToday(ctx, userID, ticker)
		if err != nil {
			return runs, skipped, err
		}
		if fresh {
			skipped = append(skipped, ticker)
			continue
		}
		run, err := s.Generate(ctx, userID, ticker, mode)
		if err != nil {
			return runs, skipped, err
		}
		runs = append(runs, run)
	}
	return runs, skipped, nil
}

func (s *AnalysisService) GetRun(ctx context.Context, id, userID int64) (*domain.AnalysisRun, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.get-run")
	defer span.End()

	run, err := s.runs.GetRun(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.ErrNotFound
	}
	return run, nil
}

// Cancel stops a run the user owns. Returns false when the run is not
// active anymore.
func (s *AnalysisService) Cancel(userID, runID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.active[runID]
	if !ok || run.userID != userID {
		return false
	}
	run.cancel()
	return true
}

// CancelTicker stops every active run for the user's ticker.
func (s *AnalysisService) CancelTicker(userID int64, ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.active {
		if run.userID == userID && run.ticker == ticker {
			run.cancel()
		}
	}
}

// Wait blocks until every background run has finished. Used on shutdown.
func (s *AnalysisService) Wait() {
	s.wg.Wait()
}

func (s *AnalysisService) execute(ctx context.Context, run domain.AnalysisRun) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if active, ok := s.active[run.ID]; ok {
			active.cancel()
			delete(s.active, run.ID)
		}
		s.mu.Unlock()
	}()

	onState := func(state domain.RunState) {
		if err := s.runs.UpdateState(ctx, run.ID, state); err != nil {
			log.Printf("run %d: update state %s: %v", run.ID, state, err)
		}
		s.publish(run.UserID, run.ID, run.Ticker, state, "")
	}

	req := domain.AnalysisRequest{Ticker: run.Ticker, Mode: run.Mode, RequestedAt: run.StartedAt}
	memo, err := s.pipeline.Run(ctx, req, onState)
	if err != nil {
		kind := domain.ErrorKind(err)
		log.Printf("run %d (%s): failed with %s: %v", run.ID, run.Ticker, kind, err)
		if err := s.runs.MarkFailed(context.Background(), run.ID, kind); err != nil {
			log.Printf("run %d: mark failed: %v", run.ID, err)
		}
		s.publish(run.UserID, run.ID, run.Ticker, domain.RunFailed, kind)
		return
	}

	// Cancellation can land between the pipeline returning and persistence;
	// a cancelled run discards its memo.
	if ctx.Err() != nil {
		log.Printf("run %d (%s): cancelled before persist", run.ID, run.Ticker)
		if err := s.runs.MarkFailed(context.Background(), run.ID, domain.ErrorKindCancelled); err != nil {
			log.Printf("run %d: mark failed: %v", run.ID, err)
		}
		s.publish(run.UserID, run.ID, run.Ticker, domain.RunFailed, domain.ErrorKindCancelled)
		return
	}

	memo.UserID = run.UserID
	saved, err := s.memos.InsertMemo(context.Background(), *memo)
	if err != nil {
		log.Printf("run %d (%s): persist memo: %v", run.ID, run.Ticker, err)
		if err := s.runs.MarkFailed(context.Background(), run.ID, domain.ErrorKindInternal); err != nil {
			log.Printf("run %d: mark failed: %v", run.ID, err)
		}
		s.publish(run.UserID, run.ID, run.Ticker, domain.RunFailed, domain.ErrorKindInternal)
		return
	}
	if err := s.runs.MarkCompleted(context.Background(), run.ID, saved.ID); err != nil {
		log.Printf("run %d: mark completed: %v", run.ID, err)
	}
	s.publish(run.UserID, run.ID, run.Ticker, domain.RunCompleted, "")
	if s.notifier != nil {
		go s.notifier.MemoCompleted(run.UserID, *saved)
	}
}

func (s *AnalysisService) publish(userID, runID int64, ticker string, state domain.RunState, errorKind string) {
	if s.events != nil {
		s.events.Publish(userID, runID, ticker, state, errorKind)
	}
}

func (s *AnalysisService) hasMemoFromToday(ctx context.Context, userID int64, ticker string) (bool, error) {
	memos, err := s.memos.ListMemos(ctx, domain.MemoFilter{UserID: userID, Ticker: ticker, Limit: 1})
	if err != nil {
		return false, err
	}
	if len(memos) == 0 {
		return false, nil
	}
	now := time.Now().UTC()
	created := memos[0].CreatedAt.UTC()
	return created.Year() == now.Year() && created.YearDay() == now.YearDay(), nil
}
