package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"project-chimera/internal/domain"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type stubMemoService struct {
	memos map[int64]domain.InvestmentMemo

	lastFilter   domain.MemoFilter
	lastDecision domain.MemoStatus
	lastNotes    string
}

func (s *stubMemoService) List(ctx context.Context, filter domain.MemoFilter) ([]domain.InvestmentMemo, error) {
	s.lastFilter = filter
	var out []domain.InvestmentMemo
	for _, m := range s.memos {
		if filter.Ticker != "" && m.Ticker != filter.Ticker {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *stubMemoService) Get(ctx context.Context, id, userID int64) (*domain.InvestmentMemo, error) {
	m, ok := s.memos[id]
	if !ok || m.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s *stubMemoService) Decide(ctx context.Context, id, userID int64, decision domain.MemoStatus, notes string) (*domain.InvestmentMemo, error) {
	m, ok := s.memos[id]
	if !ok || m.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if m.Status != domain.MemoPending {
		return nil, domain.ErrConflict
	}
	s.lastDecision = decision
	s.lastNotes = notes
	m.Status = decision
	m.DecisionNotes = notes
	s.memos[id] = m
	return &m, nil
}

type stubWatchlistService struct {
	tickers []string
	removed []string
}

func (s *stubWatchlistService) List(ctx context.Context, userID int64) ([]string, error) {
	return append([]string(nil), s.tickers...), nil
}

func (s *stubWatchlistService) Add(ctx context.Context, userID int64, rawTicker string) (string, error) {
	ticker, err := domain.NormalizeTicker(rawTicker)
	if err != nil {
		return "", err
	}
	s.tickers = append(s.tickers, ticker)
	return ticker, nil
}

func (s *stubWatchlistService) Remove(ctx context.Context, userID int64, rawTicker string) error {
	ticker, err := domain.NormalizeTicker(rawTicker)
	if err != nil {
		return err
	}
	s.removed = append(s.removed, ticker)
	return nil
}

type stubAnalysisService struct {
	runs map[int64]domain.AnalysisRun

	lastTicker string
	lastMode   domain.AnalysisMode
}

func (s *stubAnalysisService) Generate(ctx context.Context, userID int64, rawTicker string, mode domain.AnalysisMode) (*domain.AnalysisRun, error) {
	ticker, err := domain.NormalizeTicker(rawTicker)
	if err != nil {
		return nil, fmt.Errorf("normalize ticker: %w", err)
	}
	s.lastTicker = ticker
	s.lastMode = mode
	run := domain.AnalysisRun{ID: 99, UserID: userID, Ticker: ticker, Mode: mode, State: domain.RunQueued, StartedAt: time.Unix(0, 0).UTC()}
	return &run, nil
}

func (s *stubAnalysisService) GetRun(ctx context.Context, id, userID int64) (*domain.AnalysisRun, error) {
	run, ok := s.runs[id]
	if !ok || run.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

func testServer() (*sdkmcp.Server, *stubMemoService, *stubWatchlistService, *stubAnalysisService) {
	confidence := 70.0
	memos := &stubMemoService{
		memos: map[int64]domain.InvestmentMemo{
			1: {
				ID: 1, UserID: 7, Ticker: "AAPL", Mode: domain.ModeBasic,
				Recommendation: domain.RecommendationBuy, ConfidencePct: &confidence,
				Status: domain.MemoPending, CreatedAt: time.Unix(0, 0).UTC(),
			},
		},
	}
	watchlist := &stubWatchlistService{tickers: []string{"AAPL", "MSFT"}}
	analysis := &stubAnalysisService{
		runs: map[int64]domain.AnalysisRun{
			5: {ID: 5, UserID: 7, Ticker: "AAPL", Mode: domain.ModeBasic, State: domain.RunCompleted, StartedAt: time.Unix(0, 0).UTC()},
		},
	}

	srv := NewServer(nil, memos, watchlist, analysis, ServerConfig{UserID: 7, RequestTimeout: time.Second})
	return srv, memos, watchlist, analysis
}

func connectInMemory(ctx context.Context, srv *sdkmcp.Server) (*sdkmcp.ClientSession, context.CancelFunc, error) {
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = srv.Run(runCtx, serverTransport) }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return session, cancel, nil
}

func decodeResourceJSON(result *sdkmcp.ReadResourceResult, out any) error {
	if len(result.Contents) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(result.Contents[0].Text), out)
}
