package mcp

import (
	"fmt"
	"strings"

	"project-chimera/internal/domain"
)

const (
	defaultMemoLimit = 50
	maxMemoLimit     = 200
)

type memosListInput struct {
	Ticker string `json:"ticker,omitempty" jsonschema:"optional ticker symbol (e.g. AAPL, MSFT)"`
	Status string `json:"status,omitempty" jsonschema:"optional memo status: pending, approved, rejected"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of memos to return, max 200"`
}

type memosListOutput struct {
	Memos []domain.InvestmentMemo `json:"memos"`
}

type memosGetInput struct {
	ID int64 `json:"id" jsonschema:"memo identifier"`
}

type memosGetOutput struct {
	Memo *domain.InvestmentMemo `json:"memo"`
}

type memosDecideInput struct {
	ID       int64  `json:"id" jsonschema:"memo identifier"`
	Decision string `json:"decision" jsonschema:"decision to record: approved or rejected"`
	Notes    string `json:"notes,omitempty" jsonschema:"optional free-form decision notes"`
}

type memosDecideOutput struct {
	Memo *domain.InvestmentMemo `json:"memo"`
}

type watchlistListInput struct{}

type watchlistListOutput struct {
	Tickers  []string `json:"tickers"`
	Capacity int      `json:"capacity"`
}

type watchlistAddInput struct {
	Ticker string `json:"ticker" jsonschema:"ticker symbol to track (e.g. AAPL)"`
}

type watchlistAddOutput struct {
	Ticker string `json:"ticker"`
}

type watchlistRemoveInput struct {
	Ticker string `json:"ticker" jsonschema:"ticker symbol to stop tracking"`
}

type watchlistRemoveOutput struct {
	Removed bool `json:"removed"`
}

type analysisStartInput struct {
	Ticker string `json:"ticker" jsonschema:"ticker symbol to analyze (e.g. AAPL)"`
	Mode   string `json:"mode,omitempty" jsonschema:"analysis mode: basic or enhanced, defaults to basic"`
}

type analysisStartOutput struct {
	Run *domain.AnalysisRun `json:"run"`
}

type analysisStatusInput struct {
	RunID int64 `json:"run_id" jsonschema:"analysis run identifier"`
}

type analysisStatusOutput struct {
	Run *domain.AnalysisRun `json:"run"`
}

func normalizeMemoLimit(limit int) int {
	if limit <= 0 {
		return defaultMemoLimit
	}
	if limit > maxMemoLimit {
		return maxMemoLimit
	}
	return limit
}

func normalizeMemoStatus(status string) (domain.MemoStatus, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return "", nil
	}
	switch s := domain.MemoStatus(status); s {
	case domain.MemoPending, domain.MemoApproved, domain.MemoRejected:
		return s, nil
	default:
		return "", fmt.Errorf("unsupported status: %s", status)
	}
}

func normalizeDecision(decision string) (domain.MemoStatus, error) {
	switch s := domain.MemoStatus(strings.ToLower(strings.TrimSpace(decision))); s {
	case domain.MemoApproved, domain.MemoRejected:
		return s, nil
	default:
		return "", fmt.Errorf("decision must be approved or rejected")
	}
}

func normalizeMode(mode string) (domain.AnalysisMode, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return domain.ModeBasic, nil
	}
	switch m := domain.AnalysisMode(mode); m {
	case domain.ModeBasic, domain.ModeEnhanced:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", mode)
	}
}

func normalizeMemoFilter(userID int64, in memosListInput) (domain.MemoFilter, error) {
	filter := domain.MemoFilter{UserID: userID, Limit: normalizeMemoLimit(in.Limit)}

	if strings.TrimSpace(in.Ticker) != "" {
		ticker, err := domain.NormalizeTicker(in.Ticker)
		if err != nil {
			return domain.MemoFilter{}, err
		}
		filter.Ticker = ticker
	}

	status, err := normalizeMemoStatus(in.Status)
	if err != nil {
		return domain.MemoFilter{}, err
	}
	filter.Status = status

	return filter, nil
}
