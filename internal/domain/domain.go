package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AnalysisMode string

const (
	ModeBasic    AnalysisMode = "basic"
	ModeEnhanced AnalysisMode = "enhanced"
)

func (m AnalysisMode) IsValid() bool {
	return m == ModeBasic || m == ModeEnhanced
}

// AnalysisRequest is the immutable trigger for one orchestration run.
type AnalysisRequest struct {
	Ticker      string       `json:"ticker"`
	Mode        AnalysisMode `json:"mode"`
	RequestedAt time.Time    `json:"requested_at"`
}

type AgentRole string

const (
	RoleFundamental      AgentRole = "fundamental"
	RoleTechnical        AgentRole = "technical"
	RoleSentiment        AgentRole = "sentiment"
	RoleBullResearcher   AgentRole = "bull_researcher"
	RoleBearResearcher   AgentRole = "bear_researcher"
	RoleRiskConservative AgentRole = "risk_conservative"
	RoleRiskAggressive   AgentRole = "risk_aggressive"
	RoleRiskNeutral      AgentRole = "risk_neutral"
	RoleChiefStrategist  AgentRole = "chief_strategist"
	RoleRiskManager      AgentRole = "risk_manager"
	RoleAuditor          AgentRole = "auditor"
)

var AllRoles = []AgentRole{
	RoleFundamental, RoleTechnical, RoleSentiment,
	RoleBullResearcher, RoleBearResearcher,
	RoleRiskConservative, RoleRiskAggressive, RoleRiskNeutral,
	RoleChiefStrategist, RoleRiskManager, RoleAuditor,
}

func (r AgentRole) IsValid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

type OutputStatus string

const (
	OutputOK       OutputStatus = "ok"
	OutputDegraded OutputStatus = "degraded"
)

// AgentOutput is one role's structured finding within a run. It is owned by
// the run that created it and never mutated afterwards.
type AgentOutput struct {
	ID         int64           `json:"id,omitempty"`
	Role       AgentRole       `json:"agent_role"`
	Ticker     string          `json:"ticker"`
	Status     OutputStatus    `json:"status"`
	Summary    string          `json:"summary"`
	Content    json.RawMessage `json:"content,omitempty"`
	ProducedAt time.Time       `json:"produced_at"`
}

type Recommendation string

const (
	RecommendationBuy  Recommendation = "Buy"
	RecommendationSell Recommendation = "Sell"
	RecommendationHold Recommendation = "Hold"
)

func (r Recommendation) IsValid() bool {
	return r == RecommendationBuy || r == RecommendationSell || r == RecommendationHold
}

type MemoStatus string

const (
	MemoPending  MemoStatus = "pending"
	MemoApproved MemoStatus = "approved"
	MemoRejected MemoStatus = "rejected"
)

func (s MemoStatus) IsValid() bool {
	return s == MemoPending || s == MemoApproved || s == MemoRejected
}

func (s MemoStatus) IsDecided() bool {
	return s == MemoApproved || s == MemoRejected
}

// InvestmentMemo is the assembled recommendation for one ticker and one run.
// ContributingOutputs is kept in pipeline stage order, not completion order,
// so the audit trail is stable across repeated runs.
type InvestmentMemo struct {
	ID                  int64          `json:"id"`
	UserID              int64          `json:"-"`
	Ticker              string         `json:"ticker"`
	Mode                AnalysisMode   `json:"mode"`
	Recommendation      Recommendation `json:"recommendation"`
	PositionSizePct     *float64       `json:"position_size_pct"`
	ConfidencePct       *float64       `json:"confidence_pct"`
	RiskScore           *float64       `json:"risk_score,omitempty"`
	ContributingOutputs []AgentOutput  `json:"contributing_outputs,omitempty"`
	Status              MemoStatus     `json:"status"`
	DecisionNotes       string         `json:"decision_notes,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	DecidedAt           *time.Time     `json:"decided_at"`
}

type MemoFilter struct {
	UserID int64
	Ticker string
	Status MemoStatus
	Limit  int
}

type RunState string

const (
	RunQueued        RunState = "queued"
	RunRetrieving    RunState = "retrieving"
	RunAnalyzing     RunState = "analyzing_parallel"
	RunDebating      RunState = "debating"
	RunSynthesizing  RunState = "synthesizing"
	RunRiskAssessing RunState = "risk_assessing"
	RunValidating    RunState = "validating"
	RunCompleted     RunState = "completed"
	RunFailed        RunState = "failed"
)

func (s RunState) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// AnalysisRun is the persisted handle for one orchestration run. Clients
// poll it instead of holding a connection open for the pipeline duration.
type AnalysisRun struct {
	ID         int64        `json:"id"`
	UserID     int64        `json:"-"`
	Ticker     string       `json:"ticker"`
	Mode       AnalysisMode `json:"mode"`
	State      RunState     `json:"state"`
	ErrorKind  string       `json:"error_kind,omitempty"`
	MemoID     *int64       `json:"memo_id,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// MarketSnapshot is the latest persisted price/fundamentals/news view for a
// ticker. The orchestrator only ever reads it.
type MarketSnapshot struct {
	Ticker           string    `json:"ticker"`
	Price            float64   `json:"price"`
	Change24hPct     float64   `json:"change_24h_pct"`
	MarketCap        float64   `json:"market_cap"`
	PERatio          float64   `json:"pe_ratio"`
	EPS              float64   `json:"eps"`
	RevenueGrowthPct float64   `json:"revenue_growth_pct"`
	High52w          float64   `json:"high_52w"`
	Low52w           float64   `json:"low_52w"`
	RSI14            float64   `json:"rsi_14"`
	MACD             float64   `json:"macd"`
	AvgVolume        float64   `json:"avg_volume"`
	NewsHeadlines    []string  `json:"news_headlines"`
	AsOf             time.Time `json:"as_of"`
}

// DeltaCard is a detected filing/price/news change for a ticker. Cards feed
// the delta entry point into the same analysis pipeline.
type DeltaCard struct {
	ID           int64     `json:"id"`
	Ticker       string    `json:"ticker"`
	Category     string    `json:"category"`
	Summary      string    `json:"summary"`
	WhyItMatters string    `json:"why_it_matters"`
	Metric       string    `json:"metric,omitempty"`
	OldValue     string    `json:"old_value,omitempty"`
	NewValue     string    `json:"new_value,omitempty"`
	Change       string    `json:"change,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
}

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FundName  string    `json:"fund_name"`
	CreatedAt time.Time `json:"created_at"`
}

// WatchlistCap is enforced at the write boundary, never inside the
// orchestrator.
const WatchlistCap = 20

const maxTickerLen = 10

// NormalizeTicker uppercases and validates a stock symbol.
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return "", fmt.Errorf("ticker cannot be empty")
	}
	if len(ticker) > maxTickerLen {
		return "", fmt.Errorf("ticker too long: %s", ticker)
	}
	for _, c := range ticker {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '.' && c != '-' {
			return "", fmt.Errorf("invalid ticker: %s", raw)
		}
	}
	return ticker, nil
}
