package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"project-chimera/internal/agent"
	"project-chimera/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubSnapshots struct {
	snapshots map[string]*domain.MarketSnapshot
	err       error
}

func (s *stubSnapshots) Snapshot(ctx context.Context, ticker string) (*domain.MarketSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshots[ticker], nil
}

type stubInvoker struct {
	mu sync.Mutex

	analyzeErr    map[domain.AgentRole]error
	riskFlags     map[domain.AgentRole]bool
	debateErr     map[domain.AgentRole]error
	synthesizeErr error
	riskErr       map[domain.AgentRole]error
	riskScores    map[domain.AgentRole]float64
	auditErr      error
	recommend     string

	onAnalyze func()
	onAudit   func()
	calls     []string
	lastPrior *agent.StrategistDecision
}

func (s *stubInvoker) record(what string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, what)
}

func (s *stubInvoker) Analyze(ctx context.Context, role domain.AgentRole, snapshot domain.MarketSnapshot) (agent.AnalystFinding, error) {
	s.record("analyze:" + string(role))
	if s.onAnalyze != nil {
		s.onAnalyze()
	}
	if err := s.analyzeErr[role]; err != nil {
		return agent.AnalystFinding{}, err
	}
	return agent.AnalystFinding{
		Thesis:     string(role) + " thesis",
		Stance:     "bullish",
		Confidence: 70,
		RiskFlag:   s.riskFlags[role],
	}, nil
}

func (s *stubInvoker) Debate(ctx context.Context, role domain.AgentRole, ticker string, findings map[domain.AgentRole]agent.AnalystFinding, transcript []agent.DebateArgument) (agent.DebateArgument, error) {
	s.record("debate:" + string(role))
	if err := s.debateErr[role]; err != nil {
		return agent.DebateArgument{}, err
	}
	position := "bull"
	if role == domain.RoleBearResearcher {
		position = "bear"
	}
	return agent.DebateArgument{
		Position:   position,
		Argument:   fmt.Sprintf("%s argument %d", position, len(transcript)),
		Conviction: 60,
	}, nil
}

func (s *stubInvoker) Synthesize(ctx context.Context, ticker string, findings map[domain.AgentRole]agent.AnalystFinding, transcript []agent.DebateArgument, prior *agent.StrategistDecision) (agent.StrategistDecision, error) {
	s.record("synthesize")
	s.mu.Lock()
	s.lastPrior = prior
	s.mu.Unlock()
	if s.synthesizeErr != nil {
		return agent.StrategistDecision{}, s.synthesizeErr
	}
	recommend := s.recommend
	if recommend == "" {
		recommend = "Buy"
	}
	return agent.StrategistDecision{
		Recommendation:      recommend,
		Rationale:           "analysts agree",
		ConfidencePct:       74,
		TargetAllocationPct: 6,
	}, nil
}

func (s *stubInvoker) AssessRisk(ctx context.Context, role domain.AgentRole, ticker string, decision agent.StrategistDecision, findings map[domain.AgentRole]agent.AnalystFinding) (agent.RiskAssessment, error) {
	s.record("risk:" + string(role))
	if err := s.riskErr[role]; err != nil {
		return agent.RiskAssessment{}, err
	}
	perspective := map[domain.AgentRole]string{
		domain.RoleRiskConservative: "conservative",
		domain.RoleRiskAggressive:   "aggressive",
		domain.RoleRiskNeutral:      "neutral",
		domain.RoleRiskManager:      "sole",
	}[role]
	score := 4.0
	if s.riskScores != nil {
		if v, ok := s.riskScores[role]; ok {
			score = v
		}
	}
	return agent.RiskAssessment{Perspective: perspective, RiskScore: score, PositionSizePct: 8}, nil
}

func (s *stubInvoker) Audit(ctx context.Context, ticker string, decision agent.StrategistDecision, risk agent.RiskAssessment, findings map[domain.AgentRole]agent.AnalystFinding) (agent.AuditReport, error) {
	s.record("audit")
	if s.onAudit != nil {
		s.onAudit()
	}
	if s.auditErr != nil {
		return agent.AuditReport{}, s.auditErr
	}
	return agent.AuditReport{Approved: true, QualityScore: 90}, nil
}

func testSnapshots() *stubSnapshots {
	return &stubSnapshots{snapshots: map[string]*domain.MarketSnapshot{
		"AAPL": {Ticker: "AAPL", Price: 189.5},
	}}
}

func newTestOrchestrator(inv AgentInvoker, snaps SnapshotSource) *Orchestrator {
	return New(inv, snaps, trace.NewNoopTracerProvider().Tracer("test"), Options{
		EnableResearchDebate: true,
		EnableRiskDebate:     true,
		DebateRounds:         2,
		MaxPositionPct:       10,
	})
}

func roleSequence(outputs []domain.AgentOutput) []domain.AgentRole {
	roles := make([]domain.AgentRole, len(outputs))
	for i, o := range outputs {
		roles[i] = o.Role
	}
	return roles
}

func TestRunBasicWalksStatesInOrder(t *testing.T) {
	o := newTestOrchestrator(&stubInvoker{}, testSnapshots())

	var states []domain.RunState
	memo, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic},
		func(s domain.RunState) { states = append(states, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStates := []domain.RunState{
		domain.RunRetrieving, domain.RunAnalyzing, domain.RunSynthesizing,
		domain.RunRiskAssessing, domain.RunValidating,
	}
	if len(states) != len(wantStates) {
		t.Fatalf("expected states %v, got %v", wantStates, states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Fatalf("expected states %v, got %v", wantStates, states)
		}
	}

	wantRoles := []domain.AgentRole{
		domain.RoleFundamental, domain.RoleTechnical, domain.RoleSentiment,
		domain.RoleChiefStrategist, domain.RoleRiskManager, domain.RoleAuditor,
	}
	got := roleSequence(memo.ContributingOutputs)
	if len(got) != len(wantRoles) {
		t.Fatalf("expected roles %v, got %v", wantRoles, got)
	}
	for i := range wantRoles {
		if got[i] != wantRoles[i] {
			t.Fatalf("expected roles %v, got %v", wantRoles, got)
		}
	}
	if memo.Status != domain.MemoPending {
		t.Fatalf("expected pending memo, got %s", memo.Status)
	}
}

func TestRunEnhancedAddsDebateAndRiskPerspectives(t *testing.T) {
	o := newTestOrchestrator(&stubInvoker{}, testSnapshots())

	var states []domain.RunState
	memo, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeEnhanced},
		func(s domain.RunState) { states = append(states, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sawDebating := false
	for _, s := range states {
		if s == domain.RunDebating {
			sawDebating = true
		}
	}
	if !sawDebating {
		t.Fatal("expected a debating state in enhanced mode")
	}

	wantRoles := []domain.AgentRole{
		domain.RoleFundamental, domain.RoleTechnical, domain.RoleSentiment,
		domain.RoleBullResearcher, domain.RoleBearResearcher,
		domain.RoleBullResearcher, domain.RoleBearResearcher,
		domain.RoleChiefStrategist,
		domain.RoleRiskConservative, domain.RoleRiskAggressive, domain.RoleRiskNeutral,
		domain.RoleAuditor,
	}
	got := roleSequence(memo.ContributingOutputs)
	if len(got) != len(wantRoles) {
		t.Fatalf("expected roles %v, got %v", wantRoles, got)
	}
	for i := range wantRoles {
		if got[i] != wantRoles[i] {
			t.Fatalf("expected roles %v, got %v", wantRoles, got)
		}
	}
}

func TestRunOutputOrderIsDeterministic(t *testing.T) {
	o := newTestOrchestrator(&stubInvoker{}, testSnapshots())
	req := domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeEnhanced}

	first, err := o.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		memo, err := o.Run(context.Background(), req, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a, b := roleSequence(first.ContributingOutputs), roleSequence(memo.ContributingOutputs)
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("output order changed between runs: %v vs %v", a, b)
			}
		}
	}
}

func TestRunUnknownTickerFailsWithDataUnavailable(t *testing.T) {
	o := newTestOrchestrator(&stubInvoker{}, testSnapshots())

	_, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "ZZZZ", Mode: domain.ModeBasic}, nil)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable, got %v", err)
	}
}

func TestRunAnalystTimeoutDegradesSlot(t *testing.T) {
	inv := &stubInvoker{analyzeErr: map[domain.AgentRole]error{
		domain.RoleTechnical: fmt.Errorf("technical exceeded deadline: %w", domain.ErrAgentTimeout),
	}}
	o := newTestOrchestrator(inv, testSnapshots())

	memo, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}, nil)
	if err != nil {
		t.Fatalf("expected run to survive one degraded analyst, got %v", err)
	}
	var technical *domain.AgentOutput
	for i := range memo.ContributingOutputs {
		if memo.ContributingOutputs[i].Role == domain.RoleTechnical {
			technical = &memo.ContributingOutputs[i]
		}
	}
	if technical == nil || technical.Status != domain.OutputDegraded {
		t.Fatalf("expected degraded technical slot, got %+v", technical)
	}
}

func TestRunAllAnalystsFailedIsTerminal(t *testing.T) {
	boom := errors.New("boom")
	inv := &stubInvoker{analyzeErr: map[domain.AgentRole]error{
		domain.RoleFundamental: boom,
		domain.RoleTechnical:   boom,
		domain.RoleSentiment:   boom,
	}}
	o := newTestOrchestrator(inv, testSnapshots())

	_, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}, nil)
	if err == nil {
		t.Fatal("expected terminal failure when every analyst fails")
	}
}

func TestRunBasicRiskManagerFailureIsTerminal(t *testing.T) {
	inv := &stubInvoker{riskErr: map[domain.AgentRole]error{
		domain.RoleRiskManager: fmt.Errorf("risk manager exceeded deadline: %w", domain.ErrAgentTimeout),
	}}
	o := newTestOrchestrator(inv, testSnapshots())

	_, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}, nil)
	if !errors.Is(err, domain.ErrAgentTimeout) {
		t.Fatalf("expected agent timeout, got %v", err)
	}
}

func TestRunEnhancedSurvivesOneRiskPerspectiveFailure(t *testing.T) {
	inv := &stubInvoker{riskErr: map[domain.AgentRole]error{
		domain.RoleRiskAggressive: errors.New("boom"),
	}}
	o := newTestOrchestrator(inv, testSnapshots())

	memo, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeEnhanced}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if memo.RiskScore == nil || *memo.RiskScore != 4.0 {
		t.Fatalf("expected neutral risk score to bind, got %v", memo.RiskScore)
	}
}

func TestRunRiskFlagDowngradesBuyToHold(t *testing.T) {
	inv := &stubInvoker{riskFlags: map[domain.AgentRole]bool{domain.RoleSentiment: true}}
	o := newTestOrchestrator(inv, testSnapshots())

	memo, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if memo.Recommendation != domain.RecommendationHold {
		t.Fatalf("expected Hold after risk flag, got %s", memo.Recommendation)
	}
}

func TestRunSellIsNotDowngraded(t *testing.T) {
	inv := &stubInvoker{recommend: "Sell", riskFlags: map[domain.AgentRole]bool{domain.RoleSentiment: true}}
	o := newTestOrchestrator(inv, testSnapshots())

	memo, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if memo.Recommendation != domain.RecommendationSell {
		t.Fatalf("expected Sell to stand, got %s", memo.Recommendation)
	}
}

func TestRunPositionSizeIsCapped(t *testing.T) {
	o := New(&stubInvoker{}, testSnapshots(), trace.NewNoopTracerProvider().Tracer("test"), Options{MaxPositionPct: 5})

	memo, err := o.Run(context.Background(), domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if memo.PositionSizePct == nil || *memo.PositionSizePct != 5 {
		t.Fatalf("expected capped position size 5, got %v", memo.PositionSizePct)
	}
}

func TestRunMemoryFeedsPriorDecision(t *testing.T) {
	inv := &stubInvoker{}
	o := New(inv, testSnapshots(), trace.NewNoopTracerProvider().Tracer("test"), Options{EnableMemory: true})
	req := domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}

	if _, err := o.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.lastPrior != nil {
		t.Fatalf("expected no prior on first run, got %+v", inv.lastPrior)
	}

	if _, err := o.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.lastPrior == nil || inv.lastPrior.Recommendation != "Buy" {
		t.Fatalf("expected first decision as prior, got %+v", inv.lastPrior)
	}
}

func TestRunMemoryDisabledByDefault(t *testing.T) {
	inv := &stubInvoker{}
	o := newTestOrchestrator(inv, testSnapshots())
	req := domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}

	for i := 0; i < 2; i++ {
		if _, err := o.Run(context.Background(), req, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inv.lastPrior != nil {
		t.Fatalf("expected no prior with memory disabled, got %+v", inv.lastPrior)
	}
}

func TestRunCancellationStopsPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := &stubInvoker{onAnalyze: cancel}
	o := newTestOrchestrator(inv, testSnapshots())

	_, err := o.Run(ctx, domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeEnhanced}, nil)
	if !errors.Is(err, domain.ErrRunCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	for _, call := range inv.calls {
		if call == "synthesize" {
			t.Fatal("pipeline continued past cancellation")
		}
	}
}

func TestRunCancelledDuringAuditReturnsNoMemo(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := &stubInvoker{onAudit: cancel}
	o := newTestOrchestrator(inv, testSnapshots())

	memo, err := o.Run(ctx, domain.AnalysisRequest{Ticker: "AAPL", Mode: domain.ModeBasic}, nil)
	if !errors.Is(err, domain.ErrRunCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if memo != nil {
		t.Fatalf("cancelled run must not return a memo, got %+v", memo)
	}
}

func TestCombineRiskConservativeOverride(t *testing.T) {
	byPerspective := map[domain.AgentRole]agent.RiskAssessment{
		domain.RoleRiskNeutral:      {Perspective: "neutral", RiskScore: 4, PositionSizePct: 8},
		domain.RoleRiskConservative: {Perspective: "conservative", RiskScore: 6.5, PositionSizePct: 3},
		domain.RoleRiskAggressive:   {Perspective: "aggressive", RiskScore: 5.5, PositionSizePct: 15},
	}
	winner := combineRisk(byPerspective)
	if winner.Perspective != "conservative" {
		t.Fatalf("expected conservative override, got %s", winner.Perspective)
	}

	byPerspective[domain.RoleRiskAggressive] = agent.RiskAssessment{Perspective: "aggressive", RiskScore: 3, PositionSizePct: 15}
	winner = combineRisk(byPerspective)
	if winner.Perspective != "neutral" {
		t.Fatalf("expected neutral to bind on disagreement, got %s", winner.Perspective)
	}
}
