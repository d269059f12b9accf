package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"project-chimera/internal/agent"
	"project-chimera/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// AgentInvoker runs one agent role to a validated structured payload.
type AgentInvoker interface {
	Analyze(ctx context.Context, role domain.AgentRole, snapshot domain.MarketSnapshot) (agent.AnalystFinding, error)
	Debate(ctx context.Context, role domain.AgentRole, ticker string, findings map[domain.AgentRole]agent.AnalystFinding, transcript []agent.DebateArgument) (agent.DebateArgument, error)
	Synthesize(ctx context.Context, ticker string, findings map[domain.AgentRole]agent.AnalystFinding, transcript []agent.DebateArgument, prior *agent.StrategistDecision) (agent.StrategistDecision, error)
	AssessRisk(ctx context.Context, role domain.AgentRole, ticker string, decision agent.StrategistDecision, findings map[domain.AgentRole]agent.AnalystFinding) (agent.RiskAssessment, error)
	Audit(ctx context.Context, ticker string, decision agent.StrategistDecision, risk agent.RiskAssessment, findings map[domain.AgentRole]agent.AnalystFinding) (agent.AuditReport, error)
}

// SnapshotSource supplies the market data a run analyzes. A nil snapshot
// means no data has been ingested for the ticker.
type SnapshotSource interface {
	Snapshot(ctx context.Context, ticker string) (*domain.MarketSnapshot, error)
}

type Options struct {
	// EnableMemory keeps the last strategist decision per ticker in process
	// and feeds it to the next synthesis for that ticker.
	EnableMemory         bool
	EnableResearchDebate bool
	EnableRiskDebate     bool
	DebateRounds         int
	MaxPositionPct       float64
}

// Progress is called on every state transition. Callers use it to persist
// run state and push live updates.
type Progress = func(state domain.RunState)

type Orchestrator struct {
	invoker   AgentInvoker
	snapshots SnapshotSource
	tracer    trace.Tracer
	opts      Options

	memoryMu sync.Mutex
	memory   map[string]agent.StrategistDecision
}

func New(invoker AgentInvoker, snapshots SnapshotSource, tracer trace.Tracer, opts Options) *Orchestrator {
	if opts.DebateRounds <= 0 {
		opts.DebateRounds = 2
	}
	if opts.MaxPositionPct <= 0 {
		opts.MaxPositionPct = 10
	}
	o := &Orchestrator{invoker: invoker, snapshots: snapshots, tracer: tracer, opts: opts}
	if opts.EnableMemory {
		o.memory = make(map[string]agent.StrategistDecision)
	}
	return o
}

var analystRoles = []domain.AgentRole{domain.RoleFundamental, domain.RoleTechnical, domain.RoleSentiment}

var riskPerspectives = []domain.AgentRole{domain.RoleRiskConservative, domain.RoleRiskAggressive, domain.RoleRiskNeutral}

// Run drives one analysis from retrieval to a draft memo. The returned memo
// carries contributing outputs in pipeline stage order regardless of which
// goroutine finished first. The caller owns persistence.
func (o *Orchestrator) Run(ctx context.Context, req domain.AnalysisRequest, onState Progress) (*domain.InvestmentMemo, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	if onState == nil {
		onState = func(domain.RunState) {}
	}

	// Retrieving
	onState(domain.RunRetrieving)
	snap, err := o.snapshots.Snapshot(ctx, req.Ticker)
	if err != nil {
		return nil, fmt.Errorf("retrieve snapshot for %s: %w", req.Ticker, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("no market data for %s: %w", req.Ticker, domain.ErrDataUnavailable)
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	// AnalyzingParallel
	onState(domain.RunAnalyzing)
	findings, analystOutputs, err := o.runAnalysts(ctx, *snap)
	if err != nil {
		return nil, err
	}
	outputs := analystOutputs
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	// Debating (enhanced mode only)
	var transcript []agent.DebateArgument
	if req.Mode == domain.ModeEnhanced && o.opts.EnableResearchDebate {
		onState(domain.RunDebating)
		var debateOutputs []domain.AgentOutput
		transcript, debateOutputs, err = o.runDebate(ctx, req.Ticker, findings)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, debateOutputs...)
	}

	// Synthesizing
	onState(domain.RunSynthesizing)
	decision, err := o.invoker.Synthesize(ctx, req.Ticker, findings, transcript, o.recallDecision(req.Ticker))
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}
	decision = applyRiskFlagGuard(decision, findings)
	o.rememberDecision(req.Ticker, decision)
	outputs = append(outputs, makeOutput(domain.RoleChiefStrategist, req.Ticker, domain.OutputOK, decision.Rationale, decision))
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	// RiskAssessing
	onState(domain.RunRiskAssessing)
	risk, riskOutputs, err := o.runRisk(ctx, req, decision, findings)
	if err != nil {
		return nil, err
	}
	outputs = append(outputs, riskOutputs...)
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	// Validating
	onState(domain.RunValidating)
	outputs = append(outputs, o.runAudit(ctx, req.Ticker, decision, risk, findings))
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	positionSize := risk.PositionSizePct
	if positionSize > o.opts.MaxPositionPct {
		positionSize = o.opts.MaxPositionPct
	}
	confidence := decision.ConfidencePct
	riskScore := risk.RiskScore
	memo := &domain.InvestmentMemo{
		Ticker:              req.Ticker,
		Mode:                req.Mode,
		Recommendation:      domain.Recommendation(decision.Recommendation),
		PositionSizePct:     &positionSize,
		ConfidencePct:       &confidence,
		RiskScore:           &riskScore,
		ContributingOutputs: outputs,
		Status:              domain.MemoPending,
	}
	return memo, nil
}

// runAnalysts fans the three analyst roles out concurrently. A failed role
// degrades its slot; the stage only fails when no role produced a finding or
// the run was cancelled.
func (o *Orchestrator) runAnalysts(ctx context.Context, snap domain.MarketSnapshot) (map[domain.AgentRole]agent.AnalystFinding, []domain.AgentOutput, error) {
	type analystResult struct {
		finding agent.AnalystFinding
		err     error
	}
	results := make([]analystResult, len(analystRoles))

	var wg sync.WaitGroup
	for i, role := range analystRoles {
		wg.Add(1)
		go func(i int, role domain.AgentRole) {
			defer wg.Done()
			finding, err := o.invoker.Analyze(ctx, role, snap)
			results[i] = analystResult{finding: finding, err: err}
		}(i, role)
	}
	wg.Wait()

	if err := checkCancelled(ctx); err != nil {
		return nil, nil, err
	}

	findings := make(map[domain.AgentRole]agent.AnalystFinding, len(analystRoles))
	outputs := make([]domain.AgentOutput, 0, len(analystRoles))
	var firstErr error
	for i, role := range analystRoles {
		res := results[i]
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			outputs = append(outputs, makeOutput(role, snap.Ticker, domain.OutputDegraded, res.err.Error(), nil))
			continue
		}
		findings[role] = res.finding
		outputs = append(outputs, makeOutput(role, snap.Ticker, domain.OutputOK, res.finding.Thesis, res.finding))
	}
	if len(findings) == 0 {
		return nil, nil, fmt.Errorf("all analysts failed: %w", firstErr)
	}
	return findings, outputs, nil
}

// runDebate alternates bull and bear for the configured rounds. The debate
// is strictly sequential so each side sees the other's latest argument. A
// failed debater degrades its slot and ends the debate early.
func (o *Orchestrator) runDebate(ctx context.Context, ticker string, findings map[domain.AgentRole]agent.AnalystFinding) ([]agent.DebateArgument, []domain.AgentOutput, error) {
	var transcript []agent.DebateArgument
	var outputs []domain.AgentOutput

	for round := 0; round < o.opts.DebateRounds; round++ {
		for _, role := range []domain.AgentRole{domain.RoleBullResearcher, domain.RoleBearResearcher} {
			if err := checkCancelled(ctx); err != nil {
				return nil, nil, err
			}
			arg, err := o.invoker.Debate(ctx, role, ticker, findings, transcript)
			if err != nil {
				if isCancelled(err) {
					return nil, nil, err
				}
				outputs = append(outputs, makeOutput(role, ticker, domain.OutputDegraded, err.Error(), nil))
				return transcript, outputs, nil
			}
			transcript = append(transcript, arg)
			outputs = append(outputs, makeOutput(role, ticker, domain.OutputOK, arg.Argument, arg))
		}
	}
	return transcript, outputs, nil
}

// runRisk runs the single risk manager in basic mode and the three-way
// perspective debate in enhanced mode. Basic mode has no fallback, so any
// risk manager failure is terminal.
func (o *Orchestrator) runRisk(ctx context.Context, req domain.AnalysisRequest, decision agent.StrategistDecision, findings map[domain.AgentRole]agent.AnalystFinding) (agent.RiskAssessment, []domain.AgentOutput, error) {
	if req.Mode != domain.ModeEnhanced || !o.opts.EnableRiskDebate {
		assessment, err := o.invoker.AssessRisk(ctx, domain.RoleRiskManager, req.Ticker, decision, findings)
		if err != nil {
			return agent.RiskAssessment{}, nil, fmt.Errorf("risk assessment: %w", err)
		}
		out := makeOutput(domain.RoleRiskManager, req.Ticker, domain.OutputOK, riskSummary(assessment), assessment)
		return assessment, []domain.AgentOutput{out}, nil
	}

	type riskResult struct {
		assessment agent.RiskAssessment
		err        error
	}
	results := make([]riskResult, len(riskPerspectives))

	var wg sync.WaitGroup
	for i, role := range riskPerspectives {
		wg.Add(1)
		go func(i int, role domain.AgentRole) {
			defer wg.Done()
			assessment, err := o.invoker.AssessRisk(ctx, role, req.Ticker, decision, findings)
			results[i] = riskResult{assessment: assessment, err: err}
		}(i, role)
	}
	wg.Wait()

	if err := checkCancelled(ctx); err != nil {
		return agent.RiskAssessment{}, nil, err
	}

	byPerspective := make(map[domain.AgentRole]agent.RiskAssessment, len(riskPerspectives))
	outputs := make([]domain.AgentOutput, 0, len(riskPerspectives))
	var firstErr error
	for i, role := range riskPerspectives {
		res := results[i]
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			outputs = append(outputs, makeOutput(role, req.Ticker, domain.OutputDegraded, res.err.Error(), nil))
			continue
		}
		byPerspective[role] = res.assessment
		outputs = append(outputs, makeOutput(role, req.Ticker, domain.OutputOK, riskSummary(res.assessment), res.assessment))
	}
	if len(byPerspective) == 0 {
		return agent.RiskAssessment{}, nil, fmt.Errorf("all risk perspectives failed: %w", firstErr)
	}
	return combineRisk(byPerspective), outputs, nil
}

// combineRisk picks the binding assessment. The neutral view wins by
// default; when conservative and aggressive both disagree with it in the
// same direction by more than one point, the conservative view binds.
func combineRisk(byPerspective map[domain.AgentRole]agent.RiskAssessment) agent.RiskAssessment {
	neutral, hasNeutral := byPerspective[domain.RoleRiskNeutral]
	conservative, hasConservative := byPerspective[domain.RoleRiskConservative]
	aggressive, hasAggressive := byPerspective[domain.RoleRiskAggressive]

	if hasNeutral {
		if hasConservative && hasAggressive {
			dc := conservative.RiskScore - neutral.RiskScore
			da := aggressive.RiskScore - neutral.RiskScore
			if (dc > 1 && da > 1) || (dc < -1 && da < -1) {
				return conservative
			}
		}
		return neutral
	}
	if hasConservative {
		return conservative
	}
	return aggressive
}

// recallDecision returns the last remembered decision for the ticker, or nil
// when memory is disabled or the ticker has not been analyzed yet.
func (o *Orchestrator) recallDecision(ticker string) *agent.StrategistDecision {
	if o.memory == nil {
		return nil
	}
	o.memoryMu.Lock()
	defer o.memoryMu.Unlock()
	prior, ok := o.memory[ticker]
	if !ok {
		return nil
	}
	return &prior
}

func (o *Orchestrator) rememberDecision(ticker string, decision agent.StrategistDecision) {
	if o.memory == nil {
		return
	}
	o.memoryMu.Lock()
	o.memory[ticker] = decision
	o.memoryMu.Unlock()
}

// runAudit is best-effort: a failed auditor degrades its slot rather than
// discarding an otherwise complete memo.
func (o *Orchestrator) runAudit(ctx context.Context, ticker string, decision agent.StrategistDecision, risk agent.RiskAssessment, findings map[domain.AgentRole]agent.AnalystFinding) domain.AgentOutput {
	report, err := o.invoker.Audit(ctx, ticker, decision, risk, findings)
	if err != nil {
		return makeOutput(domain.RoleAuditor, ticker, domain.OutputDegraded, err.Error(), nil)
	}
	summary := fmt.Sprintf("approved=%t quality=%.0f", report.Approved, report.QualityScore)
	if len(report.Issues) > 0 {
		summary += ": " + strings.Join(report.Issues, "; ")
	}
	return makeOutput(domain.RoleAuditor, ticker, domain.OutputOK, summary, report)
}

// applyRiskFlagGuard downgrades a Buy to Hold when any analyst raised a risk
// flag. Sell stays as-is: an explicit negative thesis outranks the guard.
func applyRiskFlagGuard(decision agent.StrategistDecision, findings map[domain.AgentRole]agent.AnalystFinding) agent.StrategistDecision {
	if decision.Recommendation != string(domain.RecommendationBuy) {
		return decision
	}
	for _, f := range findings {
		if f.RiskFlag {
			decision.Recommendation = string(domain.RecommendationHold)
			decision.Rationale += " [downgraded to Hold: analyst risk flag raised]"
			return decision
		}
	}
	return decision
}

func makeOutput(role domain.AgentRole, ticker string, status domain.OutputStatus, summary string, payload any) domain.AgentOutput {
	out := domain.AgentOutput{
		Role:       role,
		Ticker:     ticker,
		Status:     status,
		Summary:    summary,
		ProducedAt: time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			out.Content = raw
		}
	}
	return out
}

func riskSummary(a agent.RiskAssessment) string {
	return fmt.Sprintf("%s: risk %.1f/10, size %.1f%%", a.Perspective, a.RiskScore, a.PositionSizePct)
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRunCancelled, err)
	}
	return nil
}

func isCancelled(err error) bool {
	return errors.Is(err, domain.ErrRunCancelled) || errors.Is(err, context.Canceled)
}
