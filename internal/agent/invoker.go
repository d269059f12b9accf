package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"project-chimera/internal/domain"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
)

// Invoker runs one agent role per call: prompt, completion, JSON extraction,
// schema validation. Transient transport errors are retried; timeouts,
// cancellation and malformed output are not.
type Invoker struct {
	chat         ChatCompleter
	validate     *validator.Validate
	tracer       trace.Tracer
	timeout      time.Duration
	maxTries     uint
	retryBackoff time.Duration
}

type InvokerOptions struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func NewInvoker(chat ChatCompleter, tracer trace.Tracer, opts InvokerOptions) *Invoker {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &Invoker{
		chat:         chat,
		validate:     validator.New(),
		tracer:       tracer,
		timeout:      opts.Timeout,
		maxTries:     uint(opts.MaxRetries) + 1,
		retryBackoff: opts.RetryBackoff,
	}
}

func (inv *Invoker) Analyze(ctx context.Context, role domain.AgentRole, snapshot domain.MarketSnapshot) (AnalystFinding, error) {
	system, ok := analystSystemPrompts[role]
	if !ok {
		return AnalystFinding{}, fmt.Errorf("role %s is not an analyst", role)
	}
	return invokeJSON[AnalystFinding](ctx, inv, role, system, snapshotPrompt(snapshot))
}

func (inv *Invoker) Debate(ctx context.Context, role domain.AgentRole, ticker string, findings map[domain.AgentRole]AnalystFinding, transcript []DebateArgument) (DebateArgument, error) {
	system, ok := debateSystemPrompts[role]
	if !ok {
		return DebateArgument{}, fmt.Errorf("role %s is not a debater", role)
	}
	user := fmt.Sprintf("Ticker: %s\n\nAnalyst findings:\n%s\n%s", ticker, findingsPrompt(findings), transcriptPrompt(transcript))
	return invokeJSON[DebateArgument](ctx, inv, role, system, user)
}

// Synthesize produces the strategist decision. A non-nil prior is the last
// decision issued for the ticker and is surfaced so the strategist can revise
// rather than start cold.
func (inv *Invoker) Synthesize(ctx context.Context, ticker string, findings map[domain.AgentRole]AnalystFinding, transcript []DebateArgument, prior *StrategistDecision) (StrategistDecision, error) {
	user := fmt.Sprintf("Ticker: %s\n\nAnalyst findings:\n%s\n%s", ticker, findingsPrompt(findings), transcriptPrompt(transcript))
	if prior != nil {
		user += fmt.Sprintf("\nPrior recommendation for this ticker: %s (confidence %.0f%%). Rationale: %s\nRevise it only if the findings above warrant a change.",
			prior.Recommendation, prior.ConfidencePct, prior.Rationale)
	}
	return invokeJSON[StrategistDecision](ctx, inv, domain.RoleChiefStrategist, strategistSystemPrompt, user)
}

func (inv *Invoker) AssessRisk(ctx context.Context, role domain.AgentRole, ticker string, decision StrategistDecision, findings map[domain.AgentRole]AnalystFinding) (RiskAssessment, error) {
	system, ok := riskSystemPrompts[role]
	if !ok {
		return RiskAssessment{}, fmt.Errorf("role %s is not a risk analyst", role)
	}
	user := fmt.Sprintf("Ticker: %s\n\nProposed decision: %s (confidence %.0f%%, target allocation %.1f%%)\nRationale: %s\n\nAnalyst findings:\n%s",
		ticker, decision.Recommendation, decision.ConfidencePct, decision.TargetAllocationPct, decision.Rationale, findingsPrompt(findings))
	return invokeJSON[RiskAssessment](ctx, inv, role, system, user)
}

func (inv *Invoker) Audit(ctx context.Context, ticker string, decision StrategistDecision, risk RiskAssessment, findings map[domain.AgentRole]AnalystFinding) (AuditReport, error) {
	user := fmt.Sprintf("Ticker: %s\n\nDraft memo:\nRecommendation: %s (confidence %.0f%%)\nRationale: %s\nRisk score: %.1f/10, position size %.1f%%\nConcerns: %s\n\nAnalyst findings:\n%s",
		ticker, decision.Recommendation, decision.ConfidencePct, decision.Rationale,
		risk.RiskScore, risk.PositionSizePct, strings.Join(risk.Concerns, "; "), findingsPrompt(findings))
	return invokeJSON[AuditReport](ctx, inv, domain.RoleAuditor, auditorSystemPrompt, user)
}

func invokeJSON[T any](ctx context.Context, inv *Invoker, role domain.AgentRole, system, user string) (T, error) {
	var zero T
	ctx, span := inv.tracer.Start(ctx, "agent."+string(role))
	defer span.End()

	op := func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
		defer cancel()
		raw, err := inv.chat.Complete(callCtx, system, user)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(fmt.Errorf("%s: %w", role, domain.ErrRunCancelled))
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return "", backoff.Permanent(fmt.Errorf("%s exceeded deadline: %w", role, domain.ErrAgentTimeout))
			}
			return "", fmt.Errorf("%s: %w", role, err)
		}
		return raw, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = inv.retryBackoff
	raw, err := backoff.Retry(ctx, op, backoff.WithBackOff(expo), backoff.WithMaxTries(inv.maxTries))
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return zero, fmt.Errorf("%s returned unparseable JSON: %w", role, domain.ErrMalformedOutput)
	}
	if err := inv.validate.Struct(out); err != nil {
		return zero, fmt.Errorf("%s output failed validation (%v): %w", role, err, domain.ErrMalformedOutput)
	}
	return out, nil
}

// extractJSON tolerates models that wrap the object in markdown fences or
// prose: everything between the first '{' and the last '}' is taken.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
