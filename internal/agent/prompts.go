package agent

import (
	"fmt"
	"strings"

	"project-chimera/internal/domain"
)

const jsonOnly = "Respond with a single JSON object and nothing else. No markdown, no commentary outside the JSON."

var analystSystemPrompts = map[domain.AgentRole]string{
	domain.RoleFundamental: "You are a fundamental analyst at an investment fund. Judge the company's valuation, earnings quality and growth from the data provided. " +
		`Return {"thesis": string, "stance": "bullish"|"bearish"|"neutral", "confidence": 0-100, "risk_flag": bool, "key_points": [string]}. ` + jsonOnly,
	domain.RoleTechnical: "You are a technical analyst. Judge trend, momentum and volume from the indicators provided. " +
		`Return {"thesis": string, "stance": "bullish"|"bearish"|"neutral", "confidence": 0-100, "risk_flag": bool, "key_points": [string]}. ` + jsonOnly,
	domain.RoleSentiment: "You are a market sentiment analyst. Judge news flow and crowd positioning from the headlines provided. " +
		`Return {"thesis": string, "stance": "bullish"|"bearish"|"neutral", "confidence": 0-100, "risk_flag": bool, "key_points": [string]}. ` + jsonOnly,
}

var debateSystemPrompts = map[domain.AgentRole]string{
	domain.RoleBullResearcher: "You are the bull researcher in an investment debate. Argue the strongest case FOR the position and rebut the bear's last argument. " +
		`Return {"position": "bull", "argument": string, "rebuttal": string, "conviction": 0-100}. ` + jsonOnly,
	domain.RoleBearResearcher: "You are the bear researcher in an investment debate. Argue the strongest case AGAINST the position and rebut the bull's last argument. " +
		`Return {"position": "bear", "argument": string, "rebuttal": string, "conviction": 0-100}. ` + jsonOnly,
}

var riskSystemPrompts = map[domain.AgentRole]string{
	domain.RoleRiskConservative: "You are a conservative risk analyst. Prioritize capital preservation and argue for caution. " +
		`Return {"perspective": "conservative", "risk_score": 0-10, "position_size_pct": 0-100, "concerns": [string]}. ` + jsonOnly,
	domain.RoleRiskAggressive: "You are an aggressive risk analyst. Prioritize upside capture and argue for conviction sizing. " +
		`Return {"perspective": "aggressive", "risk_score": 0-10, "position_size_pct": 0-100, "concerns": [string]}. ` + jsonOnly,
	domain.RoleRiskNeutral: "You are a neutral risk analyst. Weigh both sides and size the position on expected value. " +
		`Return {"perspective": "neutral", "risk_score": 0-10, "position_size_pct": 0-100, "concerns": [string]}. ` + jsonOnly,
	domain.RoleRiskManager: "You are the fund's sole risk manager. Score overall risk and set a prudent position size. " +
		`Return {"perspective": "sole", "risk_score": 0-10, "position_size_pct": 0-100, "concerns": [string]}. ` + jsonOnly,
}

const strategistSystemPrompt = "You are the chief strategist of an investment fund. Synthesize the analyst findings and debate into one recommendation. " +
	`Return {"recommendation": "Buy"|"Sell"|"Hold", "rationale": string, "confidence_pct": 0-100, "target_allocation_pct": 0-100}. ` + jsonOnly

const auditorSystemPrompt = "You are an investment memo auditor. Check the draft memo for internal consistency: the recommendation must follow from the findings, sizing must respect the risk score, and no section may contradict another. " +
	`Return {"approved": bool, "issues": [string], "quality_score": 0-100}. ` + jsonOnly

func snapshotPrompt(s domain.MarketSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker: %s (as of %s)\n", s.Ticker, s.AsOf.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&sb, "Price: %.2f (24h %+.2f%%), market cap %.0f\n", s.Price, s.Change24hPct, s.MarketCap)
	fmt.Fprintf(&sb, "P/E: %.2f, EPS: %.2f, revenue growth %.1f%%\n", s.PERatio, s.EPS, s.RevenueGrowthPct)
	fmt.Fprintf(&sb, "52w range: %.2f - %.2f, RSI(14): %.1f, MACD: %.3f, avg volume %.0f\n",
		s.Low52w, s.High52w, s.RSI14, s.MACD, s.AvgVolume)
	if len(s.NewsHeadlines) > 0 {
		sb.WriteString("Recent headlines:\n")
		for _, h := range s.NewsHeadlines {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}
	return sb.String()
}

func findingsPrompt(findings map[domain.AgentRole]AnalystFinding) string {
	var sb strings.Builder
	for _, role := range []domain.AgentRole{domain.RoleFundamental, domain.RoleTechnical, domain.RoleSentiment} {
		f, ok := findings[role]
		if !ok {
			fmt.Fprintf(&sb, "[%s] unavailable for this run\n", role)
			continue
		}
		fmt.Fprintf(&sb, "[%s] stance=%s confidence=%.0f risk_flag=%t\n%s\n", role, f.Stance, f.Confidence, f.RiskFlag, f.Thesis)
	}
	return sb.String()
}

func transcriptPrompt(transcript []DebateArgument) string {
	if len(transcript) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Debate so far:\n")
	for _, arg := range transcript {
		fmt.Fprintf(&sb, "[%s, conviction %.0f] %s", arg.Position, arg.Conviction, arg.Argument)
		if arg.Rebuttal != "" {
			fmt.Fprintf(&sb, " (rebuttal: %s)", arg.Rebuttal)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
