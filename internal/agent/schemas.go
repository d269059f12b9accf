package agent

// Structured payloads each role must return. Validation failures surface as
// malformed output, never as a partial memo.

type AnalystFinding struct {
	Thesis     string   `json:"thesis" validate:"required"`
	Stance     string   `json:"stance" validate:"required,oneof=bullish bearish neutral"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=100"`
	RiskFlag   bool     `json:"risk_flag"`
	KeyPoints  []string `json:"key_points"`
}

type DebateArgument struct {
	Position   string  `json:"position" validate:"required,oneof=bull bear"`
	Argument   string  `json:"argument" validate:"required"`
	Rebuttal   string  `json:"rebuttal"`
	Conviction float64 `json:"conviction" validate:"gte=0,lte=100"`
}

type StrategistDecision struct {
	Recommendation      string  `json:"recommendation" validate:"required,oneof=Buy Sell Hold"`
	Rationale           string  `json:"rationale" validate:"required"`
	ConfidencePct       float64 `json:"confidence_pct" validate:"gte=0,lte=100"`
	TargetAllocationPct float64 `json:"target_allocation_pct" validate:"gte=0,lte=100"`
}

type RiskAssessment struct {
	Perspective     string   `json:"perspective" validate:"required,oneof=conservative aggressive neutral sole"`
	RiskScore       float64  `json:"risk_score" validate:"gte=1,lte=10"`
	PositionSizePct float64  `json:"position_size_pct" validate:"gte=0,lte=100"`
	Concerns        []string `json:"concerns"`
}

type AuditReport struct {
	Approved     bool     `json:"approved"`
	Issues       []string `json:"issues"`
	QualityScore float64  `json:"quality_score" validate:"gte=0,lte=100"`
}
