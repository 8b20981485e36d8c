package model

// EventType classifies what kind of parametric event a pool covers.
type EventType string

const (
	EventGas     EventType = "GAS"
	EventPrice   EventType = "PRICE"
	EventWeather EventType = "WEATHER"
	EventGeneric EventType = "GENERIC"
)

// Resolution rules recorded with every dual-auth verdict.
const (
	RuleEmotionalBlindness = "EMOTIONAL_BLINDNESS"
	RuleEmpiricalStrict    = "EMPIRICAL_STRICT"
	RuleProofStandard      = "PROOF_STANDARD"
	RuleDualAuth           = "DUAL_AUTH"
)

// GoverningRules is stored verbatim in every dual-auth record.
var GoverningRules = [4]string{
	RuleEmotionalBlindness,
	RuleEmpiricalStrict,
	RuleProofStandard,
	RuleDualAuth,
}

// StructuredData is machine-readable evidence fetched from a dedicated API,
// as opposed to free-text page content. At most one of the value fields is
// set, matching Kind.
type StructuredData struct {
	Kind             EventType `json:"kind"`
	GasGwei          *float64  `json:"gas_gwei,omitempty"`
	PriceChange7dPct *float64  `json:"price_change_7d_pct,omitempty"`
	WeatherCondition string    `json:"weather_condition,omitempty"`
	Source           string    `json:"source"`
}

// JudgeVerdict is the primary oracle component's output.
type JudgeVerdict struct {
	Verdict    bool    `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// AuditorVerdict is the independent secondary output. No confidence: the
// auditor either corroborates or it does not.
type AuditorVerdict struct {
	Verdict   bool   `json:"verdict"`
	Reasoning string `json:"reasoning"`
}

// DualAuthResult is the stored record of one resolution decision.
type DualAuthResult struct {
	Judge           JudgeVerdict    `json:"judge"`
	Auditor         AuditorVerdict  `json:"auditor"`
	Consensus       bool            `json:"consensus"`
	ClaimApproved   bool            `json:"claim_approved"`
	SecurityDefault bool            `json:"security_default"`
	Structured      *StructuredData `json:"structured,omitempty"`
	Rules           [4]string       `json:"rules"`
	EvaluatedAt     int64           `json:"evaluated_at"`
}

// Resolution is the consensus engine's full answer for one pool.
type Resolution struct {
	ShouldResolve bool           `json:"should_resolve"`
	ClaimApproved bool           `json:"claim_approved"`
	DualAuth      DualAuthResult `json:"dual_auth"`
	Evidence      string         `json:"evidence,omitempty"`
}
