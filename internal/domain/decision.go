package domain

// Priority classifies how urgently an accepted asset should be acted on.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// String returns the string representation of Priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid checks if the priority is a valid value.
func (p Priority) IsValid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// SocialSignal is off-chain sentiment about an asset.
type SocialSignal struct {
	TrustScore float64 // 0..100
	Velocity   float64 // mentions per minute
	Sentiment  float64 // -1..1
}

// ScoredAsset is an asset that passed the risk gate and received a final score.
type ScoredAsset struct {
	ID         string // deterministic hash of (mint, market, signature, path)
	Event      MarketOpenEvent
	Report     SecurityReport
	Social     *SocialSignal // nullable
	FastPath   bool
	FinalScore int // 0..100
	Priority   Priority
	ScoredAt   int64 // Unix timestamp in milliseconds
}

// RejectReason is why an asset was not admitted.
type RejectReason string

const (
	RejectLowLiquidity RejectReason = "low_liquidity"
	RejectHighRisk     RejectReason = "high_risk"
	RejectUnsafe       RejectReason = "unsafe"
	RejectLowScore     RejectReason = "low_score"
)

// DecisionRecord is the persisted outcome of evaluating one market event.
// Corresponds to decisions table in PostgreSQL.
type DecisionRecord struct {
	DecisionID   string       // PRIMARY KEY, deterministic hash
	Mint         string       // token mint address
	MarketID     string       // AMM pool account
	Signature    string       // pool creation transaction
	FastPath     bool         // evaluated on the fast path
	Accepted     bool         // admitted for execution
	Reason       RejectReason // empty when accepted
	Detail       string       // human-readable rejection cause, e.g. "final score 62 below 70"
	RiskScore    *int         // nullable, nil if rejected before analysis
	FinalScore   *int         // nullable, nil if rejected before scoring
	Priority     *Priority    // nullable
	Flags        []RiskFlag
	LiquiditySOL float64
	DecidedAt    int64 // Unix timestamp in milliseconds
}

// ExecutionReceipt is returned by an executor for a submitted asset.
type ExecutionReceipt struct {
	AssetID     string
	Reference   string // executor-specific id, e.g. stream message id
	SubmittedAt int64  // Unix timestamp in milliseconds
}
