package orchestrator

import "solana-launch-gate/internal/domain"

// EventKind identifies an orchestrator event.
type EventKind string

const (
	KindScored          EventKind = "scored"
	KindAccepted        EventKind = "accepted"
	KindRejected        EventKind = "rejected"
	KindExecuted        EventKind = "executed"
	KindExecutionFailed EventKind = "execution_failed"
)

// Event is published on the orchestrator bus.
//
// Asset is set for every kind except a KindRejected emitted before scoring.
// Reason and Detail are set for KindRejected, Receipt for KindExecuted and Err
// for KindExecutionFailed.
type Event struct {
	Kind    EventKind
	AssetID string
	Mint    string
	Asset   *domain.ScoredAsset
	Reason  domain.RejectReason
	Detail  string // e.g. "final score 62 below 70"
	Receipt *domain.ExecutionReceipt
	Err     error
	At      int64 // Unix timestamp in milliseconds
}
