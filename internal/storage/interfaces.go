package storage

import (
	"context"

	"solana-launch-gate/internal/domain"
)

// DecisionStore provides access to the decisions audit log.
type DecisionStore interface {
	// Insert adds a new decision. Returns ErrDuplicateKey if decision_id exists.
	Insert(ctx context.Context, d *domain.DecisionRecord) error

	// GetByID retrieves a decision by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, decisionID string) (*domain.DecisionRecord, error)

	// GetByMint retrieves all decisions for a mint, ordered by decided_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.DecisionRecord, error)

	// GetByTimeRange retrieves decisions made within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.DecisionRecord, error)
}

// ReportStore provides access to security_reports storage.
type ReportStore interface {
	// Insert adds a new report. Returns ErrDuplicateKey if (mint, analyzed_at) exists.
	Insert(ctx context.Context, r *domain.SecurityReport) error

	// GetByMint retrieves all reports for a mint, ordered by analyzed_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.SecurityReport, error)

	// GetByTimeRange retrieves reports analyzed within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SecurityReport, error)
}
