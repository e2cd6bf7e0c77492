package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/storage"
)

// DecisionStore implements storage.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *Pool
}

// NewDecisionStore creates a new DecisionStore.
func NewDecisionStore(pool *Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DecisionStore = (*DecisionStore)(nil)

const decisionColumns = `
	decision_id, mint, market_id, signature, fast_path, accepted, reason, detail,
	risk_score, final_score, priority, flags, liquidity_sol, decided_at
`

// Insert adds a new decision. Returns ErrDuplicateKey if decision_id exists.
func (s *DecisionStore) Insert(ctx context.Context, d *domain.DecisionRecord) error {
	if d == nil || d.DecisionID == "" || d.Mint == "" {
		return storage.ErrInvalidInput
	}

	var priority *string
	if d.Priority != nil {
		p := d.Priority.String()
		priority = &p
	}
	flags := make([]string, len(d.Flags))
	for i, f := range d.Flags {
		flags[i] = string(f)
	}

	query := `INSERT INTO decisions (` + decisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		d.DecisionID,
		d.Mint,
		d.MarketID,
		d.Signature,
		d.FastPath,
		d.Accepted,
		string(d.Reason),
		d.Detail,
		d.RiskScore,
		d.FinalScore,
		priority,
		flags,
		d.LiquiditySOL,
		d.DecidedAt,
	)
	observe("insert_decision", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// GetByID retrieves a decision by its ID. Returns ErrNotFound if not exists.
func (s *DecisionStore) GetByID(ctx context.Context, decisionID string) (*domain.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + `
		FROM decisions
		WHERE decision_id = $1`

	start := time.Now()
	d, err := scanDecision(s.pool.QueryRow(ctx, query, decisionID))
	observe("get_decision", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get decision by id: %w", err)
	}
	return d, nil
}

// GetByMint retrieves all decisions for a mint, ordered by decided_at ASC.
func (s *DecisionStore) GetByMint(ctx context.Context, mint string) ([]*domain.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + `
		FROM decisions
		WHERE mint = $1
		ORDER BY decided_at ASC, decision_id ASC`

	return s.queryDecisions(ctx, query, mint)
}

// GetByTimeRange retrieves decisions made within [start, end] (inclusive).
func (s *DecisionStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + `
		FROM decisions
		WHERE decided_at >= $1 AND decided_at <= $2
		ORDER BY decided_at ASC, decision_id ASC`

	return s.queryDecisions(ctx, query, start, end)
}

func (s *DecisionStore) queryDecisions(ctx context.Context, query string, args ...any) ([]*domain.DecisionRecord, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		observe("query_decisions", start, err)
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var result []*domain.DecisionRecord
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		result = append(result, d)
	}
	err = rows.Err()
	observe("query_decisions", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return result, nil
}

// scanDecision scans a single row into DecisionRecord.
func scanDecision(row pgx.Row) (*domain.DecisionRecord, error) {
	var (
		d        domain.DecisionRecord
		reason   string
		priority *string
		flags    []string
	)

	err := row.Scan(
		&d.DecisionID,
		&d.Mint,
		&d.MarketID,
		&d.Signature,
		&d.FastPath,
		&d.Accepted,
		&reason,
		&d.Detail,
		&d.RiskScore,
		&d.FinalScore,
		&priority,
		&flags,
		&d.LiquiditySOL,
		&d.DecidedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Reason = domain.RejectReason(reason)
	if priority != nil {
		p := domain.Priority(*priority)
		d.Priority = &p
	}
	for _, f := range flags {
		d.Flags = append(d.Flags, domain.RiskFlag(f))
	}
	return &d, nil
}
