package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/storage"
)

// ReportStore implements storage.ReportStore using ClickHouse.
type ReportStore struct {
	conn *Conn
}

// NewReportStore creates a new ReportStore.
func NewReportStore(conn *Conn) *ReportStore {
	return &ReportStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ReportStore = (*ReportStore)(nil)

const reportColumns = `
	mint, decimals, analyzed_at, duration_ms, is_safe, risk_score, flags,
	mint_authority_revoked, freeze_authority_revoked, top10_holder_pct, holder_count,
	lp_burn_pct, honeypot, honeypot_reason, has_liquidity, pool_id, pool_liquidity_sol,
	check_names, check_passed, check_penalties, check_degraded, check_errors
`

// Insert adds a new report. Returns ErrDuplicateKey if (mint, analyzed_at) exists.
func (s *ReportStore) Insert(ctx context.Context, r *domain.SecurityReport) error {
	if r == nil || r.Asset.Mint == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness.
	exists, err := s.exists(ctx, r.Asset.Mint, r.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	flags := make([]string, len(r.Flags))
	for i, f := range r.Flags {
		flags[i] = string(f)
	}

	n := len(r.Checks)
	names := make([]string, n)
	passed := make([]bool, n)
	penalties := make([]int32, n)
	degraded := make([]bool, n)
	errs := make([]string, n)
	for i, c := range r.Checks {
		names[i] = string(c.Check)
		passed[i] = c.Passed
		penalties[i] = int32(c.Penalty)
		degraded[i] = c.Degraded
		errs[i] = c.Err
	}

	d := r.Details
	start := time.Now()
	err = s.conn.Exec(ctx, `INSERT INTO security_reports (`+reportColumns+`) VALUES (
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?
		)`,
		r.Asset.Mint, uint8(r.Asset.Decimals), r.AnalyzedAt, r.DurationMs, r.IsSafe, int32(r.RiskScore), flags,
		d.MintAuthorityRevoked, d.FreezeAuthorityRevoked, d.Top10HolderPct, int32(d.HolderCount),
		d.LPBurnPct, d.Honeypot, d.HoneypotReason, d.HasLiquidity, d.PoolID, d.PoolLiquiditySOL,
		names, passed, penalties, degraded, errs,
	)
	observe("insert_report", start, err)
	if err != nil {
		return fmt.Errorf("insert security report: %w", err)
	}
	return nil
}

// GetByMint retrieves all reports for a mint, ordered by analyzed_at ASC.
func (s *ReportStore) GetByMint(ctx context.Context, mint string) ([]*domain.SecurityReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM security_reports
		WHERE mint = ?
		ORDER BY analyzed_at ASC`

	return s.query(ctx, query, mint)
}

// GetByTimeRange retrieves reports analyzed within [start, end] (inclusive).
func (s *ReportStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SecurityReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM security_reports
		WHERE analyzed_at >= ? AND analyzed_at <= ?
		ORDER BY analyzed_at ASC, mint ASC`

	return s.query(ctx, query, start, end)
}

func (s *ReportStore) query(ctx context.Context, query string, args ...any) ([]*domain.SecurityReport, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		observe("query_reports", start, err)
		return nil, fmt.Errorf("query security reports: %w", err)
	}
	defer rows.Close()

	var result []*domain.SecurityReport
	for rows.Next() {
		var (
			r         domain.SecurityReport
			decimals  uint8
			riskScore int32
			holders   int32
			flags     []string
			names     []string
			passed    []bool
			penalties []int32
			degraded  []bool
			errs      []string
		)
		d := &r.Details
		err := rows.Scan(
			&r.Asset.Mint, &decimals, &r.AnalyzedAt, &r.DurationMs, &r.IsSafe, &riskScore, &flags,
			&d.MintAuthorityRevoked, &d.FreezeAuthorityRevoked, &d.Top10HolderPct, &holders,
			&d.LPBurnPct, &d.Honeypot, &d.HoneypotReason, &d.HasLiquidity, &d.PoolID, &d.PoolLiquiditySOL,
			&names, &passed, &penalties, &degraded, &errs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan security report: %w", err)
		}

		r.Asset.Decimals = int(decimals)
		r.RiskScore = int(riskScore)
		d.HolderCount = int(holders)
		for _, f := range flags {
			r.Flags = append(r.Flags, domain.RiskFlag(f))
		}
		for i := range names {
			c := domain.RiskCheckResult{Check: domain.CheckName(names[i])}
			if i < len(passed) {
				c.Passed = passed[i]
			}
			if i < len(penalties) {
				c.Penalty = int(penalties[i])
			}
			if i < len(degraded) {
				c.Degraded = degraded[i]
			}
			if i < len(errs) {
				c.Err = errs[i]
			}
			r.Checks = append(r.Checks, c)
		}
		result = append(result, &r)
	}
	err = rows.Err()
	observe("query_reports", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate security reports: %w", err)
	}
	return result, nil
}

func (s *ReportStore) exists(ctx context.Context, mint string, analyzedAt int64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM security_reports WHERE mint = ? AND analyzed_at = ?`,
		mint, analyzedAt,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
