package migrations

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ClickhouseExecer is the subset of a ClickHouse connection migrations need.
type ClickhouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ApplyClickhouse runs every ClickHouse migration statement by statement, since
// the native protocol accepts one statement per Exec. ClickHouse has no
// transactional DDL, so the files must be idempotent and are re-run on each
// start.
func ApplyClickhouse(ctx context.Context, db ClickhouseExecer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migs, err := Clickhouse()
	if err != nil {
		return err
	}

	for _, m := range migs {
		stmts := Statements(m.SQL)
		for i, stmt := range stmts {
			if err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("clickhouse migration %s statement %d: %w", m.Version, i+1, err)
			}
		}
		logger.Info("clickhouse migration applied", zap.String("version", m.Version), zap.Int("statements", len(stmts)))
	}
	return nil
}
