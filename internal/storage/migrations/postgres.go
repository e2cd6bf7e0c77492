package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// PostgresDB is satisfied by *pgxpool.Pool and *pgx.Conn.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const versionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ApplyPostgres applies pending PostgreSQL migrations. Each file runs in its
// own transaction together with its schema_migrations row, so a failed file
// leaves no trace and applied files are never re-run.
func ApplyPostgres(ctx context.Context, db PostgresDB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(ctx, versionTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migs, err := Postgres()
	if err != nil {
		return err
	}

	for _, m := range migs {
		applied, err := isApplied(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if applied {
			logger.Debug("postgres migration already applied", zap.String("version", m.Version))
			continue
		}
		if err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		}); err != nil {
			return fmt.Errorf("postgres migration %s: %w", m.Version, err)
		}
		logger.Info("postgres migration applied", zap.String("version", m.Version))
	}
	return nil
}

func isApplied(ctx context.Context, db PostgresDB, version string) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return ok, nil
}
