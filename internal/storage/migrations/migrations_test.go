package migrations

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"solana-launch-gate/internal/storage/postgres"
)

func TestStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "plain",
			script: "CREATE TABLE a (x Int32) ENGINE = Memory;\n\nCREATE TABLE b (y String) ENGINE = Memory;\n",
			want:   []string{"CREATE TABLE a (x Int32) ENGINE = Memory", "CREATE TABLE b (y String) ENGINE = Memory"},
		},
		{
			name:   "line comments dropped",
			script: "-- header; with semicolon\nSELECT 1; -- trailing\nSELECT 2",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "block comment",
			script: "SELECT /* a; b */ 1;",
			want:   []string{"SELECT   1"},
		},
		{
			name:   "semicolon in literal",
			script: "INSERT INTO t VALUES ('a;b');SELECT 'it''s;';",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "SELECT 'it''s;'"},
		},
		{
			name:   "quoted identifier",
			script: "SELECT `weird;col` FROM t",
			want:   []string{"SELECT `weird;col` FROM t"},
		},
		{
			name:   "only comments",
			script: "-- nothing here\n/* or here */",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Statements(tt.script))
		})
	}
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql":   {Data: []byte("CREATE TABLE b ();")},
		"pg/001_a.sql":   {Data: []byte("CREATE TABLE a ();")},
		"pg/003_nop.sql": {Data: []byte("  \n")},
		"pg/README.md":   {Data: []byte("docs")},
	}

	migs, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "001_a.sql", migs[0].Version)
	assert.Equal(t, "002_b.sql", migs[1].Version)

	_, err = load(fsys, "missing")
	assert.Error(t, err)
}

func TestEmbedded(t *testing.T) {
	pg, err := Postgres()
	require.NoError(t, err)
	require.Len(t, pg, 3)
	assert.Equal(t, "001_decisions.sql", pg[0].Version)
	assert.Equal(t, "002_polling_cursors.sql", pg[1].Version)
	assert.Equal(t, "003_decision_detail.sql", pg[2].Version)

	ch, err := Clickhouse()
	require.NoError(t, err)
	require.Len(t, ch, 1)
	stmts := Statements(ch[0].SQL)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS security_reports")
}

type recordingExecer struct {
	stmts []string
	fail  error
}

func (r *recordingExecer) Exec(_ context.Context, query string, _ ...any) error {
	if r.fail != nil {
		return r.fail
	}
	r.stmts = append(r.stmts, query)
	return nil
}

func TestApplyClickhouse(t *testing.T) {
	db := &recordingExecer{}
	require.NoError(t, ApplyClickhouse(context.Background(), db, zaptest.NewLogger(t)))
	require.Len(t, db.stmts, 1)
	assert.Contains(t, db.stmts[0], "security_reports")

	boom := errors.New("boom")
	err := ApplyClickhouse(context.Background(), &recordingExecer{fail: boom}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "001_security_reports.sql")
}

func TestApplyPostgres_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("gate"),
		tcpostgres.WithUsername("gate"),
		tcpostgres.WithPassword("gate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := zaptest.NewLogger(t)
	require.NoError(t, ApplyPostgres(ctx, pool, logger))
	require.NoError(t, ApplyPostgres(ctx, pool, logger))

	var versions int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
	assert.Equal(t, 3, versions)
}
