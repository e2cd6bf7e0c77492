package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"solana-launch-gate/internal/storage/migrations"
)

// newTestConn starts a throwaway ClickHouse, creates the gate database and
// applies the embedded schema. The connection is closed when the test ends.
func newTestConn(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp", "8123/tcp"},
			Env:          map[string]string{"CLICKHOUSE_SKIP_USER_SETUP": "1"},
			WaitingFor: wait.ForAll(
				wait.ForHTTP("/ping").WithPort("8123/tcp"),
				wait.ForListeningPort("9000/tcp"),
			).WithDeadline(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)
	dsn := fmt.Sprintf("clickhouse://default@%s/gate_test", endpoint)

	db, err := EnsureDatabase(ctx, dsn)
	require.NoError(t, err)
	require.Equal(t, "gate_test", db)

	conn, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, migrations.ApplyClickhouse(ctx, conn, zaptest.NewLogger(t)))
	return conn
}
