package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestSinkAgainstRealPostgres spins up a disposable Postgres and exercises
// the full migrate/insert/query path. Skipped in -short runs and wherever
// Docker is unavailable.
func TestSinkAgainstRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("pkarrdns"),
		tcpostgres.WithUsername("pkarrdns"),
		tcpostgres.WithPassword("pkarrdns"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sink, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer sink.Close()

	key := testKey(t)
	require.NoError(t, sink.RecordPublish(ctx, key, 1000, "update"))
	require.NoError(t, sink.RecordPublish(ctx, key, 999, "noop"))

	history, err := sink.History(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
}
