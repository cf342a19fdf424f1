package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pump-graduates/internal/domain"
)

// setupTestDB creates a PostgreSQL container for testing.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if os.Getenv("SKIP_CONTAINER_TESTS") != "" {
		t.Skip("container tests disabled")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func TestSnapshotter_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	snap := NewSnapshotter(pool)
	require.NoError(t, snap.EnsureSchema(ctx))

	// Empty table loads as an empty collection.
	graduates, err := snap.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, graduates)

	price := 0.01
	marketCap := 50000.0
	symbol := "FOO"
	saved := []*domain.Graduate{
		{
			Mint:        "mintB",
			Symbol:      &symbol,
			GraduatedAt: 2000,
			Dex:         "raydium",
			PriceUsd:    &price,
			MarketCap:   &marketCap,
		},
		{
			Mint:        "mintA",
			GraduatedAt: 1000,
			Dex:         domain.FallbackDex,
		},
	}
	require.NoError(t, snap.Save(ctx, saved))

	loaded, err := snap.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "mintB", loaded[0].Mint)
	require.NotNil(t, loaded[0].PriceUsd)
	require.Equal(t, 0.01, *loaded[0].PriceUsd)
	require.Equal(t, "mintA", loaded[1].Mint)
	require.Nil(t, loaded[1].PriceUsd)
}

func TestSnapshotter_SaveOverwrites(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	snap := NewSnapshotter(pool)
	require.NoError(t, snap.EnsureSchema(ctx))

	require.NoError(t, snap.Save(ctx, []*domain.Graduate{
		{Mint: "first", GraduatedAt: 1000, Dex: domain.FallbackDex},
	}))
	require.NoError(t, snap.Save(ctx, []*domain.Graduate{
		{Mint: "second", GraduatedAt: 2000, Dex: domain.FallbackDex},
	}))

	loaded, err := snap.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "second", loaded[0].Mint)

	// Exactly one row regardless of save count.
	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM graduates_snapshot`).Scan(&rows))
	require.Equal(t, 1, rows)
}

func TestSnapshotter_SaveEmptyCollection(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	snap := NewSnapshotter(pool)
	require.NoError(t, snap.EnsureSchema(ctx))

	require.NoError(t, snap.Save(ctx, []*domain.Graduate{
		{Mint: "gone", GraduatedAt: 1000, Dex: domain.FallbackDex},
	}))
	require.NoError(t, snap.Save(ctx, []*domain.Graduate{}))

	loaded, err := snap.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)
}
