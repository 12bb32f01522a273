//go:build integration

package startup

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/quote"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage/storagetest"
)

// containers holds the Postgres and Redis endpoints for one test.
type containers struct {
	PostgresDSN string
	RedisAddr   string
}

func startContainers(t *testing.T) *containers {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sales_engine_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pg.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rc, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := rc.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := rc.Host(ctx)
	require.NoError(t, err)
	port, err := rc.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return &containers{PostgresDSN: dsn, RedisAddr: fmt.Sprintf("%s:%s", host, port.Port())}
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}

func TestIntegration_PostgresAndRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		t.Skip("Docker not available")
	}

	env := startContainers(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.Postgres.DSN = env.PostgresDSN
	cfg.Session.Driver = "redis"
	cfg.Cache.Driver = "redis"
	cfg.Cache.Redis.Addr = env.RedisAddr

	app, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()
	require.NoError(t, app.Ready(ctx))

	// a second run must find nothing pending
	status, err := storage.Migrate(ctx, app.DB, "postgres")
	require.NoError(t, err)
	assert.True(t, status.UpToDate())

	seeder := storage.NewSeeder(app.DB, nil)
	_, err = seeder.Seed(ctx, storagetest.Fixture())
	require.NoError(t, err)
	_, err = seeder.Seed(ctx, storagetest.Fixture())
	require.NoError(t, err)

	turn, err := app.Engine.HandleTurn(ctx, "it-user", "GET_QUOTE:Xpander GLS A/T")
	require.NoError(t, err)
	assert.Equal(t, session.StepAskPaymentType, turn.Step)

	state, err := app.Sessions.Get(ctx, "it-user")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "Xpander GLS A/T", state.Context.VariantName)

	turn, err = app.Engine.HandleTurn(ctx, "it-user", quote.PayloadCash)
	require.NoError(t, err)
	assert.Equal(t, conversation.RouteQuoteFlow, turn.Route)
	require.NotNil(t, turn.Quote)

	stored, err := app.Quotes.GetByID(ctx, turn.Quote.ID)
	require.NoError(t, err)
	assert.Equal(t, "it-user", stored.UserID)
	assert.Contains(t, turn.Replies[0].Text, "₱1,247,950.00")

	events, err := storage.NewAuditRepository(app.DB).ListByUser(ctx, "it-user", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
