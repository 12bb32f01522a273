package startup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage/storagetest"
)

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = ":memory:"
	return cfg
}

func TestNew_SQLiteDefaults(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, memoryConfig(), nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Redis)
	assert.IsType(t, &cache.MemoryClient{}, app.Cache)
	assert.IsType(t, &session.SQLStore{}, app.Sessions)
	assert.NotNil(t, app.Metrics)
	require.NoError(t, app.Ready(ctx))

	_, err = storage.NewSeeder(app.DB, nil).Seed(ctx, storagetest.Fixture())
	require.NoError(t, err)

	turn, err := app.Engine.HandleTurn(ctx, "u1", "how much is the xpander gls")
	require.NoError(t, err)
	require.NotEmpty(t, turn.Replies)
	assert.Contains(t, turn.Replies[0].Text, "Xpander GLS A/T")
}

func TestNew_RedisSessionsAndCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := memoryConfig()
	cfg.Session.Driver = "redis"
	cfg.Cache.Driver = "redis"
	cfg.Cache.Redis.Addr = mr.Addr()

	app, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)

	assert.NotNil(t, app.Redis)
	assert.IsType(t, &session.RedisStore{}, app.Sessions)
	require.NoError(t, app.Ready(ctx))

	_, err = storage.NewSeeder(app.DB, nil).Seed(ctx, storagetest.Fixture())
	require.NoError(t, err)

	turn, err := app.Engine.HandleTurn(ctx, "u1", "GET_QUOTE:Xpander GLS A/T")
	require.NoError(t, err)
	assert.Equal(t, session.StepAskPaymentType, turn.Step)
	assert.True(t, mr.Exists(cfg.Session.Prefix+"u1"))

	mr.Close()
	assert.Error(t, app.Ready(ctx))
	assert.NoError(t, app.DB.PingContext(ctx))
	_ = app.Close()
}

func TestNew_MetricsDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.Observability.MetricsEnabled = false

	app, err := New(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Metrics)
	families, err := app.Registry.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestNew_UnreachableRedisFails(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Driver = "redis"
	cfg.Cache.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, nil, Options{})
	assert.Error(t, err)
}

func TestGuardrailConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Guardrail.StaleAfterDays = 10
	cfg.Guardrail.BlockedTopics = []string{"Politics"}

	g := GuardrailConfig(cfg)
	assert.Equal(t, 10*24*time.Hour, g.StaleAfter)
	assert.Equal(t, "5", g.PriceTolerancePercent.String())
	assert.Equal(t, []string{"Politics"}, g.BlockedTopics)
	assert.Equal(t, "₱", g.Currency)

	p := PricingConfig(cfg)
	assert.Equal(t, "5.5", p.DefaultAnnualRate.String())
	assert.Equal(t, "0.025", p.InsuranceRate.String())
}

func TestApp_SeedInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := memoryConfig()
	cfg.Cache.Driver = "redis"
	cfg.Cache.Redis.Addr = mr.Addr()

	app, err := New(ctx, cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	var items int
	_, err = app.Seed(ctx, storagetest.Fixture(), func() { items++ })
	require.NoError(t, err)
	assert.Equal(t, storagetest.Fixture().Total(), items)

	before, err := app.Resolver.ResolveVariant(ctx, "xpander gls")
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.True(t, decimal.NewFromInt(1198000).Equal(before.Price))
	assert.NotEmpty(t, mr.Keys(), "catalog reads are cached")

	repriced := storagetest.Fixture()
	repriced.Models[0].Variants[0].Price = "1250000"
	_, err = app.Seed(ctx, repriced, nil)
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())

	after, err := app.Resolver.ResolveVariant(ctx, "xpander gls")
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.True(t, decimal.NewFromInt(1250000).Equal(after.Price))
}
