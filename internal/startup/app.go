// Package startup wires configuration into a running engine. The API server
// and the CLI share it.
package startup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/guardrail"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/quote"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// App holds every long-lived component built from a Config.
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	DB       *sql.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Cache      cache.Client
	Reader     *storage.CachedReader
	Quotes     *storage.QuoteRepository
	Sessions   session.Store
	Resolver   *retrieval.CatalogResolver
	Knowledge  *retrieval.KnowledgeRetriever
	Calculator *pricing.Calculator
	Policy     *guardrail.Policy
	Audit      *monitoring.AuditLogger
	Engine     *conversation.Engine
}

// Options adjusts New.
type Options struct {
	// SkipMigrations leaves the schema untouched.
	SkipMigrations bool
}

// New opens the database, runs migrations and builds the engine.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.DB, err = OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !opts.SkipMigrations {
		status, err := storage.Migrate(ctx, app.DB, cfg.Database.Driver)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Int("applied", len(status.Applied)).Msg("Database schema up to date")
	}

	if cfg.Session.Driver == "redis" || cfg.Cache.Driver == "redis" {
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   "se:cache:",
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.Redis = rc.Raw()
		if cfg.Cache.Driver == "redis" {
			app.Cache = rc
		}
	}
	if app.Cache == nil {
		app.Cache = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	app.Registry = prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		app.Metrics = observability.NewMetrics(app.Registry)
	}

	app.build()

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("session", cfg.Session.Driver).
		Str("cache", cfg.Cache.Driver).
		Bool("llm", cfg.LLM.Enabled).
		Msg("Sales engine initialized")

	return app, nil
}

// Seed loads file into the database and drops cached catalog, FAQ and region
// reads so the seeded data is served at once. onItem may be nil.
func (a *App) Seed(ctx context.Context, file *storage.SeedFile, onItem func()) (*storage.SeedStats, error) {
	seeder := storage.NewSeeder(a.DB, a.Logger)
	seeder.OnItem = onItem
	stats, err := seeder.Seed(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := a.Reader.Invalidate(ctx); err != nil {
		return stats, fmt.Errorf("invalidate cache: %w", err)
	}
	a.Logger.Info().Str("cache", a.Config.Cache.Driver).Msg("Catalog cache invalidated after seed")
	return stats, nil
}

// OpenDatabase opens the configured database.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	opts := storage.OpenOptions{Driver: cfg.Database.Driver, DSN: cfg.DatabaseDSN()}
	switch cfg.Database.Driver {
	case "postgres":
		opts.MaxOpenConns = cfg.Database.Postgres.MaxOpenConns
		opts.MaxIdleConns = cfg.Database.Postgres.MaxIdleConns
		opts.ConnMaxLifetime = cfg.Database.Postgres.ConnMaxLifetime
	default:
		opts.MaxOpenConns = cfg.Database.SQLite.MaxOpenConns
		opts.JournalMode = cfg.Database.SQLite.JournalMode
	}
	db, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func (a *App) build() {
	cfg := a.Config

	retrying := storage.NewRetryingReader(storage.NewReader(a.DB), storage.RetryConfig{
		MaxRetries:     cfg.Engine.ReadRetries,
		AttemptTimeout: cfg.Engine.StoreTimeout,
	})
	a.Reader = storage.NewCachedReader(retrying, a.Cache, cfg.Cache.TTL)
	a.Quotes = storage.NewQuoteRepository(a.DB)

	if a.Redis != nil && cfg.Session.Driver == "redis" {
		a.Sessions = session.NewRedisStore(a.Redis, session.RedisStoreConfig{
			Prefix:  cfg.Session.Prefix,
			TTL:     cfg.Session.TTL,
			Timeout: cfg.Engine.StoreTimeout,
		})
	} else {
		a.Sessions = session.NewSQLStore(a.DB, cfg.Session.TTL, cfg.Engine.StoreTimeout)
	}

	a.Resolver = retrieval.NewCatalogResolver(a.Reader, nil, cfg.Engine.FuzzyThreshold)
	a.Knowledge = retrieval.NewKnowledgeRetriever(a.Reader)
	a.Calculator = pricing.NewCalculator(a.Reader, a.Reader, PricingConfig(cfg))
	a.Policy = guardrail.NewPolicy(a.Resolver, a.Reader, GuardrailConfig(cfg))
	a.Audit = monitoring.NewAuditLogger(a.Logger, storage.NewAuditRepository(a.DB))

	var (
		primary intent.Classifier
		phraser llm.Completer
	)
	if cfg.LLM.Enabled {
		client := llm.NewClient(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		primary = intent.NewLLMClassifier(client, cfg.LLM.Timeout)
		phraser = client
	}
	classifier := intent.NewFallbackClassifier(primary, intent.NewRuleClassifier(a.Reader), a.Logger, a.Metrics)

	quotes := quote.NewController(a.Sessions, a.Resolver, a.Calculator, a.Quotes, quote.Config{
		Recorder: a.Audit,
		Currency: cfg.Pricing.CurrencySymbol,
		Logger:   a.Logger,
		Metrics:  a.Metrics,
	})

	a.Engine = conversation.NewEngine(conversation.Deps{
		Policy:     a.Policy,
		Classifier: classifier,
		Quotes:     quotes,
		Resolver:   a.Resolver,
		Catalog:    a.Reader,
		Knowledge:  a.Knowledge,
		Pricer:     a.Calculator,
		Phraser:    phraser,
		Audit:      a.Audit,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	}, conversation.Config{
		FAQLimit: cfg.Engine.FAQLimit,
		Currency: cfg.Pricing.CurrencySymbol,
	})
}

// PricingConfig maps the pricing section onto calculator defaults.
func PricingConfig(cfg *config.Config) pricing.Config {
	return pricing.Config{
		DefaultRegion:     cfg.Pricing.DefaultRegion,
		DefaultAnnualRate: decimal.NewFromFloat(cfg.Pricing.DefaultAnnualRate),
		InsuranceRate:     decimal.NewFromFloat(cfg.Pricing.InsuranceRate),
		Currency:          cfg.Pricing.CurrencySymbol,
	}
}

// GuardrailConfig maps the guardrail section onto policy thresholds.
func GuardrailConfig(cfg *config.Config) guardrail.Config {
	g := guardrail.Config{
		StaleAfter:            time.Duration(cfg.Guardrail.StaleAfterDays) * 24 * time.Hour,
		PriceTolerancePercent: decimal.NewFromFloat(cfg.Guardrail.PriceTolerancePercent),
		MaxInputLength:        cfg.Guardrail.MaxInputLength,
		Currency:              cfg.Pricing.CurrencySymbol,
	}
	if len(cfg.Guardrail.BlockedTopics) > 0 {
		g.BlockedTopics = append([]string(nil), cfg.Guardrail.BlockedTopics...)
	}
	return g
}

// Ready checks the database and, when configured, Redis.
func (a *App) Ready(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the cache, Redis and database handles.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		// a Redis-backed cache shares the connection closed below
		if _, shared := a.Cache.(*cache.RedisClient); !shared {
			errs = append(errs, a.Cache.Close())
		}
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
