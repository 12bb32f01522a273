package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage/storagetest"
)

func TestMigrate_Idempotent(t *testing.T) {
	db := storagetest.NewDB(t)

	status, err := storage.Migrate(context.Background(), db, "sqlite")
	require.NoError(t, err)
	assert.True(t, status.UpToDate())
	assert.Equal(t, []string{"0001_init_sqlite.sql"}, status.Applied)
}

func TestCatalogRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	db := storagetest.Seeded(t)
	repo := storage.NewCatalogRepository(db)

	t.Run("find model by case-insensitive substring", func(t *testing.T) {
		model, err := repo.FindModelByName(ctx, "XPAN")
		require.NoError(t, err)
		assert.Equal(t, "Xpander", model.Name)
		require.Len(t, model.Variants, 2)
		assert.Equal(t, "GLX M/T", model.Variants[0].Name, "variants are ordered by price")
		assert.Len(t, model.Media, 2)
		assert.Equal(t, "GLX M/T", model.CheapestVariant().Name)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := repo.FindModelByName(ctx, "lamborghini")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list models with nested variants", func(t *testing.T) {
		models, err := repo.ListModels(ctx)
		require.NoError(t, err)
		require.Len(t, models, 3)
		assert.Equal(t, "Montero Sport", models[0].Name)
		assert.Equal(t, "Vios", models[1].Name)
		require.Len(t, models[1].Variants, 3)
		assert.Equal(t, "J M/T", models[1].Variants[0].Name)
		assert.Len(t, models[2].Variants, 2)
	})

	t.Run("get variant with model and media", func(t *testing.T) {
		want := storagetest.FindVariant(t, db, "GLS A/T")
		got, err := repo.GetVariant(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, "Xpander", got.ModelName)
		assert.Equal(t, "Xpander GLS A/T", got.DisplayName())
		assert.True(t, decimal.NewFromInt(1198000).Equal(got.Price))
		assert.Len(t, got.Media, 2)
		assert.Equal(t, []string{"Keyless entry", "8-inch touchscreen", "Rear AC"}, got.Features())
	})

	t.Run("missing variant", func(t *testing.T) {
		_, err := repo.GetVariant(ctx, uuid.New())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list variants", func(t *testing.T) {
		variants, err := repo.ListVariants(ctx)
		require.NoError(t, err)
		assert.Len(t, variants, 6)
	})
}

func TestCatalogRepository_RejectsNegativePrice(t *testing.T) {
	ctx := context.Background()
	db := storagetest.NewDB(t)
	repo := storage.NewCatalogRepository(db)

	model := &storage.CatalogModel{Name: "Test"}
	require.NoError(t, repo.UpsertModel(ctx, model))

	err := repo.UpsertVariant(ctx, &storage.CatalogVariant{
		ModelID: model.ID,
		Name:    "Broken",
		Price:   decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSeeder_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := storagetest.Seeded(t)

	fixture := storagetest.Fixture()
	seeder := storage.NewSeeder(db, nil)
	var ticks int
	seeder.OnItem = func() { ticks++ }

	_, err := seeder.Seed(ctx, fixture)
	require.NoError(t, err)
	assert.Equal(t, fixture.Total(), ticks)

	faqs, err := storage.NewFAQRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Len(t, faqs, 5)

	variants, err := storage.NewCatalogRepository(db).ListVariants(ctx)
	require.NoError(t, err)
	assert.Len(t, variants, 6)
}

func TestFAQRepository_UpsertByQuestion(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewFAQRepository(storagetest.NewDB(t))

	first := &storage.FAQEntry{Question: "Do you deliver?", Answer: "No.", Keywords: storage.StringList{"delivery"}}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &storage.FAQEntry{Question: "Do you deliver?", Answer: "Yes, within Metro Manila.", Keywords: storage.StringList{"delivery"}}
	require.NoError(t, repo.Upsert(ctx, second))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Yes, within Metro Manila.", entries[0].Answer)
	assert.Equal(t, first.ID, entries[0].ID)
}

func TestRegionRepository_GetCurrent(t *testing.T) {
	ctx := context.Background()
	db := storagetest.Seeded(t)
	repo := storage.NewRegionRepository(db)

	rule, err := repo.GetCurrent(ctx, "ncr")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5000).Equal(rule.RegistrationFee))
	assert.Nil(t, rule.InsuranceFee)
	assert.Nil(t, rule.InsuranceRate)

	newer := &storage.RegionPriceRule{
		Region:          "NCR",
		RegistrationFee: decimal.NewFromInt(5500),
		ChattelFee:      decimal.NewFromInt(15000),
		UpdatedAt:       time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, newer))

	rule, err = repo.GetCurrent(ctx, "NCR")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5500).Equal(rule.RegistrationFee))

	cebu, err := repo.GetCurrent(ctx, "CEBU")
	require.NoError(t, err)
	require.NotNil(t, cebu.InsuranceFee)
	assert.True(t, decimal.NewFromInt(25000).Equal(*cebu.InsuranceFee))
	assert.Len(t, cebu.ExtraFees, 1)
	assert.Equal(t, storage.StringList{"Window tint", "Floor mats"}, cebu.Freebies)

	_, err = repo.GetCurrent(ctx, "MARS")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQuoteAndAuditRepositories(t *testing.T) {
	ctx := context.Background()
	db := storagetest.Seeded(t)
	variant := storagetest.FindVariant(t, db, "GLS A/T")

	quotes := storage.NewQuoteRepository(db)
	q := &storage.Quote{
		UserID:      "u-1",
		VariantID:   variant.ID,
		VariantName: variant.Name,
		Breakdown:   json.RawMessage(`{"total":"1247950"}`),
	}
	require.NoError(t, quotes.Create(ctx, q))

	got, err := quotes.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.QuoteStatusGenerated, got.Status)
	assert.JSONEq(t, `{"total":"1247950"}`, string(got.Breakdown))

	list, err := quotes.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = quotes.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	audit := storage.NewAuditRepository(db)
	require.NoError(t, audit.Record(ctx, &storage.AuditEvent{UserID: "u-1", Kind: storage.AuditKindQuoteGenerated}))
	events, err := audit.ListByUser(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, storage.AuditKindQuoteGenerated, events[0].Kind)
}

func TestRegionRepository_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, region").WillReturnError(errors.New("connection reset"))

	_, err = storage.NewRegionRepository(db).GetCurrent(context.Background(), "NCR")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// flakyStore fails the first n calls of every read with a transient error.
type flakyStore struct {
	storage.ReadStore
	failures int32
	calls    atomic.Int32
}

func (f *flakyStore) ListVariants(ctx context.Context) ([]*storage.CatalogVariant, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("database is locked")
	}
	return f.ReadStore.ListVariants(ctx)
}

func (f *flakyStore) GetCurrentRegion(ctx context.Context, region string) (*storage.RegionPriceRule, error) {
	f.calls.Add(1)
	return f.ReadStore.GetCurrentRegion(ctx, region)
}

func TestRetryingReader(t *testing.T) {
	ctx := context.Background()
	db := storagetest.Seeded(t)
	cfg := storage.RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond}

	t.Run("recovers from transient errors", func(t *testing.T) {
		flaky := &flakyStore{ReadStore: storage.NewReader(db), failures: 2}
		variants, err := storage.NewRetryingReader(flaky, cfg).ListVariants(ctx)
		require.NoError(t, err)
		assert.Len(t, variants, 6)
		assert.Equal(t, int32(3), flaky.calls.Load())
	})

	t.Run("gives up as a persistence error", func(t *testing.T) {
		flaky := &flakyStore{ReadStore: storage.NewReader(db), failures: 10}
		_, err := storage.NewRetryingReader(flaky, cfg).ListVariants(ctx)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.Equal(t, int32(3), flaky.calls.Load())
	})

	t.Run("does not retry not found", func(t *testing.T) {
		flaky := &flakyStore{ReadStore: storage.NewReader(db)}
		_, err := storage.NewRetryingReader(flaky, cfg).GetCurrentRegion(ctx, "MARS")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, int32(1), flaky.calls.Load())
	})
}

// countingStore counts ListModels calls.
type countingStore struct {
	storage.ReadStore
	calls atomic.Int32
}

func (c *countingStore) ListModels(ctx context.Context) ([]*storage.CatalogModel, error) {
	c.calls.Add(1)
	return c.ReadStore.ListModels(ctx)
}

func TestCachedReader(t *testing.T) {
	ctx := context.Background()
	db := storagetest.Seeded(t)
	mem := cache.NewMemoryClient(100)
	defer mem.Close()

	inner := &countingStore{ReadStore: storage.NewReader(db)}
	reader := storage.NewCachedReader(inner, mem, time.Minute)

	first, err := reader.ListModels(ctx)
	require.NoError(t, err)
	second, err := reader.ListModels(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	require.Len(t, second, len(first))
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.True(t, first[0].Variants[0].Price.Equal(second[0].Variants[0].Price))

	require.NoError(t, reader.Invalidate(ctx))
	_, err = reader.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	rule, err := reader.GetCurrentRegion(ctx, "NCR")
	require.NoError(t, err)
	assert.Equal(t, "NCR", rule.Region)
}
