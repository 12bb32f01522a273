package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
)

// CatalogReader is the read-only catalog contract used by the resolver and calculator.
type CatalogReader interface {
	FindModelByName(ctx context.Context, name string) (*CatalogModel, error)
	ListModels(ctx context.Context) ([]*CatalogModel, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*CatalogVariant, error)
	ListVariants(ctx context.Context) ([]*CatalogVariant, error)
}

// FAQReader is the read-only knowledge-base contract.
type FAQReader interface {
	ListFAQs(ctx context.Context) ([]*FAQEntry, error)
}

// RegionReader is the read-only region pricing contract.
type RegionReader interface {
	GetCurrentRegion(ctx context.Context, region string) (*RegionPriceRule, error)
}

// ReadStore combines every read-only contract the engine consumes.
type ReadStore interface {
	CatalogReader
	FAQReader
	RegionReader
}

// Reader adapts the repositories to ReadStore.
type Reader struct {
	*CatalogRepository
	faqs    *FAQRepository
	regions *RegionRepository
}

// NewReader creates a ReadStore backed by db.
func NewReader(db DB) *Reader {
	return &Reader{
		CatalogRepository: NewCatalogRepository(db),
		faqs:              NewFAQRepository(db),
		regions:           NewRegionRepository(db),
	}
}

// ListFAQs returns every FAQ entry.
func (r *Reader) ListFAQs(ctx context.Context) ([]*FAQEntry, error) {
	return r.faqs.List(ctx)
}

// GetCurrentRegion returns the newest rule for region.
func (r *Reader) GetCurrentRegion(ctx context.Context, region string) (*RegionPriceRule, error) {
	return r.regions.GetCurrent(ctx, region)
}

// RetryConfig bounds the retrying reader.
type RetryConfig struct {
	MaxRetries      int
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
}

// RetryingReader retries idempotent reads on transient errors. Not-found and
// validation errors are returned immediately.
type RetryingReader struct {
	inner ReadStore
	cfg   RetryConfig
}

// NewRetryingReader wraps inner with bounded retries.
func NewRetryingReader(inner ReadStore, cfg RetryConfig) *RetryingReader {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &RetryingReader{inner: inner, cfg: cfg}
}

func retryRead[T any](ctx context.Context, r *RetryingReader, op string, fn func(context.Context) (T, error)) (T, error) {
	var result T

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialInterval
	policy.MaxInterval = 10 * r.cfg.InitialInterval
	policy.MaxElapsedTime = 0

	attempt := func() error {
		attemptCtx := ctx
		if r.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
			defer cancel()
		}

		v, err := fn(attemptCtx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(attempt, b); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return result, err
		}
		return result, domain.Persistence(op, err)
	}
	return result, nil
}

// FindModelByName implements CatalogReader.
func (r *RetryingReader) FindModelByName(ctx context.Context, name string) (*CatalogModel, error) {
	return retryRead(ctx, r, "find model", func(ctx context.Context) (*CatalogModel, error) {
		return r.inner.FindModelByName(ctx, name)
	})
}

// ListModels implements CatalogReader.
func (r *RetryingReader) ListModels(ctx context.Context) ([]*CatalogModel, error) {
	return retryRead(ctx, r, "list models", r.inner.ListModels)
}

// GetVariant implements CatalogReader.
func (r *RetryingReader) GetVariant(ctx context.Context, id uuid.UUID) (*CatalogVariant, error) {
	return retryRead(ctx, r, "get variant", func(ctx context.Context) (*CatalogVariant, error) {
		return r.inner.GetVariant(ctx, id)
	})
}

// ListVariants implements CatalogReader.
func (r *RetryingReader) ListVariants(ctx context.Context) ([]*CatalogVariant, error) {
	return retryRead(ctx, r, "list variants", r.inner.ListVariants)
}

// ListFAQs implements FAQReader.
func (r *RetryingReader) ListFAQs(ctx context.Context) ([]*FAQEntry, error) {
	return retryRead(ctx, r, "list faqs", r.inner.ListFAQs)
}

// GetCurrentRegion implements RegionReader.
func (r *RetryingReader) GetCurrentRegion(ctx context.Context, region string) (*RegionPriceRule, error) {
	return retryRead(ctx, r, "get region", func(ctx context.Context) (*RegionPriceRule, error) {
		return r.inner.GetCurrentRegion(ctx, region)
	})
}

// CachedReader memoizes full scans and point lookups in a cache.Client.
// Cache failures fall through to the inner reader.
type CachedReader struct {
	inner ReadStore
	cache cache.Client
	ttl   time.Duration
}

// NewCachedReader wraps inner with a read-through cache.
func NewCachedReader(inner ReadStore, c cache.Client, ttl time.Duration) *CachedReader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedReader{inner: inner, cache: c, ttl: ttl}
}

func readThrough[T any](ctx context.Context, r *CachedReader, key string, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if err := cache.GetJSON(ctx, r.cache, key, &cached); err == nil {
		return cached, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	_ = cache.SetJSON(ctx, r.cache, key, v, r.ttl)
	return v, nil
}

// FindModelByName implements CatalogReader. Substring lookups are not cached.
func (r *CachedReader) FindModelByName(ctx context.Context, name string) (*CatalogModel, error) {
	return r.inner.FindModelByName(ctx, name)
}

// ListModels implements CatalogReader.
func (r *CachedReader) ListModels(ctx context.Context) ([]*CatalogModel, error) {
	return readThrough(ctx, r, cache.CatalogKey("models"), r.inner.ListModels)
}

// GetVariant implements CatalogReader.
func (r *CachedReader) GetVariant(ctx context.Context, id uuid.UUID) (*CatalogVariant, error) {
	return readThrough(ctx, r, cache.CatalogKey("variant", id.String()), func(ctx context.Context) (*CatalogVariant, error) {
		return r.inner.GetVariant(ctx, id)
	})
}

// ListVariants implements CatalogReader.
func (r *CachedReader) ListVariants(ctx context.Context) ([]*CatalogVariant, error) {
	return readThrough(ctx, r, cache.CatalogKey("variants"), r.inner.ListVariants)
}

// ListFAQs implements FAQReader.
func (r *CachedReader) ListFAQs(ctx context.Context) ([]*FAQEntry, error) {
	return readThrough(ctx, r, cache.Key("faq", "all"), r.inner.ListFAQs)
}

// GetCurrentRegion implements RegionReader.
func (r *CachedReader) GetCurrentRegion(ctx context.Context, region string) (*RegionPriceRule, error) {
	return readThrough(ctx, r, cache.RegionKey(region), func(ctx context.Context) (*RegionPriceRule, error) {
		return r.inner.GetCurrentRegion(ctx, region)
	})
}

// Invalidate drops every cached catalog, FAQ and region entry.
func (r *CachedReader) Invalidate(ctx context.Context) error {
	for _, prefix := range []string{"catalog:", "faq:", "region:"} {
		if err := r.cache.DeleteByPrefix(ctx, prefix); err != nil {
			return fmt.Errorf("invalidate %s: %w", prefix, err)
		}
	}
	return nil
}
