package repository

import (
	"context"
	"time"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	"MMDiag/pkg/cache"
)

// CachedBaselineStore layers a cache over a durable BaselineStore. The cache
// is read-through and write-through; a miss or cache failure always falls
// back to the inner store, so the cache can be dropped without data loss.
type CachedBaselineStore struct {
	inner domrepo.BaselineStore
	cache cache.Service
	ttl   time.Duration
}

func NewCachedBaselineStore(inner domrepo.BaselineStore, c cache.Service, ttl time.Duration) *CachedBaselineStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedBaselineStore{inner: inner, cache: c, ttl: ttl}
}

func baselineKey(instrument string) string {
	return cache.GenerateKey("baseline", instrument)
}

func (s *CachedBaselineStore) Load(ctx context.Context, instrument string) (*models.Baseline, error) {
	var b models.Baseline
	if err := s.cache.Get(ctx, baselineKey(instrument), &b); err == nil {
		return &b, nil
	}
	// misses and cache failures both fall through to the inner store

	loaded, err := s.inner.Load(ctx, instrument)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, baselineKey(instrument), loaded, s.ttl)
	return loaded, nil
}

func (s *CachedBaselineStore) Save(ctx context.Context, b *models.Baseline) error {
	if err := s.inner.Save(ctx, b); err != nil {
		return err
	}
	_ = s.cache.Set(ctx, baselineKey(b.Instrument), b, s.ttl)
	return nil
}

func (s *CachedBaselineStore) Exists(ctx context.Context, instrument string) (bool, error) {
	if ok, err := s.cache.Exists(ctx, baselineKey(instrument)); err == nil && ok {
		return true, nil
	}
	return s.inner.Exists(ctx, instrument)
}

func (s *CachedBaselineStore) List(ctx context.Context) ([]string, error) {
	return s.inner.List(ctx)
}

var _ domrepo.BaselineStore = (*CachedBaselineStore)(nil)
