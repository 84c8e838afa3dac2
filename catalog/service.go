package catalog

import (
	"context"
	"encoding/json"
	"log/slog"

	model "github.com/jeffsasaki/store-admin/models"
)

type Store interface {
	ListProducts(ctx context.Context, storeID string, filter model.ProductFilter) ([]model.Product, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}

type Service struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewService wires the storefront listing. cache may be nil.
func NewService(store Store, cache Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func cacheKey(storeID string) string {
	return "products:" + storeID
}

// ListProducts returns the non-archived products of a store. Unfiltered
// listings are served from the cache when possible; cache errors only cost
// a database round-trip.
func (s *Service) ListProducts(ctx context.Context, storeID string, filter model.ProductFilter) ([]model.Product, error) {
	if s.cache == nil || !filter.Empty() {
		return s.store.ListProducts(ctx, storeID, filter)
	}

	key := cacheKey(storeID)
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("product cache read failed", "store_id", storeID, "err", err)
	}
	if ok {
		var products []model.Product
		if err := json.Unmarshal(cached, &products); err == nil {
			return products, nil
		}
		s.logger.Warn("discarding unreadable product cache entry", "store_id", storeID)
	}

	products, err := s.store.ListProducts(ctx, storeID, filter)
	if err != nil {
		return nil, err
	}

	js, err := json.Marshal(products)
	if err == nil {
		err = s.cache.Set(ctx, key, js)
	}
	if err != nil {
		s.logger.Warn("product cache write failed", "store_id", storeID, "err", err)
	}
	return products, nil
}

// Invalidate drops the cached listing of a store.
func (s *Service) Invalidate(ctx context.Context, storeID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey(storeID))
}
