package products

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

// Repository is the product persistence contract served by Store and CachedStore.
type Repository interface {
	GetAll(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p Product) (*Product, error)
	Update(ctx context.Context, id string, p Product) (*Product, error)
	Delete(ctx context.Context, id string) (*Product, error)
}

// CachedStore is a read-through Redis cache for single-product reads. Writes
// go to the wrapped repository first and then evict the cached entry. Cache
// failures degrade to the wrapped repository.
type CachedStore struct {
	next     Repository
	redis    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCachedStore wraps next with a Redis cache.
func NewCachedStore(next Repository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		next:     next,
		redis:    client,
		cacheTTL: ttl,
		logger:   logger,
	}
}

func cacheKey(id string) string { return "product:" + id }

func (s *CachedStore) GetAll(ctx context.Context) ([]Product, error) {
	return s.next.GetAll(ctx)
}

// GetByIDs bypasses the cache: order creation must see current existence.
func (s *CachedStore) GetByIDs(ctx context.Context, ids []string) ([]Product, error) {
	return s.next.GetByIDs(ctx, ids)
}

func (s *CachedStore) GetByID(ctx context.Context, id string) (*Product, error) {
	val, err := s.redis.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var p Product
		if jerr := json.Unmarshal(val, &p); jerr == nil {
			return &p, nil
		}
		logging.Warn(ctx, s.logger, "discarding undecodable cache entry", zap.String("product_id", id))
	case !errors.Is(err, redis.Nil):
		logging.Warn(ctx, s.logger, "product cache read failed", zap.String("product_id", id), zap.Error(err))
	}

	p, err := s.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, jerr := json.Marshal(p); jerr == nil {
		if serr := s.redis.Set(ctx, cacheKey(id), data, s.cacheTTL).Err(); serr != nil {
			logging.Warn(ctx, s.logger, "product cache write failed", zap.String("product_id", id), zap.Error(serr))
		}
	}
	return p, nil
}

func (s *CachedStore) Create(ctx context.Context, p Product) (*Product, error) {
	return s.next.Create(ctx, p)
}

func (s *CachedStore) Update(ctx context.Context, id string, p Product) (*Product, error) {
	updated, err := s.next.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, id)
	return updated, nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) (*Product, error) {
	deleted, err := s.next.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, id)
	return deleted, nil
}

func (s *CachedStore) evict(ctx context.Context, id string) {
	if err := s.redis.Del(ctx, cacheKey(id)).Err(); err != nil {
		logging.Warn(ctx, s.logger, "product cache evict failed", zap.String("product_id", id), zap.Error(err))
	}
}
