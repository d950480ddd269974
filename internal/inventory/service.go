package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is the idempotency-record and read-cache backend. It is an
// optimization layer: the store's row lock is the correctness guarantee.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type RedisCache struct{ Rdb *redis.Client }

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.Rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.Rdb.Set(ctx, key, val, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Rdb.Del(ctx, keys...).Err()
}

// MutationResponse is what a reserve/release call returns, and exactly what a
// replay with the same idempotency key gets back.
type MutationResponse struct {
	Success        bool   `json:"success"`
	ProductID      string `json:"product_id"`
	RemainingStock int    `json:"remaining_stock"`
	Error          string `json:"error,omitempty"`
}

type Service struct {
	store Store
	cache Cache
	log   *zap.Logger
}

func NewService(store Store, cache Cache, log *zap.Logger) *Service {
	return &Service{store: store, cache: cache, log: log}
}

// Reserve applies an idempotent stock decrement. A replayed key returns the
// previously computed response unchanged; insufficient-stock failures are
// cached too, so a retry storm cannot pile onto the row lock.
func (s *Service) Reserve(ctx context.Context, productID string, qty int, orderID, idemKey string) (MutationResponse, error) {
	if err := validateMutation(productID, qty, orderID, idemKey); err != nil {
		return MutationResponse{}, err
	}
	key := fmt.Sprintf(redisx.KeyStockIdem, idemKey)
	if resp, ok := s.cachedResponse(ctx, key); ok {
		return resp, respErr(resp)
	}

	remaining, err := s.store.Reserve(ctx, productID, qty, orderID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			resp := MutationResponse{ProductID: productID, Error: err.Error()}
			s.cacheResponse(ctx, key, resp)
			return resp, err
		}
		return MutationResponse{}, err
	}

	resp := MutationResponse{Success: true, ProductID: productID, RemainingStock: remaining}
	s.invalidateProduct(ctx, productID)
	s.cacheResponse(ctx, key, resp)
	return resp, nil
}

// Release is the symmetric stock increment with the same idempotency
// discipline. No upper bound is checked against original capacity; the audit
// trail records before/after so an inflated release is detectable.
func (s *Service) Release(ctx context.Context, productID string, qty int, orderID, idemKey string) (MutationResponse, error) {
	if err := validateMutation(productID, qty, orderID, idemKey); err != nil {
		return MutationResponse{}, err
	}
	key := fmt.Sprintf(redisx.KeyStockIdem, idemKey)
	if resp, ok := s.cachedResponse(ctx, key); ok {
		return resp, respErr(resp)
	}

	remaining, err := s.store.Release(ctx, productID, qty, orderID)
	if err != nil {
		return MutationResponse{}, err
	}

	resp := MutationResponse{Success: true, ProductID: productID, RemainingStock: remaining}
	s.invalidateProduct(ctx, productID)
	s.cacheResponse(ctx, key, resp)
	return resp, nil
}

func (s *Service) Products(ctx context.Context, ids []string) ([]Product, error) {
	return s.store.Products(ctx, ids)
}

// Product serves single reads through the detail cache.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	key := fmt.Sprintf(redisx.KeyProductDetail, id)
	if v, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var p Product
		if json.Unmarshal([]byte(v), &p) == nil {
			return p, nil
		}
	}

	p, err := s.store.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := s.cache.Set(ctx, key, string(b), redisx.TTLProductCache); err != nil {
			s.log.Warn("product cache set failed", zap.Error(err), zap.String("product_id", id))
		}
	}
	return p, nil
}

func (s *Service) cachedResponse(ctx context.Context, key string) (MutationResponse, bool) {
	v, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			s.log.Warn("idempotency cache read failed", zap.Error(err))
		}
		return MutationResponse{}, false
	}
	var resp MutationResponse
	if err := json.Unmarshal([]byte(v), &resp); err != nil {
		return MutationResponse{}, false
	}
	return resp, true
}

func (s *Service) cacheResponse(ctx context.Context, key string, resp MutationResponse) {
	b, _ := json.Marshal(resp)
	if err := s.cache.Set(ctx, key, string(b), redisx.TTLIdempotency); err != nil {
		s.log.Warn("idempotency cache set failed", zap.Error(err))
	}
}

func (s *Service) invalidateProduct(ctx context.Context, productID string) {
	if err := s.cache.Del(ctx, fmt.Sprintf(redisx.KeyProductDetail, productID)); err != nil {
		s.log.Warn("product cache invalidation failed", zap.Error(err), zap.String("product_id", productID))
	}
}

func respErr(resp MutationResponse) error {
	if resp.Error != "" {
		return apperr.New(apperr.KindConflict, "%s", resp.Error)
	}
	return nil
}

func validateMutation(productID string, qty int, orderID, idemKey string) error {
	if productID == "" || orderID == "" || idemKey == "" {
		return apperr.New(apperr.KindValidation, "missing required fields")
	}
	if qty < 1 {
		return apperr.New(apperr.KindValidation, "quantity must be at least 1")
	}
	return nil
}
