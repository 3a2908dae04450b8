package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/yourusername/evaluation-api/internal/pkg/errors"
)

// releaseLockScript удаляет блокировку, только если ее значение совпадает с владельцем.
// Иначе истекшая и перехваченная блокировка была бы снята чужим экземпляром.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CacheRepo реализует repository.CacheRepository поверх Redis
type CacheRepo struct {
	client redis.UniversalClient
}

// NewCacheRepo создает репозиторий кеша
func NewCacheRepo(client redis.UniversalClient) (*CacheRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for CacheRepo")
	}
	return &CacheRepo{client: client}, nil
}

// Get получает строковое значение
func (r *CacheRepo) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: cache key %s", apperrors.ErrNotFound, key)
	}
	return val, err
}

// Set сохраняет значение
func (r *CacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete удаляет ключ
func (r *CacheRepo) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// GetJSON читает и разбирает JSON-значение
func (r *CacheRepo) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: cache key %s", apperrors.ErrNotFound, key)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("corrupted cache entry %s: %w", key, err)
	}
	return nil
}

// SetJSON сохраняет значение в JSON
func (r *CacheRepo) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", key, err)
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// AcquireLock берет блокировку через SET NX с TTL
func (r *CacheRepo) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock снимает блокировку владельца. false - блокировка уже истекла или принадлежит другому.
func (r *CacheRepo) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	deleted, err := releaseLockScript.Run(ctx, r.client, []string{key}, owner).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}
