package repository

import (
	"context"
	"time"
)

// CacheRepository - кеш оценок и распределенные блокировки отправки.
// Get и GetJSON возвращают apperrors.ErrNotFound для отсутствующего ключа.
type CacheRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// AcquireLock ставит ключ, только если его нет. owner сохраняется значением ключа.
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// ReleaseLock удаляет ключ, только если он принадлежит owner
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
}
