package repository

import (
	"context"
	"time"

	domrepo "SignalTrack/internal/domain/repository"
	"SignalTrack/pkg/cache"
)

// CacheLocker adapts a cache.Service lock to the domain Locker.
type CacheLocker struct {
	cache  cache.Service
	prefix string
}

func NewCacheLocker(c cache.Service, prefix string) *CacheLocker {
	return &CacheLocker{cache: c, prefix: prefix}
}

func (l *CacheLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.cache.TryLock(ctx, cache.Key(l.prefix, key), ttl)
}

func (l *CacheLocker) Unlock(ctx context.Context, key string) error {
	return l.cache.Unlock(ctx, cache.Key(l.prefix, key))
}

var _ domrepo.Locker = (*CacheLocker)(nil)
