package marketdata

import (
	"context"
	"errors"
	"time"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	"SignalTrack/pkg/cache"
	"SignalTrack/pkg/logger"
)

// CachedProvider serves the last fetched price from a shared cache while it is
// younger than ttl, so overlapping cycles and processes do not refetch quotes.
type CachedProvider struct {
	cache cache.Service
	next  domrepo.MarketData
	ttl   time.Duration
	log   *logger.Logger
	now   func() time.Time
}

func NewCachedProvider(c cache.Service, next domrepo.MarketData, ttl time.Duration, log *logger.Logger) *CachedProvider {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedProvider{cache: c, next: next, ttl: ttl, log: log, now: time.Now}
}

func priceKey(instrument string) string {
	return cache.Key("price", instrument)
}

func (p *CachedProvider) Ticks(ctx context.Context, instrument string, since time.Time) ([]models.PriceTick, error) {
	var tick models.PriceTick
	err := p.cache.Get(ctx, priceKey(instrument), &tick)
	switch {
	case err == nil && p.now().Sub(tick.Timestamp) <= p.ttl:
		if tick.Timestamp.After(since) {
			return []models.PriceTick{tick}, nil
		}
		return nil, nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		p.log.Warn("price cache read failed", logger.String("instrument", instrument), logger.Error(err))
	}

	ticks, err := p.next.Ticks(ctx, instrument, since)
	if err != nil {
		return nil, err
	}
	if n := len(ticks); n > 0 {
		p.Put(ctx, ticks[n-1])
	}
	return ticks, nil
}

// Put stores a tick as the latest cached price.
func (p *CachedProvider) Put(ctx context.Context, t models.PriceTick) {
	if err := p.cache.Set(ctx, priceKey(t.Instrument), t, p.ttl); err != nil {
		p.log.Warn("price cache write failed", logger.String("instrument", t.Instrument), logger.Error(err))
	}
}

var _ domrepo.MarketData = (*CachedProvider)(nil)
