package marketdata

import (
	"context"
	"sync"
	"time"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
)

// TickBuffer keeps the most recent streamed ticks per instrument so a cycle can
// evaluate every price seen since the last one, not just the latest.
type TickBuffer struct {
	mu    sync.RWMutex
	max   int
	ticks map[string][]models.PriceTick
}

func NewTickBuffer(maxPerInstrument int) *TickBuffer {
	if maxPerInstrument < 1 {
		maxPerInstrument = 1
	}
	return &TickBuffer{max: maxPerInstrument, ticks: make(map[string][]models.PriceTick)}
}

// Put appends a tick. Out-of-order ticks are inserted in place.
func (b *TickBuffer) Put(t models.PriceTick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.ticks[t.Instrument]
	i := len(ts)
	for i > 0 && ts[i-1].Timestamp.After(t.Timestamp) {
		i--
	}
	ts = append(ts, models.PriceTick{})
	copy(ts[i+1:], ts[i:])
	ts[i] = t
	if len(ts) > b.max {
		ts = append([]models.PriceTick(nil), ts[len(ts)-b.max:]...)
	}
	b.ticks[t.Instrument] = ts
}

func (b *TickBuffer) Ticks(_ context.Context, instrument string, since time.Time) ([]models.PriceTick, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.PriceTick
	for _, t := range b.ticks[instrument] {
		if t.Timestamp.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Fallback asks primary first and falls back to secondary when primary has no
// ticks or fails.
type Fallback struct {
	primary   domrepo.MarketData
	secondary domrepo.MarketData
}

func NewFallback(primary, secondary domrepo.MarketData) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Ticks(ctx context.Context, instrument string, since time.Time) ([]models.PriceTick, error) {
	ticks, err := f.primary.Ticks(ctx, instrument, since)
	if err == nil && len(ticks) > 0 {
		return ticks, nil
	}
	return f.secondary.Ticks(ctx, instrument, since)
}

var (
	_ domrepo.MarketData = (*TickBuffer)(nil)
	_ domrepo.MarketData = (*Fallback)(nil)
)
