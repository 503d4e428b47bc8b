package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceSnapshot aggregates resolved signals over a window. Snapshots are
// superseded by newer ones, never merged.
type PerformanceSnapshot struct {
	Seq         uint64    `json:"seq"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ComputedAt  time.Time `json:"computed_at"`

	SampleCount int `json:"sample_count"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Expired     int `json:"expired"`
	Cancelled   int `json:"cancelled"`

	// HitRate is nil when no signal resolved at target or stop.
	HitRate     *float64        `json:"hit_rate"`
	MeanReturn  decimal.Decimal `json:"mean_return"`
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`

	ByInstrument map[string]*InstrumentStats `json:"by_instrument,omitempty"`
}

type InstrumentStats struct {
	SampleCount int             `json:"sample_count"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	HitRate     *float64        `json:"hit_rate"`
	MeanReturn  decimal.Decimal `json:"mean_return"`
}

// BelowFloor reports whether the snapshot has a defined hit rate under floor.
func (p *PerformanceSnapshot) BelowFloor(floor float64) bool {
	return p != nil && p.HitRate != nil && *p.HitRate < floor
}

func (p *PerformanceSnapshot) Clone() *PerformanceSnapshot {
	if p == nil {
		return nil
	}
	c := *p
	if p.HitRate != nil {
		h := *p.HitRate
		c.HitRate = &h
	}
	if p.ByInstrument != nil {
		c.ByInstrument = make(map[string]*InstrumentStats, len(p.ByInstrument))
		for k, v := range p.ByInstrument {
			s := *v
			c.ByInstrument[k] = &s
		}
	}
	return &c
}
