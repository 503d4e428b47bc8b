package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// State is the lifecycle state of a signal. Pending is the only non-terminal state.
type State string

const (
	StatePending   State = "pending"
	StateHitTarget State = "hit_target"
	StateHitStop   State = "hit_stop"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateHitTarget, StateHitStop, StateExpired, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) Terminal() bool {
	return s.Valid() && s != StatePending
}

// Decided reports whether the outcome counts towards the hit rate.
func (s State) Decided() bool {
	return s == StateHitTarget || s == StateHitStop
}

// Signal is a single directional trade recommendation and its resolution.
type Signal struct {
	ID          string          `json:"id"`
	Instrument  string          `json:"instrument"`
	Direction   Direction       `json:"direction"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`

	State         State            `json:"state"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
	ResolvedPrice *decimal.Decimal `json:"resolved_price,omitempty"`

	// Scanner-provided feature values at creation time, used for training.
	Features map[string]float64 `json:"features,omitempty"`

	LastPrice    *decimal.Decimal `json:"last_price,omitempty"`
	LastPriceAt  *time.Time       `json:"last_price_at,omitempty"`
	MaxFavorable decimal.Decimal  `json:"max_favorable"`
	MaxAdverse   decimal.Decimal  `json:"max_adverse"`
}

// Validate checks a signal submitted for creation.
func (s *Signal) Validate() error {
	var v ValidationError

	if s.ID == "" {
		v.Add("id", "is required")
	}
	if s.Instrument == "" {
		v.Add("instrument", "is required")
	}
	if !s.Direction.Valid() {
		v.Add("direction", "must be 'long' or 'short'")
	}
	if s.State != "" && s.State != StatePending {
		v.Add("state", "new signals must be pending")
	}
	if s.CreatedAt.IsZero() {
		v.Add("created_at", "is required")
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(s.CreatedAt) {
		v.Add("expires_at", "must be after created_at")
	}

	positive := true
	for _, p := range []struct {
		field string
		val   decimal.Decimal
	}{
		{"entry_price", s.EntryPrice},
		{"target_price", s.TargetPrice},
		{"stop_price", s.StopPrice},
	} {
		if !p.val.IsPositive() {
			v.Add(p.field, "must be positive")
			positive = false
		}
	}

	if positive {
		switch s.Direction {
		case DirectionLong:
			if !(s.TargetPrice.GreaterThan(s.EntryPrice) && s.EntryPrice.GreaterThan(s.StopPrice)) {
				v.Add("prices", "long requires target > entry > stop")
			}
		case DirectionShort:
			if !(s.TargetPrice.LessThan(s.EntryPrice) && s.EntryPrice.LessThan(s.StopPrice)) {
				v.Add("prices", "short requires target < entry < stop")
			}
		}
	}

	if v.Empty() {
		return nil
	}
	return &v
}

// Return is the signed fractional return at the resolved price, negated for shorts.
// Signals without a resolved price return zero.
func (s *Signal) Return() decimal.Decimal {
	if s.ResolvedPrice == nil {
		return decimal.Zero
	}
	return s.move(*s.ResolvedPrice)
}

func (s *Signal) move(price decimal.Decimal) decimal.Decimal {
	if s.EntryPrice.IsZero() {
		return decimal.Zero
	}
	r := price.Sub(s.EntryPrice).Div(s.EntryPrice)
	if s.Direction == DirectionShort {
		return r.Neg()
	}
	return r
}

// Excursion folds an observed price into the favorable/adverse extremes.
func (s *Signal) Excursion(price decimal.Decimal) (favorable, adverse decimal.Decimal) {
	m := s.move(price)
	favorable, adverse = s.MaxFavorable, s.MaxAdverse
	if m.GreaterThan(favorable) {
		favorable = m
	}
	if m.Neg().GreaterThan(adverse) {
		adverse = m.Neg()
	}
	return favorable, adverse
}

// Expired reports whether the signal has an expiry at or before now.
func (s *Signal) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// ObservedSince is the point after which new ticks are relevant to the signal.
func (s *Signal) ObservedSince() time.Time {
	if s.LastPriceAt != nil {
		return *s.LastPriceAt
	}
	return s.CreatedAt
}

func (s *Signal) Clone() *Signal {
	if s == nil {
		return nil
	}
	c := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		c.ExpiresAt = &t
	}
	if s.ResolvedAt != nil {
		t := *s.ResolvedAt
		c.ResolvedAt = &t
	}
	if s.ResolvedPrice != nil {
		p := *s.ResolvedPrice
		c.ResolvedPrice = &p
	}
	if s.LastPrice != nil {
		p := *s.LastPrice
		c.LastPrice = &p
	}
	if s.LastPriceAt != nil {
		t := *s.LastPriceAt
		c.LastPriceAt = &t
	}
	if s.Features != nil {
		c.Features = make(map[string]float64, len(s.Features))
		for k, v := range s.Features {
			c.Features[k] = v
		}
	}
	return &c
}

// Observation is a price excursion update for a pending signal.
type Observation struct {
	Price        decimal.Decimal
	At           time.Time
	MaxFavorable decimal.Decimal
	MaxAdverse   decimal.Decimal
}

// PriceTick is one market data point for an instrument.
type PriceTick struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}
