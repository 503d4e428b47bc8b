package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Requests for the signal HTTP endpoints. Defined in domain for consistency and reuse.

type CreateSignalRequest struct {
	ID          string             `json:"id"`
	Instrument  string             `json:"instrument" validate:"required"`
	Direction   string             `json:"direction" validate:"required,oneof=long short"`
	EntryPrice  decimal.Decimal    `json:"entry_price" validate:"gt=0"`
	TargetPrice decimal.Decimal    `json:"target_price" validate:"gt=0"`
	StopPrice   decimal.Decimal    `json:"stop_price" validate:"gt=0"`
	CreatedAt   *time.Time         `json:"created_at"`
	ExpiresAt   *time.Time         `json:"expires_at"`
	Features    map[string]float64 `json:"features"`
}

// ToSignal maps the request to a pending signal. Missing id/created_at are
// filled in by the tracker.
func (r *CreateSignalRequest) ToSignal() *Signal {
	s := &Signal{
		ID:          r.ID,
		Instrument:  r.Instrument,
		Direction:   Direction(r.Direction),
		EntryPrice:  r.EntryPrice,
		TargetPrice: r.TargetPrice,
		StopPrice:   r.StopPrice,
		ExpiresAt:   r.ExpiresAt,
		State:       StatePending,
		Features:    r.Features,
	}
	if r.CreatedAt != nil {
		s.CreatedAt = *r.CreatedAt
	}
	return s
}

type SignalIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type ListSignalsRequest struct {
	State string `query:"state" default:"pending" validate:"oneof=pending resolved"`
	Since string `query:"since" default:"720h"`
}

type PerformanceRequest struct {
	Window string `query:"window" default:"720h"`
}
