package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransitionEvent struct {
	SignalID      string           `json:"signal_id"`
	Instrument    string           `json:"instrument"`
	OldState      State            `json:"old_state"`
	NewState      State            `json:"new_state"`
	ResolvedPrice *decimal.Decimal `json:"resolved_price,omitempty"`
	ResolvedAt    time.Time        `json:"resolved_at"`
}

type RetrainEvent struct {
	VersionID        int64     `json:"version_id"`
	Promoted         bool      `json:"promoted"`
	ValidationMetric float64   `json:"validation_metric"`
	Trigger          string    `json:"trigger"`
	Reason           string    `json:"reason,omitempty"`
	At               time.Time `json:"at"`
}

// RetrainOutcome reports what the retrain controller did during one call.
type RetrainOutcome struct {
	Trigger   string        `json:"trigger,omitempty"`
	Skipped   bool          `json:"skipped"`
	Reason    string        `json:"reason,omitempty"`
	Candidate *ModelVersion `json:"candidate,omitempty"`
	Promoted  bool          `json:"promoted"`
	Error     string        `json:"error,omitempty"`
}

type CycleSummary struct {
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
	Evaluated    int                  `json:"evaluated"`
	Resolved     int                  `json:"resolved"`
	StillPending int                  `json:"still_pending"`
	Errors       int                  `json:"errors"`
	Conflicts    int                  `json:"conflicts"`
	Unavailable  int                  `json:"unavailable"`
	ByState      map[State]int        `json:"by_state,omitempty"`
	Snapshot     *PerformanceSnapshot `json:"snapshot,omitempty"`
	Retrain      *RetrainOutcome      `json:"retrain,omitempty"`
	Messages     []string             `json:"messages,omitempty"`
}
