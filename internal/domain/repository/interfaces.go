package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
)

// SignalStore is the only mutation point for signal state. Transition and
// RecordObservation apply only while the signal is still pending. A non-nil obs
// passed to Transition is applied in the same write as the state change.
type SignalStore interface {
	Create(ctx context.Context, s *models.Signal) error
	Get(ctx context.Context, id string) (*models.Signal, error)
	ListPending(ctx context.Context) ([]*models.Signal, error)
	ListResolvedSince(ctx context.Context, since time.Time) ([]*models.Signal, error)
	Transition(ctx context.Context, id string, to models.State, resolvedAt time.Time, resolvedPrice *decimal.Decimal, obs *models.Observation) (*models.Signal, error)
	RecordObservation(ctx context.Context, id string, obs models.Observation) error
}

// ModelStore keeps every model version. At most one version is active; Promote
// demotes the previous active version in the same write.
type ModelStore interface {
	// SaveCandidate assigns the next version id and stores v as a candidate.
	SaveCandidate(ctx context.Context, v *models.ModelVersion) (int64, error)
	// Promote activates versionID only if the current active version is still
	// expectedActive (0 for none). Otherwise it returns models.ErrActiveChanged.
	Promote(ctx context.Context, versionID, expectedActive int64, at time.Time) error
	ActiveModel(ctx context.Context) (*models.ModelVersion, error)
	LatestModel(ctx context.Context) (*models.ModelVersion, error)
	ListModels(ctx context.Context) ([]*models.ModelVersion, error)
}

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s *models.PerformanceSnapshot) error
	// LatestSnapshots returns up to n snapshots, newest first.
	LatestSnapshots(ctx context.Context, n int) ([]*models.PerformanceSnapshot, error)
}

type Store interface {
	SignalStore
	ModelStore
	SnapshotStore
	Close() error
}

// MarketData returns ticks for an instrument observed after since, oldest first.
// An empty result or a models.ErrDataUnavailable error means no data this time.
type MarketData interface {
	Ticks(ctx context.Context, instrument string, since time.Time) ([]models.PriceTick, error)
}

type EventPublisher interface {
	PublishTransition(ctx context.Context, e models.TransitionEvent) error
	PublishRetrain(ctx context.Context, e models.RetrainEvent) error
	Close() error
}

// Archive is an append-only history of resolved signals and snapshots.
type Archive interface {
	Init(ctx context.Context) error
	ArchiveSignals(ctx context.Context, signals []*models.Signal) error
	ArchiveSnapshot(ctx context.Context, s *models.PerformanceSnapshot) error
	Health(ctx context.Context) error
	Close() error
}

// Locker is a system-wide mutual exclusion lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Metrics interface {
	RecordCycle(summary *models.CycleSummary, seconds float64)
	RecordTransition(from, to models.State)
	RecordRetrain(outcome string)
	RecordHitRate(rate float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
