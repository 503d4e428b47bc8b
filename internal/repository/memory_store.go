package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
	"SignalTrack/internal/domain/repository"
)

// MemoryStore is an in-process Store. Every method takes the lock for its whole
// read-check-write, so transitions are atomic and reads never see partial records.
type MemoryStore struct {
	mu          sync.RWMutex
	signals     map[string]*models.Signal
	versions    []*models.ModelVersion
	snapshots   []*models.PerformanceSnapshot
	nextVersion int64
	nextSeq     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[string]*models.Signal)}
}

func (m *MemoryStore) Create(_ context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.signals[s.ID]; ok {
		return &models.DuplicateSignalError{ID: s.ID}
	}
	m.signals[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListPending(_ context.Context) ([]*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Signal, 0)
	for _, s := range m.signals {
		if s.State == models.StatePending {
			out = append(out, s.Clone())
		}
	}
	sortPending(out)
	return out, nil
}

func (m *MemoryStore) ListResolvedSince(_ context.Context, since time.Time) ([]*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Signal, 0)
	for _, s := range m.signals {
		if s.State.Terminal() && s.ResolvedAt != nil && !s.ResolvedAt.Before(since) {
			out = append(out, s.Clone())
		}
	}
	sortResolved(out)
	return out, nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, to models.State, resolvedAt time.Time, resolvedPrice *decimal.Decimal, obs *models.Observation) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	c := s.Clone()
	if err := applyTransition(c, to, resolvedAt, resolvedPrice, obs); err != nil {
		return nil, err
	}
	m.signals[id] = c
	return c.Clone(), nil
}

func (m *MemoryStore) RecordObservation(_ context.Context, id string, obs models.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[id]
	if !ok {
		return fmt.Errorf("signal %s: %w", id, models.ErrNotFound)
	}
	return applyObservation(s, obs)
}

func (m *MemoryStore) SaveCandidate(_ context.Context, v *models.ModelVersion) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextVersion++
	c := v.Clone()
	c.VersionID = m.nextVersion
	c.Status = models.ModelCandidate
	m.versions = append(m.versions, c)
	return c.VersionID, nil
}

func (m *MemoryStore) Promote(_ context.Context, versionID, expectedActive int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target, active *models.ModelVersion
	for _, v := range m.versions {
		if v.VersionID == versionID {
			target = v
		}
		if v.Status == models.ModelActive {
			active = v
		}
	}
	return applyPromotion(target, active, versionID, expectedActive, at)
}

func (m *MemoryStore) ActiveModel(_ context.Context) (*models.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.versions {
		if v.Status == models.ModelActive {
			return v.Clone(), nil
		}
	}
	return nil, fmt.Errorf("active model: %w", models.ErrNotFound)
}

func (m *MemoryStore) LatestModel(_ context.Context) (*models.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.versions) == 0 {
		return nil, fmt.Errorf("latest model: %w", models.ErrNotFound)
	}
	return m.versions[len(m.versions)-1].Clone(), nil
}

func (m *MemoryStore) ListModels(_ context.Context) ([]*models.ModelVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ModelVersion, 0, len(m.versions))
	for _, v := range m.versions {
		out = append(out, v.Clone())
	}
	return out, nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, s *models.PerformanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	s.Seq = m.nextSeq
	m.snapshots = append(m.snapshots, s.Clone())
	return nil
}

func (m *MemoryStore) LatestSnapshots(_ context.Context, n int) ([]*models.PerformanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || n > len(m.snapshots) {
		n = len(m.snapshots)
	}
	out := make([]*models.PerformanceSnapshot, 0, n)
	for i := len(m.snapshots) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.snapshots[i].Clone())
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// applyTransition mutates s in place if it is still pending, folding in obs
// first when given.
func applyTransition(s *models.Signal, to models.State, at time.Time, price *decimal.Decimal, obs *models.Observation) error {
	if s.State != models.StatePending || !to.Terminal() {
		return &models.InvalidTransitionError{ID: s.ID, Current: s.State, To: to}
	}
	if obs != nil {
		if err := applyObservation(s, *obs); err != nil {
			return err
		}
	}
	s.State = to
	t := at
	s.ResolvedAt = &t
	if price != nil {
		p := *price
		s.ResolvedPrice = &p
	} else {
		s.ResolvedPrice = nil
	}
	return nil
}

func applyObservation(s *models.Signal, obs models.Observation) error {
	if s.State != models.StatePending {
		return &models.InvalidTransitionError{ID: s.ID, Current: s.State, To: models.StatePending}
	}
	if s.LastPriceAt == nil || !obs.At.Before(*s.LastPriceAt) {
		p, t := obs.Price, obs.At
		s.LastPrice, s.LastPriceAt = &p, &t
	}
	s.MaxFavorable = decimal.Max(s.MaxFavorable, obs.MaxFavorable)
	s.MaxAdverse = decimal.Max(s.MaxAdverse, obs.MaxAdverse)
	return nil
}

// applyPromotion swaps active for target. Both pointers are mutated in place.
func applyPromotion(target, active *models.ModelVersion, versionID, expectedActive int64, at time.Time) error {
	if target == nil {
		return fmt.Errorf("model v%d: %w", versionID, models.ErrNotFound)
	}
	if target.Status != models.ModelCandidate {
		return fmt.Errorf("model v%d is %s, not a candidate", versionID, target.Status)
	}
	var activeID int64
	if active != nil {
		activeID = active.VersionID
	}
	if activeID != expectedActive {
		return fmt.Errorf("expected active v%d, found v%d: %w", expectedActive, activeID, models.ErrActiveChanged)
	}
	if active != nil {
		active.Status = models.ModelRetired
		t := at
		active.RetiredAt = &t
	}
	target.Status = models.ModelActive
	t := at
	target.PromotedAt = &t
	return nil
}

func sortPending(ss []*models.Signal) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].CreatedAt.Equal(ss[j].CreatedAt) {
			return ss[i].CreatedAt.Before(ss[j].CreatedAt)
		}
		return ss[i].ID < ss[j].ID
	})
}

func sortResolved(ss []*models.Signal) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].ResolvedAt.Equal(*ss[j].ResolvedAt) {
			return ss[i].ResolvedAt.Before(*ss[j].ResolvedAt)
		}
		return ss[i].ID < ss[j].ID
	})
}

var _ repository.Store = (*MemoryStore)(nil)
