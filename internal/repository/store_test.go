package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	"SignalTrack/pkg/cache"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func signal(id string, created time.Time) *models.Signal {
	exp := created.Add(time.Hour)
	return &models.Signal{
		ID:          id,
		Instrument:  "BTCUSDT",
		Direction:   models.DirectionLong,
		EntryPrice:  decimal.RequireFromString("100"),
		TargetPrice: decimal.RequireFromString("110"),
		StopPrice:   decimal.RequireFromString("95"),
		CreatedAt:   created,
		ExpiresAt:   &exp,
		State:       models.StatePending,
		Features:    map[string]float64{"rsi": 31.5},
	}
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, st domrepo.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("bolt", func(t *testing.T) {
		st, err := NewBoltStore(filepath.Join(t.TempDir(), "data", "sigtrack.db"), time.Second)
		if err != nil {
			t.Fatalf("open bolt: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		fn(t, st)
	})
}

func TestStoreCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, st domrepo.Store) {
		ctx := context.Background()
		if err := st.Create(ctx, signal("a", base)); err != nil {
			t.Fatalf("create: %v", err)
		}
		err := st.Create(ctx, signal("a", base))
		var dup *models.DuplicateSignalError
		if !errors.As(err, &dup) {
			t.Fatalf("duplicate create: %v", err)
		}

		got, err := st.Get(ctx, "a")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.State != models.StatePending || !got.EntryPrice.Equal(decimal.RequireFromString("100")) || got.Features["rsi"] != 31.5 {
			t.Fatalf("round trip lost data: %+v", got)
		}
		if _, err := st.Get(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("missing get: %v", err)
		}
	})
}

func TestStoreTransitionOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, st domrepo.Store) {
		ctx := context.Background()
		_ = st.Create(ctx, signal("a", base))
		_ = st.Create(ctx, signal("b", base.Add(time.Minute)))

		s, err := st.Transition(ctx, "a", models.StateHitTarget, base.Add(10*time.Minute), price("111"), nil)
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if s.State != models.StateHitTarget || !s.ResolvedPrice.Equal(decimal.RequireFromString("111")) {
			t.Fatalf("transitioned signal: %+v", s)
		}

		_, err = st.Transition(ctx, "a", models.StateHitStop, base.Add(11*time.Minute), price("94"), nil)
		var ite *models.InvalidTransitionError
		if !errors.As(err, &ite) || ite.Current != models.StateHitTarget {
			t.Fatalf("second transition: %v", err)
		}
		if _, err := st.Transition(ctx, "b", models.StatePending, base, nil, nil); !errors.As(err, &ite) {
			t.Fatalf("pending is not a terminal target: %v", err)
		}

		pending, _ := st.ListPending(ctx)
		if len(pending) != 1 || pending[0].ID != "b" {
			t.Fatalf("pending = %v", pending)
		}
		resolved, _ := st.ListResolvedSince(ctx, base)
		if len(resolved) != 1 || resolved[0].ID != "a" {
			t.Fatalf("resolved = %v", resolved)
		}
		if resolved, _ := st.ListResolvedSince(ctx, base.Add(11*time.Minute)); len(resolved) != 0 {
			t.Fatalf("since filter ignored: %v", resolved)
		}
	})
}

func TestStoreConcurrentTransitions(t *testing.T) {
	forEachStore(t, func(t *testing.T, st domrepo.Store) {
		ctx := context.Background()
		_ = st.Create(ctx, signal("a", base))

		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				to := models.StateHitTarget
				if i%2 == 1 {
					to = models.StateHitStop
				}
				if _, err := st.Transition(ctx, "a", to, base.Add(time.Minute), price("100"), nil); err == nil {
					won.Add(1)
				}
			}(i)
		}
		wg.Wait()
		if won.Load() != 1 {
			t.Fatalf("%d transitions succeeded", won.Load())
		}
	})
}

func TestStoreObservation(t *testing.T) {
	forEachStore(t, func(t *testing.T, st domrepo.Store) {
		ctx := context.Background()
		_ = st.Create(ctx, signal("a", base))

		obs := models.Observation{Price: decimal.RequireFromString("104"), At: base.Add(10 * time.Minute),
			MaxFavorable: decimal.RequireFromString("0.04"), MaxAdverse: decimal.RequireFromString("0.02")}
		if err := st.RecordObservation(ctx, "a", obs); err != nil {
			t.Fatalf("observe: %v", err)
		}
		older := models.Observation{Price: decimal.RequireFromString("99"), At: base.Add(5 * time.Minute),
			MaxFavorable: decimal.RequireFromString("0.01"), MaxAdverse: decimal.RequireFromString("0.03")}
		if err := st.RecordObservation(ctx, "a", older); err != nil {
			t.Fatalf("observe older: %v", err)
		}

		s, _ := st.Get(ctx, "a")
		if !s.LastPrice.Equal(decimal.RequireFromString("104")) || !s.LastPriceAt.Equal(base.Add(10*time.Minute)) {
			t.Fatalf("last price regressed: %v at %v", s.LastPrice, s.LastPriceAt)
		}
		if !s.MaxFavorable.Equal(decimal.RequireFromString("0.04")) || !s.MaxAdverse.Equal(decimal.RequireFromString("0.03")) {
			t.Fatalf("excursions fav=%v adv=%v", s.MaxFavorable, s.MaxAdverse)
		}

		_, _ = st.Transition(ctx, "a", models.StateExpired, base.Add(time.Hour), nil, nil)
		var ite *models.InvalidTransitionError
		if err := st.RecordObservation(ctx, "a", obs); !errors.As(err, &ite) {
			t.Fatalf("observation on resolved signal: %v", err)
		}
	})
}

func TestStoreModelPromotion(t *testing.T) {
	forEachStore(t, func(t *testing.T, st domrepo.Store) {
		ctx := context.Background()
		if _, err := st.ActiveModel(ctx); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("empty active: %v", err)
		}
		if _, err := st.LatestModel(ctx); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("empty latest: %v", err)
		}

		v1, _ := st.SaveCandidate(ctx, &models.ModelVersion{TrainedAt: base, ValidationMetric: 0.6, Artifact: []byte("w1")})
		v2, _ := st.SaveCandidate(ctx, &models.ModelVersion{TrainedAt: base.Add(time.Hour), ValidationMetric: 0.7})
		if v1 != 1 || v2 != 2 {
			t.Fatalf("version ids %d %d", v1, v2)
		}

		if err := st.Promote(ctx, v1, 0, base); err != nil {
			t.Fatalf("promote v1: %v", err)
		}
		if err := st.Promote(ctx, v2, 0, base.Add(time.Hour)); !errors.Is(err, models.ErrActiveChanged) {
			t.Fatalf("stale expected active: %v", err)
		}
		if err := st.Promote(ctx, v2, v1, base.Add(time.Hour)); err != nil {
			t.Fatalf("promote v2: %v", err)
		}
		if err := st.Promote(ctx, v1, v2, base.Add(2*time.Hour)); err == nil {
			t.Fatalf("retired model promoted again")
		}

		active, _ := st.ActiveModel(ctx)
		if active.VersionID != v2 || active.PromotedAt == nil {
			t.Fatalf("active = %+v", active)
		}
		latest, _ := st.LatestModel(ctx)
		if latest.VersionID != v2 {
			t.Fatalf("latest = %d", latest.VersionID)
		}
		all, _ := st.ListModels(ctx)
		if len(all) != 2 || all[0].Status != models.ModelRetired || string(all[0].Artifact) != "w1" || all[1].Status != models.ModelActive {
			t.Fatalf("history = %+v", all)
		}
	})
}

func TestStoreSnapshotsNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, st domrepo.Store) {
		ctx := context.Background()
		for i := 0; i < 4; i++ {
			rate := float64(i) / 10
			if err := st.SaveSnapshot(ctx, &models.PerformanceSnapshot{ComputedAt: base.Add(time.Duration(i) * time.Hour), HitRate: &rate}); err != nil {
				t.Fatalf("save: %v", err)
			}
		}
		snaps, _ := st.LatestSnapshots(ctx, 2)
		if len(snaps) != 2 || snaps[0].Seq != 4 || snaps[1].Seq != 3 {
			t.Fatalf("latest = %+v", snaps)
		}
		if *snaps[0].HitRate != 0.3 {
			t.Fatalf("hit rate = %v", *snaps[0].HitRate)
		}
		if all, _ := st.LatestSnapshots(ctx, 0); len(all) != 4 {
			t.Fatalf("all = %d", len(all))
		}
	})
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigtrack.db")
	ctx := context.Background()

	st, err := NewBoltStore(path, time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = st.Create(ctx, signal("a", base))
	_ = st.Create(ctx, signal("b", base))
	_, _ = st.Transition(ctx, "a", models.StateHitStop, base.Add(time.Minute), price("94"), nil)
	id, _ := st.SaveCandidate(ctx, &models.ModelVersion{TrainedAt: base})
	_ = st.Promote(ctx, id, 0, base)
	_ = st.Close()

	st, err = NewBoltStore(path, time.Second)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	pending, _ := st.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != "b" {
		t.Fatalf("pending after reopen = %v", pending)
	}
	a, _ := st.Get(ctx, "a")
	if a.State != models.StateHitStop || !a.ResolvedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("resolved after reopen = %+v", a)
	}
	if active, err := st.ActiveModel(ctx); err != nil || active.VersionID != id {
		t.Fatalf("active after reopen: %v %v", active, err)
	}
}

func TestCacheLockerPrefixesKeys(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	l := NewCacheLocker(mc, "sigtrack")
	ok, err := l.TryLock(ctx, "retrain", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: %v %v", ok, err)
	}
	if ok, _ := mc.TryLock(ctx, "sigtrack:retrain", time.Minute); ok {
		t.Fatalf("locker should hold the prefixed key")
	}
	if ok, _ := l.TryLock(ctx, "retrain", time.Minute); ok {
		t.Fatalf("lock acquired twice")
	}
	_ = l.Unlock(ctx, "retrain")
	if ok, _ := l.TryLock(ctx, "retrain", time.Minute); !ok {
		t.Fatalf("lock not released")
	}
}

func TestStoreTransitionFoldsObservation(t *testing.T) {
	forEachStore(t, func(t *testing.T, st domrepo.Store) {
		ctx := context.Background()
		_ = st.Create(ctx, signal("a", base))

		obs := &models.Observation{
			Price:        decimal.RequireFromString("111"),
			At:           base.Add(10 * time.Minute),
			MaxFavorable: decimal.RequireFromString("0.11"),
			MaxAdverse:   decimal.RequireFromString("0.02"),
		}
		s, err := st.Transition(ctx, "a", models.StateHitTarget, obs.At, price("111"), obs)
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		got, _ := st.Get(ctx, "a")
		for _, sig := range []*models.Signal{s, got} {
			if sig.State != models.StateHitTarget || !sig.LastPriceAt.Equal(obs.At) {
				t.Fatalf("signal = %+v", sig)
			}
			if !sig.MaxFavorable.Equal(obs.MaxFavorable) || !sig.MaxAdverse.Equal(obs.MaxAdverse) {
				t.Fatalf("excursions fav=%v adv=%v", sig.MaxFavorable, sig.MaxAdverse)
			}
		}

		// a rejected transition leaves the observation unwritten
		_ = st.Create(ctx, signal("b", base))
		_, _ = st.Transition(ctx, "b", models.StateCancelled, base.Add(time.Minute), nil, nil)
		if _, err := st.Transition(ctx, "b", models.StateHitTarget, obs.At, price("111"), obs); err == nil {
			t.Fatalf("expected conflict")
		}
		b, _ := st.Get(ctx, "b")
		if b.LastPriceAt != nil || !b.MaxFavorable.IsZero() {
			t.Fatalf("observation leaked into rejected transition: %+v", b)
		}
	})
}
