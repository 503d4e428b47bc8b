package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	"SignalTrack/pkg/logger"
)

type TrackerConfig struct {
	PerformanceWindow time.Duration
	DefaultSignalTTL  time.Duration
	FetchTimeout      time.Duration
	MaxConcurrency    int
}

// Tracker runs tracking cycles: evaluate pending signals against fresh market
// data, persist resolutions, recompute performance and consult the retrain
// controller. Cycles may overlap; the store's conditional transition keeps
// every signal resolved at most once.
type Tracker struct {
	store     domrepo.Store
	market    domrepo.MarketData
	retrain   *RetrainController
	publisher domrepo.EventPublisher
	archive   domrepo.Archive
	metrics   domrepo.Metrics
	log       *logger.Logger
	cfg       TrackerConfig
	now       func() time.Time
}

func NewTracker(
	store domrepo.Store,
	market domrepo.MarketData,
	retrain *RetrainController,
	publisher domrepo.EventPublisher,
	archive domrepo.Archive,
	metrics domrepo.Metrics,
	log *logger.Logger,
	cfg TrackerConfig,
) *Tracker {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Tracker{
		store:     store,
		market:    market,
		retrain:   retrain,
		publisher: publisher,
		archive:   archive,
		metrics:   metrics,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock replaces the tracker's time source.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

type instrumentResult struct {
	resolved    []*models.Signal
	evaluated   int
	pending     int
	errors      int
	conflicts   int
	unavailable int
	messages    []string
}

// RunCycle performs one tracking cycle. The only returned error is a failure to
// load pending signals; everything else is counted in the summary.
func (t *Tracker) RunCycle(ctx context.Context) (*models.CycleSummary, error) {
	start := time.Now()
	now := t.now()
	sum := &models.CycleSummary{StartedAt: now, ByState: map[models.State]int{}}

	pending, err := t.store.ListPending(ctx)
	if err != nil {
		t.metrics.RecordError("list_pending")
		return nil, fmt.Errorf("list pending: %w", err)
	}

	groups := map[string][]*models.Signal{}
	for _, s := range pending {
		groups[s.Instrument] = append(groups[s.Instrument], s)
	}
	instruments := make([]string, 0, len(groups))
	for inst := range groups {
		instruments = append(instruments, inst)
	}
	sort.Strings(instruments)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		sem      = make(chan struct{}, t.cfg.MaxConcurrency)
		resolved []*models.Signal
	)
	for _, inst := range instruments {
		wg.Add(1)
		sem <- struct{}{}
		go func(inst string, sigs []*models.Signal) {
			defer wg.Done()
			defer func() { <-sem }()

			r := t.trackInstrument(ctx, inst, sigs, now)

			mu.Lock()
			defer mu.Unlock()
			resolved = append(resolved, r.resolved...)
			sum.Evaluated += r.evaluated
			sum.StillPending += r.pending
			sum.Errors += r.errors
			sum.Conflicts += r.conflicts
			sum.Unavailable += r.unavailable
			sum.Messages = append(sum.Messages, r.messages...)
		}(inst, groups[inst])
	}
	wg.Wait()

	sum.Resolved = len(resolved)
	for _, s := range resolved {
		sum.ByState[s.State]++
	}

	if len(resolved) > 0 {
		SortResolved(resolved)
		if t.archive != nil {
			if err := t.archive.ArchiveSignals(ctx, resolved); err != nil {
				t.log.Warn("archive resolved signals failed", logger.Error(err))
				t.metrics.RecordError("archive_signals")
			}
		}

		snap, err := t.recordSnapshot(ctx, now)
		if err != nil {
			t.log.Error("snapshot failed", logger.Error(err))
			t.metrics.RecordError("snapshot")
			sum.Errors++
			sum.Messages = append(sum.Messages, err.Error())
		}
		sum.Snapshot = snap
	}

	if t.retrain != nil {
		sum.Retrain = t.retrain.MaybeRetrain(ctx, now)
	}

	sum.FinishedAt = t.now()
	t.metrics.RecordCycle(sum, time.Since(start).Seconds())
	t.log.Info("tracking cycle complete",
		logger.Int("evaluated", sum.Evaluated),
		logger.Int("resolved", sum.Resolved),
		logger.Int("still_pending", sum.StillPending),
		logger.Int("errors", sum.Errors),
		logger.Int("conflicts", sum.Conflicts),
		logger.Int("unavailable", sum.Unavailable),
		logger.Any("by_state", sum.ByState),
		logger.Duration("took", time.Since(start)),
	)
	return sum, nil
}

func (t *Tracker) trackInstrument(ctx context.Context, inst string, sigs []*models.Signal, now time.Time) instrumentResult {
	var r instrumentResult
	log := t.log.With(logger.String("instrument", inst))

	since := sigs[0].ObservedSince()
	for _, s := range sigs[1:] {
		if o := s.ObservedSince(); o.Before(since) {
			since = o
		}
	}

	ticks, err := t.fetch(ctx, inst, since)
	fetchFailed := err != nil && !errors.Is(err, models.ErrDataUnavailable)
	if err != nil {
		if errors.Is(err, models.ErrDataUnavailable) {
			log.Debug("market data unavailable", logger.Error(err))
		} else {
			r.errors++
			r.messages = append(r.messages, fmt.Sprintf("market data %s: %v", inst, err))
			log.Warn("market data fetch failed", logger.Error(err))
		}
		t.metrics.RecordError("market_data")
		ticks = nil
	}
	sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Timestamp.Before(ticks[j].Timestamp) })

	for _, sig := range sigs {
		r.evaluated++

		var rel []models.PriceTick
		after := sig.ObservedSince()
		for _, tk := range ticks {
			if tk.Timestamp.After(after) && !tk.Timestamp.After(now) {
				rel = append(rel, tk)
			}
		}
		if len(rel) == 0 && !fetchFailed {
			r.unavailable++
		}

		res, ok := EvaluateTicks(sig, rel, now)
		if !ok {
			if len(rel) == 0 || t.recordObservation(ctx, log, &r, sig, rel) {
				r.pending++
			}
			continue
		}

		// Excursions up to the resolving tick are written by the transition itself.
		var obs *models.Observation
		if seen := ticksUntil(rel, res.At); len(seen) > 0 {
			o := observe(sig, seen)
			obs = &o
		}
		price := res.Price
		updated, err := t.store.Transition(ctx, sig.ID, res.State, res.At, &price, obs)
		if err != nil {
			var ite *models.InvalidTransitionError
			if errors.As(err, &ite) {
				r.conflicts++
				log.Warn("transition rejected", logger.String("signal", sig.ID), logger.Error(err))
				t.metrics.RecordError("conflict")
				continue
			}
			r.errors++
			r.pending++
			r.messages = append(r.messages, err.Error())
			log.Error("transition failed", logger.String("signal", sig.ID), logger.Error(err))
			t.metrics.RecordError("transition")
			continue
		}

		r.resolved = append(r.resolved, updated)
		t.emitTransition(ctx, models.StatePending, updated)
		log.Info("signal resolved",
			logger.String("signal", sig.ID),
			logger.String("state", string(res.State)),
			logger.String("price", res.Price.String()),
			logger.Time("at", res.At),
		)
	}
	return r
}

// recordObservation stores the excursions seen in ticks. It returns false when
// the signal is no longer pending.
func (t *Tracker) recordObservation(ctx context.Context, log *logger.Logger, r *instrumentResult, sig *models.Signal, ticks []models.PriceTick) bool {
	err := t.store.RecordObservation(ctx, sig.ID, observe(sig, ticks))
	if err == nil {
		return true
	}
	var ite *models.InvalidTransitionError
	if errors.As(err, &ite) {
		r.conflicts++
		log.Warn("signal resolved elsewhere", logger.String("signal", sig.ID), logger.String("state", string(ite.Current)))
		return false
	}
	r.errors++
	r.messages = append(r.messages, err.Error())
	log.Error("record observation failed", logger.String("signal", sig.ID), logger.Error(err))
	t.metrics.RecordError("observation")
	return true
}

func (t *Tracker) fetch(ctx context.Context, inst string, since time.Time) ([]models.PriceTick, error) {
	if t.market == nil {
		return nil, &models.DataUnavailableError{Instrument: inst}
	}
	if t.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.FetchTimeout)
		defer cancel()
	}
	start := time.Now()
	ticks, err := t.market.Ticks(ctx, inst, since)
	t.metrics.RecordLatency("market_data", time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.DataUnavailableError{Instrument: inst, Err: err}
		}
		return nil, err
	}
	return ticks, nil
}

func (t *Tracker) emitTransition(ctx context.Context, from models.State, s *models.Signal) {
	t.metrics.RecordTransition(from, s.State)
	ev := models.TransitionEvent{
		SignalID:      s.ID,
		Instrument:    s.Instrument,
		OldState:      from,
		NewState:      s.State,
		ResolvedPrice: s.ResolvedPrice,
	}
	if s.ResolvedAt != nil {
		ev.ResolvedAt = *s.ResolvedAt
	}
	if err := t.publisher.PublishTransition(ctx, ev); err != nil {
		t.log.Warn("publish transition failed", logger.String("signal", s.ID), logger.Error(err))
		t.metrics.RecordError("publish_transition")
	}
}

func (t *Tracker) recordSnapshot(ctx context.Context, now time.Time) (*models.PerformanceSnapshot, error) {
	var since time.Time
	if t.cfg.PerformanceWindow > 0 {
		since = now.Add(-t.cfg.PerformanceWindow)
	}
	resolved, err := t.store.ListResolvedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list resolved: %w", err)
	}
	snap := Aggregate(resolved, t.cfg.PerformanceWindow, now)
	if err := t.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if snap.HitRate != nil {
		t.metrics.RecordHitRate(*snap.HitRate)
	}
	if t.archive != nil {
		if err := t.archive.ArchiveSnapshot(ctx, snap); err != nil {
			t.log.Warn("archive snapshot failed", logger.Error(err))
			t.metrics.RecordError("archive_snapshot")
		}
	}
	return snap, nil
}

// Create validates and stores a new pending signal. A missing id is generated,
// a missing created_at is set to now and a missing expiry gets the default TTL.
func (t *Tracker) Create(ctx context.Context, in *models.Signal) (*models.Signal, error) {
	if in == nil {
		return nil, &models.ValidationError{Problems: []models.FieldError{{Field: "signal", Message: "is required"}}}
	}
	s := in.Clone()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t.now()
	}
	if s.ExpiresAt == nil && t.cfg.DefaultSignalTTL > 0 {
		exp := s.CreatedAt.Add(t.cfg.DefaultSignalTTL)
		s.ExpiresAt = &exp
	}
	if err := s.Validate(); err != nil {
		t.metrics.RecordError("validation")
		return nil, err
	}

	s.State = models.StatePending
	s.ResolvedAt, s.ResolvedPrice = nil, nil
	s.LastPrice, s.LastPriceAt = nil, nil
	s.MaxFavorable, s.MaxAdverse = decimal.Zero, decimal.Zero

	if err := t.store.Create(ctx, s); err != nil {
		return nil, err
	}
	t.log.Info("signal created",
		logger.String("signal", s.ID),
		logger.String("instrument", s.Instrument),
		logger.String("direction", string(s.Direction)),
	)
	return s, nil
}

// Cancel resolves a pending signal as cancelled at its last observed price.
func (t *Tracker) Cancel(ctx context.Context, id string) (*models.Signal, error) {
	s, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State != models.StatePending {
		return nil, &models.InvalidTransitionError{ID: id, Current: s.State, To: models.StateCancelled}
	}
	updated, err := t.store.Transition(ctx, id, models.StateCancelled, t.now(), s.LastPrice, nil)
	if err != nil {
		return nil, err
	}
	t.emitTransition(ctx, models.StatePending, updated)
	if t.archive != nil {
		if err := t.archive.ArchiveSignals(ctx, []*models.Signal{updated}); err != nil {
			t.log.Warn("archive cancelled signal failed", logger.Error(err))
		}
	}
	t.log.Info("signal cancelled", logger.String("signal", id))
	return updated, nil
}

// Health probes the store and, when configured, the archive.
func (t *Tracker) Health(ctx context.Context) error {
	if _, err := t.store.LatestSnapshots(ctx, 1); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if t.archive != nil {
		if err := t.archive.Health(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

// Now reports the tracker's clock.
func (t *Tracker) Now() time.Time { return t.now() }

func (t *Tracker) Get(ctx context.Context, id string) (*models.Signal, error) {
	return t.store.Get(ctx, id)
}

func (t *Tracker) ListPending(ctx context.Context) ([]*models.Signal, error) {
	return t.store.ListPending(ctx)
}

// ListResolved returns signals resolved at or after since, oldest first.
func (t *Tracker) ListResolved(ctx context.Context, since time.Time) ([]*models.Signal, error) {
	ss, err := t.store.ListResolvedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	SortResolved(ss)
	return ss, nil
}

// LatestSnapshot returns the most recent persisted snapshot or models.ErrNotFound.
func (t *Tracker) LatestSnapshot(ctx context.Context) (*models.PerformanceSnapshot, error) {
	snaps, err := t.store.LatestSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, models.ErrNotFound
	}
	return snaps[0], nil
}

// ModelHistory returns every model version in version order.
func (t *Tracker) ModelHistory(ctx context.Context) ([]*models.ModelVersion, error) {
	return t.store.ListModels(ctx)
}

// Performance computes an on-demand snapshot with a per-instrument breakdown.
// It is not persisted. A zero window covers all history.
func (t *Tracker) Performance(ctx context.Context, window time.Duration) (*models.PerformanceSnapshot, error) {
	now := t.now()
	var since time.Time
	if window > 0 {
		since = now.Add(-window)
	}
	resolved, err := t.store.ListResolvedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list resolved: %w", err)
	}
	return AggregateByInstrument(resolved, window, now), nil
}

// Retrain requests a manual retrain through the controller.
func (t *Tracker) Retrain(ctx context.Context) (*models.RetrainOutcome, error) {
	if t.retrain == nil {
		return nil, fmt.Errorf("retrain controller not configured")
	}
	return t.retrain.Retrain(ctx, TriggerManual, t.now()), nil
}

func ticksUntil(ticks []models.PriceTick, at time.Time) []models.PriceTick {
	for i, tk := range ticks {
		if tk.Timestamp.After(at) {
			return ticks[:i]
		}
	}
	return ticks
}

func observe(sig *models.Signal, ticks []models.PriceTick) models.Observation {
	fav, adv := sig.MaxFavorable, sig.MaxAdverse
	for _, tk := range ticks {
		f, a := sig.Excursion(tk.Price)
		fav = decimal.Max(fav, f)
		adv = decimal.Max(adv, a)
	}
	last := ticks[len(ticks)-1]
	return models.Observation{Price: last.Price, At: last.Timestamp, MaxFavorable: fav, MaxAdverse: adv}
}
