package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	domsvc "SignalTrack/internal/domain/service"
	"SignalTrack/pkg/logger"
)

type RetrainState int32

const (
	RetrainIdle RetrainState = iota
	RetrainTraining
	RetrainValidating
	RetrainPromoting
)

func (s RetrainState) String() string {
	switch s {
	case RetrainIdle:
		return "idle"
	case RetrainTraining:
		return "training"
	case RetrainValidating:
		return "validating"
	case RetrainPromoting:
		return "promoting"
	default:
		return fmt.Sprintf("RetrainState(%d)", int32(s))
	}
}

const (
	TriggerCadence     = "cadence"
	TriggerDrift       = "drift"
	TriggerNewOutcomes = "new_outcomes"
	TriggerManual      = "manual"

	SkipInProgress = "retrain skipped: already in progress"

	retrainLockKey = "retrain"
)

type RetrainConfig struct {
	Cadence             time.Duration
	HitRateFloor        float64
	DriftSnapshots      int
	ValidationMargin    float64
	MinValidationMetric float64
	MinTrainingSamples  int
	MinNewOutcomes      int
	HoldoutFraction     float64
	LockTTL             time.Duration
}

// RetrainController decides when to retrain, fits and validates a candidate and
// swaps the active model. Only one retrain runs at a time per process; the
// optional Locker extends that across processes.
type RetrainController struct {
	store     domrepo.Store
	trainer   domsvc.Trainer
	locker    domrepo.Locker
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger
	cfg       RetrainConfig

	state atomic.Int32
}

func NewRetrainController(
	store domrepo.Store,
	trainer domsvc.Trainer,
	locker domrepo.Locker,
	publisher domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
	cfg RetrainConfig,
) *RetrainController {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.DriftSnapshots < 1 {
		cfg.DriftSnapshots = 1
	}
	return &RetrainController{
		store:     store,
		trainer:   trainer,
		locker:    locker,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		cfg:       cfg,
	}
}

func (c *RetrainController) State() RetrainState {
	return RetrainState(c.state.Load())
}

// Due returns the trigger that currently calls for a retrain, or "" when none does.
// Drift and new-outcome counts only consider data after the latest training.
func (c *RetrainController) Due(ctx context.Context, now time.Time) (string, error) {
	latest, err := c.store.LatestModel(ctx)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("latest model: %w", err)
	}
	var since time.Time
	if latest != nil {
		since = latest.TrainedAt
	}

	if c.cfg.Cadence > 0 && (latest == nil || !now.Before(latest.TrainedAt.Add(c.cfg.Cadence))) {
		return TriggerCadence, nil
	}

	snaps, err := c.store.LatestSnapshots(ctx, c.cfg.DriftSnapshots)
	if err != nil {
		return "", fmt.Errorf("latest snapshots: %w", err)
	}
	if Drifting(snaps, c.cfg.HitRateFloor, c.cfg.DriftSnapshots, since) {
		return TriggerDrift, nil
	}

	if c.cfg.MinNewOutcomes > 0 {
		resolved, err := c.store.ListResolvedSince(ctx, since)
		if err != nil {
			return "", fmt.Errorf("list resolved: %w", err)
		}
		n := 0
		for _, s := range resolved {
			if s.State.Decided() && s.ResolvedAt != nil && s.ResolvedAt.After(since) {
				n++
			}
		}
		if n >= c.cfg.MinNewOutcomes {
			return TriggerNewOutcomes, nil
		}
	}
	return "", nil
}

// MaybeRetrain retrains when a trigger is due. It returns nil when nothing was due.
func (c *RetrainController) MaybeRetrain(ctx context.Context, now time.Time) *models.RetrainOutcome {
	trigger, err := c.Due(ctx, now)
	if err != nil {
		c.log.Error("retrain trigger check failed", logger.Error(err))
		c.metrics.RecordError("retrain_due")
		return &models.RetrainOutcome{Skipped: true, Error: err.Error()}
	}
	if trigger == "" {
		return nil
	}
	return c.Retrain(ctx, trigger, now)
}

// Retrain runs one idle -> training -> validating -> promoting -> idle pass.
// A call made while another retrain is in flight is a no-op.
func (c *RetrainController) Retrain(ctx context.Context, trigger string, now time.Time) *models.RetrainOutcome {
	if !c.state.CompareAndSwap(int32(RetrainIdle), int32(RetrainTraining)) {
		c.metrics.RecordRetrain("skipped")
		return &models.RetrainOutcome{Trigger: trigger, Skipped: true, Reason: SkipInProgress}
	}
	defer c.state.Store(int32(RetrainIdle))

	if c.locker != nil {
		ok, err := c.locker.TryLock(ctx, retrainLockKey, c.cfg.LockTTL)
		if err != nil {
			c.log.Warn("retrain lock unavailable", logger.Error(err))
			c.metrics.RecordRetrain("skipped")
			return &models.RetrainOutcome{Trigger: trigger, Skipped: true, Error: fmt.Sprintf("acquire retrain lock: %v", err)}
		}
		if !ok {
			c.metrics.RecordRetrain("skipped")
			return &models.RetrainOutcome{Trigger: trigger, Skipped: true, Reason: SkipInProgress}
		}
		defer func() {
			if err := c.locker.Unlock(context.WithoutCancel(ctx), retrainLockKey); err != nil {
				c.log.Warn("retrain unlock failed", logger.Error(err))
			}
		}()
	}

	log := c.log.With(logger.String("trigger", trigger))
	log.Info("retrain started")
	start := time.Now()
	defer func() { c.metrics.RecordLatency("retrain", time.Since(start).Seconds()) }()

	out := &models.RetrainOutcome{Trigger: trigger}
	fail := func(err error) *models.RetrainOutcome {
		log.Error("retrain failed, active model unchanged", logger.Error(err))
		c.metrics.RecordRetrain("failed")
		out.Error = err.Error()
		return out
	}

	train, holdout, window, err := c.collect(ctx)
	if err != nil {
		return fail(err)
	}

	artifact, err := c.trainer.Train(ctx, train)
	if err != nil {
		return fail(&models.TrainingError{Reason: "fit", Err: err})
	}

	c.state.Store(int32(RetrainValidating))
	metric, err := c.trainer.Score(ctx, artifact, holdout)
	if err != nil {
		return fail(&models.TrainingError{Reason: "score holdout", Err: err})
	}
	if math.IsNaN(metric) || math.IsInf(metric, 0) {
		return fail(&models.TrainingError{Reason: "numerical divergence"})
	}

	active, err := c.store.ActiveModel(ctx)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fail(fmt.Errorf("active model: %w", err))
	}
	var (
		activeID     int64
		activeMetric *float64
	)
	if active != nil {
		activeID = active.VersionID
		m := active.ValidationMetric
		activeMetric = &m
	}
	promote, required := ShouldPromote(metric, activeMetric, c.cfg.ValidationMargin, c.cfg.MinValidationMetric)

	candidate := &models.ModelVersion{
		TrainedAt:           now,
		TrainingSampleCount: len(train),
		ValidationMetric:    metric,
		Status:              models.ModelCandidate,
		Trainer:             c.trainer.Name(),
		Trigger:             trigger,
		Window:              window,
		Artifact:            artifact,
	}
	if !promote {
		candidate.Note = fmt.Sprintf("validation metric %.4f does not exceed %.4f", metric, required)
	}
	id, err := c.store.SaveCandidate(ctx, candidate)
	if err != nil {
		return fail(fmt.Errorf("save candidate: %w", err))
	}
	candidate.VersionID = id
	out.Candidate = candidate

	if !promote {
		vf := &models.ValidationFailure{VersionID: id, Metric: metric, Required: required}
		log.Info("candidate retained", logger.Int64("version", id), logger.String("reason", vf.Error()))
		c.metrics.RecordRetrain("rejected")
		out.Reason = vf.Error()
		c.publish(ctx, candidate, false, vf.Error(), now)
		return out
	}

	c.state.Store(int32(RetrainPromoting))
	if err := c.store.Promote(ctx, id, activeID, now); err != nil {
		return fail(fmt.Errorf("promote v%d: %w", id, err))
	}
	candidate.Status = models.ModelActive
	candidate.PromotedAt = &now
	out.Promoted = true

	log.Info("model promoted",
		logger.Int64("version", id),
		logger.Int64("previous", activeID),
		logger.Float64("metric", metric),
		logger.Int("samples", len(train)),
	)
	c.metrics.RecordRetrain("promoted")
	c.publish(ctx, candidate, true, "", now)
	return out
}

func (c *RetrainController) publish(ctx context.Context, v *models.ModelVersion, promoted bool, reason string, now time.Time) {
	err := c.publisher.PublishRetrain(ctx, models.RetrainEvent{
		VersionID:        v.VersionID,
		Promoted:         promoted,
		ValidationMetric: v.ValidationMetric,
		Trigger:          v.Trigger,
		Reason:           reason,
		At:               now,
	})
	if err != nil {
		c.log.Warn("publish retrain event failed", logger.Error(err))
		c.metrics.RecordError("publish_retrain")
	}
}

// collect builds the training and holdout sets from every target/stop outcome,
// ordered by resolved_at. The holdout is the most recent fraction.
func (c *RetrainController) collect(ctx context.Context) (train, holdout []models.TrainingSample, w models.TrainingWindow, err error) {
	resolved, err := c.store.ListResolvedSince(ctx, time.Time{})
	if err != nil {
		return nil, nil, w, fmt.Errorf("list resolved: %w", err)
	}
	decided := make([]*models.Signal, 0, len(resolved))
	for _, s := range resolved {
		if s.State.Decided() && s.ResolvedAt != nil {
			decided = append(decided, s)
		}
	}
	if len(decided) < c.cfg.MinTrainingSamples || len(decided) < 2 {
		return nil, nil, w, &models.TrainingError{
			Reason: fmt.Sprintf("insufficient samples: %d < %d", len(decided), c.cfg.MinTrainingSamples),
		}
	}
	SortResolved(decided)

	nHold := HoldoutSize(len(decided), c.cfg.HoldoutFraction)
	cut := len(decided) - nHold
	for i, s := range decided {
		sample := models.TrainingSample{SignalID: s.ID, Features: s.Features, Label: s.State == models.StateHitTarget}
		if i < cut {
			train = append(train, sample)
			w.SignalIDs = append(w.SignalIDs, s.ID)
		} else {
			holdout = append(holdout, sample)
			w.HoldoutIDs = append(w.HoldoutIDs, s.ID)
		}
	}
	w.From = *decided[0].ResolvedAt
	w.To = *decided[len(decided)-1].ResolvedAt
	return train, holdout, w, nil
}

// HoldoutSize is ceil(n*fraction) clamped so both sets are non-empty.
func HoldoutSize(n int, fraction float64) int {
	h := int(math.Ceil(float64(n) * fraction))
	if h < 1 {
		h = 1
	}
	if h > n-1 {
		h = n - 1
	}
	return h
}

// ShouldPromote reports whether a candidate metric beats the active one by more
// than margin. With no active model the candidate must reach minMetric.
// required is the bound the candidate was compared against.
func ShouldPromote(candidate float64, active *float64, margin, minMetric float64) (ok bool, required float64) {
	if active == nil {
		return candidate >= minMetric, minMetric
	}
	return candidate-*active > margin, *active + margin
}

// Drifting reports whether the n newest snapshots (newest first) all have a
// defined hit rate below floor and were computed after since.
func Drifting(snaps []*models.PerformanceSnapshot, floor float64, n int, since time.Time) bool {
	if n < 1 || len(snaps) < n {
		return false
	}
	for _, s := range snaps[:n] {
		if !s.ComputedAt.After(since) || !s.BelowFloor(floor) {
			return false
		}
	}
	return true
}
