package usecase

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
)

// Aggregate computes a performance snapshot over resolved signals whose
// resolved_at falls in [end-window, end]. A zero window includes everything up
// to end. Non-terminal signals are ignored.
func Aggregate(resolved []*models.Signal, window time.Duration, end time.Time) *models.PerformanceSnapshot {
	var start time.Time
	if window > 0 {
		start = end.Add(-window)
	}

	in := make([]*models.Signal, 0, len(resolved))
	for _, s := range resolved {
		if s == nil || !s.State.Terminal() || s.ResolvedAt == nil {
			continue
		}
		if s.ResolvedAt.Before(start) || s.ResolvedAt.After(end) {
			continue
		}
		in = append(in, s)
	}
	SortResolved(in)

	snap := &models.PerformanceSnapshot{
		WindowStart: start,
		WindowEnd:   end,
		ComputedAt:  end,
		MeanReturn:  decimal.Zero,
		MaxDrawdown: decimal.Zero,
	}

	var (
		sum  = decimal.Zero
		cum  = decimal.Zero
		peak = decimal.Zero
	)
	for _, s := range in {
		snap.SampleCount++
		switch s.State {
		case models.StateHitTarget:
			snap.Wins++
		case models.StateHitStop:
			snap.Losses++
		case models.StateExpired:
			snap.Expired++
		case models.StateCancelled:
			snap.Cancelled++
		}

		r := s.Return()
		sum = sum.Add(r)
		cum = cum.Add(r)
		if cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := cum.Sub(peak); dd.LessThan(snap.MaxDrawdown) {
			snap.MaxDrawdown = dd
		}
	}

	snap.HitRate = hitRate(snap.Wins, snap.Losses)
	if snap.SampleCount > 0 {
		snap.MeanReturn = sum.Div(decimal.NewFromInt(int64(snap.SampleCount)))
	}
	return snap
}

// AggregateByInstrument is Aggregate plus a per-instrument breakdown.
func AggregateByInstrument(resolved []*models.Signal, window time.Duration, end time.Time) *models.PerformanceSnapshot {
	snap := Aggregate(resolved, window, end)

	groups := map[string][]*models.Signal{}
	for _, s := range resolved {
		if s == nil || s.ResolvedAt == nil || !s.State.Terminal() {
			continue
		}
		if s.ResolvedAt.Before(snap.WindowStart) || s.ResolvedAt.After(end) {
			continue
		}
		groups[s.Instrument] = append(groups[s.Instrument], s)
	}

	snap.ByInstrument = make(map[string]*models.InstrumentStats, len(groups))
	for inst, ss := range groups {
		sub := Aggregate(ss, window, end)
		snap.ByInstrument[inst] = &models.InstrumentStats{
			SampleCount: sub.SampleCount,
			Wins:        sub.Wins,
			Losses:      sub.Losses,
			HitRate:     sub.HitRate,
			MeanReturn:  sub.MeanReturn,
		}
	}
	return snap
}

// SortResolved orders signals by resolved_at, then id.
func SortResolved(ss []*models.Signal) {
	sort.SliceStable(ss, func(i, j int) bool {
		a, b := ss[i], ss[j]
		if !a.ResolvedAt.Equal(*b.ResolvedAt) {
			return a.ResolvedAt.Before(*b.ResolvedAt)
		}
		return a.ID < b.ID
	})
}

func hitRate(wins, losses int) *float64 {
	if wins+losses == 0 {
		return nil
	}
	r := float64(wins) / float64(wins+losses)
	return &r
}
