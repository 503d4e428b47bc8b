package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"SignalTrack/internal/domain/models"
	"SignalTrack/internal/repository"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func longSignal(id string) *models.Signal {
	exp := t0.Add(time.Hour)
	return &models.Signal{
		ID:          id,
		Instrument:  "BTCUSDT",
		Direction:   models.DirectionLong,
		EntryPrice:  dec("100"),
		TargetPrice: dec("110"),
		StopPrice:   dec("95"),
		CreatedAt:   t0,
		ExpiresAt:   &exp,
		State:       models.StatePending,
	}
}

func tick(inst, price string, at time.Time) models.PriceTick {
	return models.PriceTick{Instrument: inst, Price: dec(price), Timestamp: at}
}

type fakeMarket struct {
	mu    sync.Mutex
	ticks map[string][]models.PriceTick
	errs  map[string]error
	calls atomic.Int32
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{ticks: map[string][]models.PriceTick{}, errs: map[string]error{}}
}

func (f *fakeMarket) add(ts ...models.PriceTick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range ts {
		f.ticks[t.Instrument] = append(f.ticks[t.Instrument], t)
	}
}

func (f *fakeMarket) fail(inst string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[inst] = err
}

func (f *fakeMarket) Ticks(_ context.Context, inst string, since time.Time) ([]models.PriceTick, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[inst]; err != nil {
		return nil, err
	}
	var out []models.PriceTick
	for _, t := range f.ticks[inst] {
		if t.Timestamp.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeTrainer returns a fixed metric. When gate is set Train blocks on it after
// signalling entered.
type fakeTrainer struct {
	metric  float64
	err     error
	entered chan struct{}
	gate    chan struct{}
	calls   atomic.Int32
	onTrain func()
}

func (f *fakeTrainer) Name() string { return "fake" }

func (f *fakeTrainer) Train(_ context.Context, samples []models.TrainingSample) ([]byte, error) {
	f.calls.Add(1)
	if f.onTrain != nil {
		f.onTrain()
	}
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("weights"), nil
}

func (f *fakeTrainer) Score(context.Context, []byte, []models.TrainingSample) (float64, error) {
	return f.metric, nil
}

type recordingPublisher struct {
	mu          sync.Mutex
	transitions []models.TransitionEvent
	retrains    []models.RetrainEvent
}

func (p *recordingPublisher) PublishTransition(_ context.Context, e models.TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, e)
	return nil
}

func (p *recordingPublisher) PublishRetrain(_ context.Context, e models.RetrainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrains = append(p.retrains, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// seedResolved stores wins hit_target and losses hit_stop signals resolved one
// minute apart starting at from, interleaving losses first.
func seedResolved(t *testing.T, st *repository.MemoryStore, prefix string, wins, losses int, from time.Time) {
	t.Helper()
	ctx := context.Background()
	states := make([]models.State, 0, wins+losses)
	for i := 0; i < losses; i++ {
		states = append(states, models.StateHitStop)
	}
	for i := 0; i < wins; i++ {
		states = append(states, models.StateHitTarget)
	}
	for i, state := range states {
		s := longSignal(prefix + "-" + string(rune('a'+i/26)) + string(rune('a'+i%26)))
		s.CreatedAt = from.Add(-time.Hour)
		exp := from.Add(48 * time.Hour)
		s.ExpiresAt = &exp
		s.Features = map[string]float64{"rsi": float64(30 + i), "momentum": float64(i % 3)}
		if err := st.Create(ctx, s); err != nil {
			t.Fatalf("seed create: %v", err)
		}
		price := dec("110")
		if state == models.StateHitStop {
			price = dec("95")
		}
		if _, err := st.Transition(ctx, s.ID, state, from.Add(time.Duration(i)*time.Minute), &price, nil); err != nil {
			t.Fatalf("seed transition: %v", err)
		}
	}
}

func countActive(t *testing.T, st *repository.MemoryStore) int {
	t.Helper()
	versions, err := st.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	n := 0
	for _, v := range versions {
		if v.Status == models.ModelActive {
			n++
		}
	}
	return n
}

func statesOf(t *testing.T, st *repository.MemoryStore, ids ...string) []models.State {
	t.Helper()
	out := make([]models.State, 0, len(ids))
	for _, id := range ids {
		s, err := st.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		out = append(out, s.State)
	}
	return out
}
