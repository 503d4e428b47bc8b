package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"SignalTrack/internal/domain/models"
	"SignalTrack/internal/repository"
	"SignalTrack/internal/usecase"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type noMarket struct{}

func (noMarket) Ticks(context.Context, string, time.Time) ([]models.PriceTick, error) {
	return nil, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	types []string
}

func (q *recordingQueue) Enqueue(_ context.Context, msgType string, _ interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, msgType)
	return nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type listData struct {
	Rows  []json.RawMessage `json:"rows"`
	Total int64             `json:"total"`
}

func newTestServer(t *testing.T, q Enqueuer) (*echo.Echo, *usecase.Tracker) {
	t.Helper()
	st := repository.NewMemoryStore()
	tr := usecase.NewTracker(st, noMarket{}, nil, nil, nil, nil, nil, usecase.TrackerConfig{
		PerformanceWindow: 720 * time.Hour,
		DefaultSignalTTL:  time.Hour,
		MaxConcurrency:    2,
	})
	tr.SetClock(func() time.Time { return t0 })

	e := echo.New()
	NewSignalsEchoHandler(nil, tr, q).RegisterRoutes(e)
	return e, tr
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, env
}

const validSignal = `{"id":"s1","instrument":"BTCUSDT","direction":"long",
	"entry_price":"100","target_price":"110","stop_price":"95","features":{"rsi":28}}`

func TestCreateAndGetSignal(t *testing.T) {
	e, _ := newTestServer(t, nil)

	code, env := do(t, e, http.MethodPost, "/api/signals", validSignal)
	if code != http.StatusCreated || env.Status != http.StatusCreated {
		t.Fatalf("create = %d %s", code, env.Data)
	}
	var created models.Signal
	_ = json.Unmarshal(env.Data, &created)
	if created.State != models.StatePending || created.ExpiresAt == nil || !created.ExpiresAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("created = %+v", created)
	}

	code, env = do(t, e, http.MethodGet, "/api/signals/s1", "")
	if code != http.StatusOK {
		t.Fatalf("get = %d", code)
	}
	var got models.Signal
	_ = json.Unmarshal(env.Data, &got)
	if got.ID != "s1" || got.Features["rsi"] != 28 {
		t.Fatalf("got = %+v", got)
	}

	if code, _ := do(t, e, http.MethodGet, "/api/signals/missing", ""); code != http.StatusNotFound {
		t.Fatalf("missing = %d", code)
	}
	if code, _ := do(t, e, http.MethodPost, "/api/signals", validSignal); code != http.StatusConflict {
		t.Fatalf("duplicate = %d", code)
	}
}

func TestCreateSignalValidation(t *testing.T) {
	e, _ := newTestServer(t, nil)

	code, env := do(t, e, http.MethodPost, "/api/signals", `{"instrument":"BTCUSDT","direction":"sideways"}`)
	if code != http.StatusBadRequest || !strings.Contains(string(env.Data), "ERR_ONEOF") {
		t.Fatalf("bad direction = %d %s", code, env.Data)
	}

	bad := `{"instrument":"BTCUSDT","direction":"long","entry_price":"100","target_price":"90","stop_price":"95"}`
	code, env = do(t, e, http.MethodPost, "/api/signals", bad)
	if code != http.StatusBadRequest || !strings.Contains(string(env.Data), "ERR_INVALID_SIGNAL") {
		t.Fatalf("bad prices = %d %s", code, env.Data)
	}
	if !strings.Contains(string(env.Data), `"field":"prices"`) {
		t.Fatalf("problems missing: %s", env.Data)
	}
}

func TestCancelSignal(t *testing.T) {
	e, _ := newTestServer(t, nil)
	do(t, e, http.MethodPost, "/api/signals", validSignal)

	code, env := do(t, e, http.MethodPost, "/api/signals/s1/cancel", "")
	if code != http.StatusOK {
		t.Fatalf("cancel = %d %s", code, env.Data)
	}
	var s models.Signal
	_ = json.Unmarshal(env.Data, &s)
	if s.State != models.StateCancelled {
		t.Fatalf("state = %s", s.State)
	}
	if code, _ := do(t, e, http.MethodPost, "/api/signals/s1/cancel", ""); code != http.StatusConflict {
		t.Fatalf("second cancel = %d", code)
	}
}

func TestListSignals(t *testing.T) {
	e, _ := newTestServer(t, nil)
	do(t, e, http.MethodPost, "/api/signals", validSignal)
	do(t, e, http.MethodPost, "/api/signals", strings.Replace(validSignal, `"s1"`, `"s2"`, 1))
	do(t, e, http.MethodPost, "/api/signals/s2/cancel", "")

	_, env := do(t, e, http.MethodGet, "/api/signals", "")
	var pending listData
	_ = json.Unmarshal(env.Data, &pending)
	if pending.Total != 1 {
		t.Fatalf("pending total = %d", pending.Total)
	}

	_, env = do(t, e, http.MethodGet, "/api/signals?state=resolved&since=all", "")
	var resolved listData
	_ = json.Unmarshal(env.Data, &resolved)
	if resolved.Total != 1 {
		t.Fatalf("resolved total = %d", resolved.Total)
	}

	if code, _ := do(t, e, http.MethodGet, "/api/signals?state=bogus", ""); code != http.StatusBadRequest {
		t.Fatalf("bad state = %d", code)
	}
	if code, _ := do(t, e, http.MethodGet, "/api/signals?state=resolved&since=-3h", ""); code != http.StatusBadRequest {
		t.Fatalf("bad since = %d", code)
	}
}

func TestSnapshotAndPerformance(t *testing.T) {
	e, _ := newTestServer(t, nil)

	if code, _ := do(t, e, http.MethodGet, "/api/snapshot/latest", ""); code != http.StatusNotFound {
		t.Fatalf("empty snapshot = %d", code)
	}

	code, env := do(t, e, http.MethodGet, "/api/performance?window=30d", "")
	if code != http.StatusOK {
		t.Fatalf("performance = %d %s", code, env.Data)
	}
	var snap models.PerformanceSnapshot
	_ = json.Unmarshal(env.Data, &snap)
	if snap.SampleCount != 0 || snap.HitRate != nil {
		t.Fatalf("empty performance = %+v", snap)
	}

	if code, _ := do(t, e, http.MethodGet, "/api/performance?window=soon", ""); code != http.StatusBadRequest {
		t.Fatalf("bad window = %d", code)
	}
}

func TestRunCycleInlineAndQueued(t *testing.T) {
	e, _ := newTestServer(t, nil)
	do(t, e, http.MethodPost, "/api/signals", validSignal)

	code, env := do(t, e, http.MethodPost, "/api/cycles", `{}`)
	if code != http.StatusOK {
		t.Fatalf("inline cycle = %d %s", code, env.Data)
	}
	var sum models.CycleSummary
	_ = json.Unmarshal(env.Data, &sum)
	if sum.Evaluated != 1 || sum.StillPending != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	if code, _ := do(t, e, http.MethodPost, "/api/retrain", ""); code != http.StatusInternalServerError {
		t.Fatalf("retrain without controller = %d", code)
	}

	q := &recordingQueue{}
	e, _ = newTestServer(t, q)
	if code, _ := do(t, e, http.MethodPost, "/api/cycles", `{"retrain":true}`); code != http.StatusAccepted {
		t.Fatalf("queued cycle = %d", code)
	}
	if len(q.types) != 1 || q.types[0] != usecase.CycleJobType {
		t.Fatalf("enqueued = %v", q.types)
	}
}

func TestModelsHidesArtifact(t *testing.T) {
	st := repository.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = st.SaveCandidate(ctx, &models.ModelVersion{TrainedAt: t0, Artifact: []byte("weights")})
	}
	tr := usecase.NewTracker(st, noMarket{}, nil, nil, nil, nil, nil, usecase.TrackerConfig{})
	e := echo.New()
	NewSignalsEchoHandler(nil, tr, nil).RegisterRoutes(e)

	code, env := do(t, e, http.MethodGet, "/api/models?limit=2", "")
	if code != http.StatusOK {
		t.Fatalf("models = %d", code)
	}
	var list listData
	_ = json.Unmarshal(env.Data, &list)
	if list.Total != 2 {
		t.Fatalf("total = %d", list.Total)
	}
	var row map[string]interface{}
	_ = json.Unmarshal(list.Rows[0], &row)
	if _, ok := row["artifact"]; ok {
		t.Fatalf("artifact leaked: %v", row)
	}
	if row["artifact_bytes"] != float64(7) || row["version_id"] != float64(2) {
		t.Fatalf("row = %v", row)
	}
}
