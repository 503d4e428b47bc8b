package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"SignalTrack/internal/domain/models"
	xhttp "SignalTrack/pkg/http"
)

// separable: low rsi wins, high rsi loses; momentum is noise.
func separable(n int) []models.TrainingSample {
	out := make([]models.TrainingSample, n)
	for i := range out {
		rsi := 20 + float64(i%10)
		win := true
		if i%2 == 1 {
			rsi = 70 + float64(i%10)
			win = false
		}
		out[i] = models.TrainingSample{
			SignalID: fmt.Sprintf("s%d", i),
			Features: map[string]float64{"rsi": rsi, "momentum": float64(i % 3)},
			Label:    win,
		}
	}
	return out
}

func TestLogisticTrainerLearnsSeparableData(t *testing.T) {
	tr := NewLogisticTrainer(0, 0)
	samples := separable(40)

	artifact, err := tr.Train(context.Background(), samples[:32])
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	metric, err := tr.Score(context.Background(), artifact, samples[32:])
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if metric < 0.99 {
		t.Fatalf("holdout accuracy = %v", metric)
	}

	var m logisticModel
	if err := json.Unmarshal(artifact, &m); err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if len(m.Features) != 2 || m.Features[0] != "momentum" || m.Features[1] != "rsi" {
		t.Fatalf("features = %v", m.Features)
	}
	if m.Weights[1] >= 0 {
		t.Fatalf("rsi weight should be negative, got %v", m.Weights[1])
	}
}

func TestLogisticTrainerMissingFeatures(t *testing.T) {
	tr := NewLogisticTrainer(50, 0.1)
	samples := separable(10)
	samples[3].Features = nil

	artifact, err := tr.Train(context.Background(), samples)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := tr.Score(context.Background(), artifact, []models.TrainingSample{{SignalID: "x"}}); err != nil {
		t.Fatalf("score without features: %v", err)
	}
}

func TestLogisticTrainerErrors(t *testing.T) {
	tr := NewLogisticTrainer(100, 0.1)
	if _, err := tr.Train(context.Background(), nil); err == nil {
		t.Fatalf("train with no samples should fail")
	}
	if _, err := tr.Score(context.Background(), []byte("{"), separable(2)); err == nil {
		t.Fatalf("score with broken artifact should fail")
	}
	if _, err := tr.Score(context.Background(), []byte("{}"), nil); err == nil {
		t.Fatalf("score with no holdout should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Train(ctx, separable(4)); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled train: %v", err)
	}
}

func newHTTPTrainer(url string) *HTTPTrainer {
	return &HTTPTrainer{client: xhttp.NewClient(xhttp.WithBaseURL(url)), attempts: 3}
}

func TestHTTPTrainerRetriesServerErrors(t *testing.T) {
	var trainCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/train":
			if trainCalls.Add(1) == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			var req struct {
				Samples []wireSample `json:"samples"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if len(req.Samples) != 4 || req.Samples[0].Label != 1 || req.Samples[1].Label != 0 {
				http.Error(w, "bad samples", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string][]byte{"artifact": []byte("model-v1")})
		case "/score":
			var req struct {
				Artifact []byte `json:"artifact"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if string(req.Artifact) != "model-v1" {
				http.Error(w, "unknown artifact", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"metric":0.64}`))
		}
	}))
	defer srv.Close()

	tr := newHTTPTrainer(srv.URL)
	artifact, err := tr.Train(context.Background(), separable(4))
	if err != nil || string(artifact) != "model-v1" {
		t.Fatalf("train = %q, %v", artifact, err)
	}
	if trainCalls.Load() != 2 {
		t.Fatalf("train calls = %d", trainCalls.Load())
	}
	metric, err := tr.Score(context.Background(), artifact, separable(2))
	if err != nil || metric != 0.64 {
		t.Fatalf("score = %v, %v", metric, err)
	}
}

func TestHTTPTrainerDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "schema mismatch", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newHTTPTrainer(srv.URL).Train(context.Background(), separable(2))
	var se *xhttp.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnprocessableEntity {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}
