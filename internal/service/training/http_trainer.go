package training

import (
	"context"
	"fmt"
	"time"

	"SignalTrack/internal/domain/models"
	domsvc "SignalTrack/internal/domain/service"
	xhttp "SignalTrack/pkg/http"
)

// HTTPTrainer delegates fitting and scoring to an external model service.
// POST /train  {samples}            -> {artifact}
// POST /score  {artifact, samples}  -> {metric}
type HTTPTrainer struct {
	client   *xhttp.Client
	attempts int
}

func NewHTTPTrainer(serviceURL string, timeout time.Duration) *HTTPTrainer {
	return &HTTPTrainer{
		client:   xhttp.NewClient(xhttp.WithBaseURL(serviceURL), xhttp.WithTimeout(timeout)),
		attempts: 3,
	}
}

func (t *HTTPTrainer) Name() string { return "http" }

type wireSample struct {
	SignalID string             `json:"signal_id"`
	Features map[string]float64 `json:"features"`
	Label    int                `json:"label"`
}

func toWire(samples []models.TrainingSample) []wireSample {
	out := make([]wireSample, len(samples))
	for i, s := range samples {
		out[i] = wireSample{SignalID: s.SignalID, Features: s.Features}
		if s.Label {
			out[i].Label = 1
		}
	}
	return out
}

func (t *HTTPTrainer) Train(ctx context.Context, samples []models.TrainingSample) ([]byte, error) {
	var resp struct {
		Artifact []byte `json:"artifact"`
	}
	req := map[string]interface{}{"samples": toWire(samples)}
	if err := t.postWithRetry(ctx, "/train", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Artifact) == 0 {
		return nil, fmt.Errorf("model service returned empty artifact")
	}
	return resp.Artifact, nil
}

func (t *HTTPTrainer) Score(ctx context.Context, artifact []byte, samples []models.TrainingSample) (float64, error) {
	var resp struct {
		Metric float64 `json:"metric"`
	}
	req := map[string]interface{}{"artifact": artifact, "samples": toWire(samples)}
	if err := t.postWithRetry(ctx, "/score", req, &resp); err != nil {
		return 0, err
	}
	return resp.Metric, nil
}

// postWithRetry retries transient failures with linear backoff. Client errors
// (4xx) are returned immediately.
func (t *HTTPTrainer) postWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	var err error
	for i := 1; i <= t.attempts; i++ {
		err = t.client.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		if se, ok := err.(*xhttp.StatusError); ok && se.Code >= 400 && se.Code < 500 {
			break
		}
		if i == t.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("post %s: %w", path, err)
}

var _ domsvc.Trainer = (*HTTPTrainer)(nil)
