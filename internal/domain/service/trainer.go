package service

import (
	"context"

	"SignalTrack/internal/domain/models"
)

// Trainer fits a win/loss classifier on labelled samples and scores artifacts
// on held-out samples. Score returns a metric in [0,1], higher is better.
type Trainer interface {
	Name() string
	Train(ctx context.Context, samples []models.TrainingSample) ([]byte, error)
	Score(ctx context.Context, artifact []byte, samples []models.TrainingSample) (float64, error)
}
