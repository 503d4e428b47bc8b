package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"SignalTrack/internal/domain/models"
	domsvc "SignalTrack/internal/domain/service"
)

// LogisticTrainer fits a standardized logistic regression on signal features
// by batch gradient descent. The validation metric is holdout accuracy.
type LogisticTrainer struct {
	epochs int
	lr     float64
	l2     float64
}

func NewLogisticTrainer(epochs int, learningRate float64) *LogisticTrainer {
	if epochs <= 0 {
		epochs = 300
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}
	return &LogisticTrainer{epochs: epochs, lr: learningRate, l2: 1e-3}
}

func (t *LogisticTrainer) Name() string { return "logistic" }

type logisticModel struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
}

func (t *LogisticTrainer) Train(ctx context.Context, samples []models.TrainingSample) ([]byte, error) {
	if len(samples) == 0 {
		return nil, errors.New("no training samples")
	}

	m := &logisticModel{Features: featureNames(samples)}
	k := len(m.Features)
	x := make([][]float64, len(samples))
	for i, s := range samples {
		x[i] = vector(m.Features, s.Features)
	}
	m.Mean, m.Std = standardize(x, k)

	m.Weights = make([]float64, k)
	n := float64(len(samples))
	grad := make([]float64, k)
	for epoch := 0; epoch < t.epochs; epoch++ {
		if epoch%50 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, s := range samples {
			err := sigmoid(dot(m.Weights, x[i])+m.Bias) - label(s)
			for j := 0; j < k; j++ {
				grad[j] += err * x[i][j]
			}
			gb += err
		}
		for j := 0; j < k; j++ {
			m.Weights[j] -= t.lr * (grad[j]/n + t.l2*m.Weights[j])
		}
		m.Bias -= t.lr * gb / n

		if math.IsNaN(m.Bias) || math.IsInf(m.Bias, 0) {
			return nil, fmt.Errorf("numerical divergence at epoch %d", epoch)
		}
	}
	return json.Marshal(m)
}

func (t *LogisticTrainer) Score(_ context.Context, artifact []byte, samples []models.TrainingSample) (float64, error) {
	if len(samples) == 0 {
		return 0, errors.New("no holdout samples")
	}
	var m logisticModel
	if err := json.Unmarshal(artifact, &m); err != nil {
		return 0, fmt.Errorf("decode artifact: %w", err)
	}
	correct := 0
	for _, s := range samples {
		x := vector(m.Features, s.Features)
		for j := range x {
			x[j] = (x[j] - m.Mean[j]) / m.Std[j]
		}
		win := sigmoid(dot(m.Weights, x)+m.Bias) >= 0.5
		if win == s.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples)), nil
}

func featureNames(samples []models.TrainingSample) []string {
	seen := map[string]struct{}{}
	for _, s := range samples {
		for k := range s.Features {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// vector maps a feature set onto names; missing or non-finite values are 0.
func vector(names []string, f map[string]float64) []float64 {
	v := make([]float64, len(names))
	for j, name := range names {
		if x, ok := f[name]; ok && !math.IsNaN(x) && !math.IsInf(x, 0) {
			v[j] = x
		}
	}
	return v
}

// standardize rescales x in place to zero mean, unit variance per column.
func standardize(x [][]float64, k int) (mean, std []float64) {
	mean = make([]float64, k)
	std = make([]float64, k)
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			mean[j] += v / n
		}
	}
	for _, row := range x {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d / n
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j])
		if std[j] < 1e-12 {
			std[j] = 1
		}
	}
	for _, row := range x {
		for j := range row {
			row[j] = (row[j] - mean[j]) / std[j]
		}
	}
	return mean, std
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func label(s models.TrainingSample) float64 {
	if s.Label {
		return 1
	}
	return 0
}

var _ domsvc.Trainer = (*LogisticTrainer)(nil)
