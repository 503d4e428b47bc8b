package models

import "time"

type ModelStatus string

const (
	ModelCandidate ModelStatus = "candidate"
	ModelActive    ModelStatus = "active"
	ModelRetired   ModelStatus = "retired"
)

// TrainingWindow records exactly which resolved signals a model was fit and validated on.
type TrainingWindow struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	SignalIDs  []string  `json:"signal_ids"`
	HoldoutIDs []string  `json:"holdout_ids"`
}

type ModelVersion struct {
	VersionID           int64          `json:"version_id"`
	TrainedAt           time.Time      `json:"trained_at"`
	TrainingSampleCount int            `json:"training_sample_count"`
	ValidationMetric    float64        `json:"validation_metric"`
	Status              ModelStatus    `json:"status"`
	Trainer             string         `json:"trainer"`
	Trigger             string         `json:"trigger"`
	Window              TrainingWindow `json:"window"`
	PromotedAt          *time.Time     `json:"promoted_at,omitempty"`
	RetiredAt           *time.Time     `json:"retired_at,omitempty"`
	Note                string         `json:"note,omitempty"`
	Artifact            []byte         `json:"artifact,omitempty"`
}

// TrainingSample is a labelled feature vector. Label is true for a target hit.
type TrainingSample struct {
	SignalID string
	Features map[string]float64
	Label    bool
}

func (v *ModelVersion) Clone() *ModelVersion {
	if v == nil {
		return nil
	}
	c := *v
	c.Window.SignalIDs = append([]string(nil), v.Window.SignalIDs...)
	c.Window.HoldoutIDs = append([]string(nil), v.Window.HoldoutIDs...)
	c.Artifact = append([]byte(nil), v.Artifact...)
	if v.PromotedAt != nil {
		t := *v.PromotedAt
		c.PromotedAt = &t
	}
	if v.RetiredAt != nil {
		t := *v.RetiredAt
		c.RetiredAt = &t
	}
	return &c
}
