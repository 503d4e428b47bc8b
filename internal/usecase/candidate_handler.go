package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
	pkgkafka "SignalTrack/pkg/kafka"
	"SignalTrack/pkg/logger"
)

// CandidateHandler consumes scanner candidates from Kafka and creates signals.
// Malformed and duplicate candidates are dropped without retry.
type CandidateHandler struct {
	topic   string
	tracker *Tracker
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewCandidateHandler(topic string, tracker *Tracker, metrics domrepo.Metrics, log *logger.Logger) *CandidateHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CandidateHandler{topic: topic, tracker: tracker, metrics: metrics, log: log}
}

func (h *CandidateHandler) Topic() string { return h.topic }

// incoming message schema: CreateSignalRequest as JSON
func (h *CandidateHandler) Handle(ctx context.Context, b []byte) error {
	var req models.CreateSignalRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("candidate_unmarshal")
		return &pkgkafka.Permanent{Err: err}
	}

	s, err := h.tracker.Create(ctx, req.ToSignal())
	if err != nil {
		var (
			ve  *models.ValidationError
			dup *models.DuplicateSignalError
		)
		switch {
		case errors.As(err, &ve):
			h.log.Warn("candidate rejected", logger.String("instrument", req.Instrument), logger.Error(err))
			return &pkgkafka.Permanent{Err: err}
		case errors.As(err, &dup):
			h.log.Debug("candidate already stored", logger.String("signal", dup.ID))
			return nil
		}
		h.metrics.RecordError("candidate_store")
		return err
	}
	h.log.Debug("candidate accepted", logger.String("signal", s.ID))
	return nil
}

var _ pkgkafka.MessageHandler = (*CandidateHandler)(nil)
