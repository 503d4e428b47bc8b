package usecase

import (
	"context"

	"SignalTrack/internal/domain/models"
	domrepo "SignalTrack/internal/domain/repository"
)

type nopPublisher struct{}

func (nopPublisher) PublishTransition(context.Context, models.TransitionEvent) error { return nil }
func (nopPublisher) PublishRetrain(context.Context, models.RetrainEvent) error       { return nil }
func (nopPublisher) Close() error                                                    { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordCycle(*models.CycleSummary, float64)   {}
func (nopMetrics) RecordTransition(models.State, models.State) {}
func (nopMetrics) RecordRetrain(string)                        {}
func (nopMetrics) RecordHitRate(float64)                       {}
func (nopMetrics) RecordError(string)                          {}
func (nopMetrics) RecordLatency(string, float64)               {}

var (
	_ domrepo.EventPublisher = nopPublisher{}
	_ domrepo.Metrics        = nopMetrics{}
)
