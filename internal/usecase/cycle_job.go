package usecase

import (
	"context"
	"encoding/json"

	"SignalTrack/pkg/logger"
	"SignalTrack/pkg/queue"
)

const CycleJobType = "track_cycle"

// CycleRequest is the payload an external scheduler enqueues. Retrain forces a
// manual retrain after the cycle.
type CycleRequest struct {
	Retrain bool `json:"retrain"`
}

// CycleJob runs a tracking cycle for each queued track_cycle message.
type CycleJob struct {
	tracker *Tracker
	log     *logger.Logger
}

func NewCycleJob(tracker *Tracker, log *logger.Logger) *CycleJob {
	if log == nil {
		log = logger.Nop()
	}
	return &CycleJob{tracker: tracker, log: log}
}

func (j *CycleJob) Name() string { return "tracker cycle" }
func (j *CycleJob) Type() string { return CycleJobType }

func (j *CycleJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.ParsePayload[CycleRequest](payload)
	if err != nil {
		return err
	}
	if _, err := j.tracker.RunCycle(ctx); err != nil {
		return err
	}
	if req.Retrain {
		out, err := j.tracker.Retrain(ctx)
		if err != nil {
			return err
		}
		j.log.Info("manual retrain finished", logger.Bool("promoted", out.Promoted), logger.String("reason", out.Reason), logger.String("error", out.Error))
	}
	return nil
}

var _ queue.Job = (*CycleJob)(nil)
