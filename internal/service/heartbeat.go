package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/haiminhvu/mailflow/internal/repository"
)

const defaultHeartbeatSchedule = "@every 1m"

// Heartbeat periodically checks whether the worker should be running but
// is not, and resumes it. It compensates for a run that died without
// clearing its persisted running flag.
type Heartbeat struct {
	worker *Worker
	jobs   repository.JobRepository
	states repository.WorkerStateRepository
	logger *zap.Logger
	cron   *cron.Cron
}

func NewHeartbeat(
	worker *Worker,
	jobs repository.JobRepository,
	states repository.WorkerStateRepository,
	logger *zap.Logger,
) (*Heartbeat, error) {
	if worker == nil {
		return nil, fmt.Errorf("worker is required")
	}
	if jobs == nil || states == nil {
		return nil, fmt.Errorf("job and state repositories are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Heartbeat{
		worker: worker,
		jobs:   jobs,
		states: states,
		logger: logger,
		cron:   cron.New(),
	}, nil
}

func (h *Heartbeat) Start() error {
	if _, err := h.cron.AddFunc(defaultHeartbeatSchedule, func() {
		h.beat(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	h.cron.Start()
	h.logger.Info("heartbeat started", zap.String("schedule", defaultHeartbeatSchedule))
	return nil
}

func (h *Heartbeat) Stop() {
	if h == nil || h.cron == nil {
		return
	}
	<-h.cron.Stop().Done()
}

// beat resumes a run whose persisted flag says running while no loop is
// live in this process.
func (h *Heartbeat) beat(ctx context.Context) {
	if h.worker.Running() {
		return
	}

	state, err := h.states.Load(ctx)
	if err != nil {
		h.logger.Error("heartbeat failed to load worker state", zap.Error(err))
		return
	}
	if !state.IsRunning {
		return
	}

	counts, err := h.jobs.CountByStatus(ctx)
	if err != nil {
		h.logger.Error("heartbeat failed to count jobs", zap.Error(err))
		return
	}
	if counts.Pending == 0 {
		state.IsRunning = false
		state.LastLogLine = "nothing to resume"
		if err := h.states.Save(ctx, state); err != nil {
			h.logger.Error("heartbeat failed to clear running flag", zap.Error(err))
		}
		return
	}

	h.logger.Info("heartbeat resuming stalled run", zap.Int64("pending", counts.Pending))
	if err := h.worker.Start(ctx, state.Delay); err != nil {
		h.logger.Error("heartbeat failed to resume run", zap.Error(err))
	}
}
