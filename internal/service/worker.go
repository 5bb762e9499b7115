package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/mime"
	"github.com/haiminhvu/mailflow/internal/observability"
	"github.com/haiminhvu/mailflow/internal/provider"
	"github.com/haiminhvu/mailflow/internal/ratelimit"
	"github.com/haiminhvu/mailflow/internal/repository"
)

const recoveryError = "interrupted mid-send, possible duplicate"

// Worker drains the job queue one send at a time. A run is a single
// goroutine looping dequeue, send, persist, sleep; two sends are never in
// flight together, and job N+1 only starts after job N's outcome is
// stored.
type Worker struct {
	jobs    repository.JobRepository
	states  repository.WorkerStateRepository
	sendLog repository.SendLogRepository
	mailer  provider.Mailer
	limiter ratelimit.DailyLimiter
	logger  *zap.Logger
	metrics *observability.Metrics

	fromOverride string
	newID        func() string
	now          func() time.Time
	randIntn     func(n int) int

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	delay     domain.DelayConfig
	signature string
	total     int
	sent      int
	failed    int

	wg sync.WaitGroup
}

func NewWorker(
	jobs repository.JobRepository,
	states repository.WorkerStateRepository,
	sendLog repository.SendLogRepository,
	mailer provider.Mailer,
	limiter ratelimit.DailyLimiter,
	fromOverride string,
	logger *zap.Logger,
) (*Worker, error) {
	if jobs == nil || states == nil || sendLog == nil {
		return nil, fmt.Errorf("job, state and send log repositories are required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("daily limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		jobs:         jobs,
		states:       states,
		sendLog:      sendLog,
		mailer:       mailer,
		limiter:      limiter,
		logger:       logger,
		fromOverride: fromOverride,
		newID:        newUUID,
		now:          time.Now,
		randIntn:     rand.Intn,
	}, nil
}

func (w *Worker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start begins a run with the given pacing. Starting while already running
// stops the current run first, so a double start is a restart rather than
// a second loop.
func (w *Worker) Start(ctx context.Context, delay domain.DelayConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := delay.Validate(); err != nil {
		return err
	}

	w.Stop(ctx)

	counts, err := w.jobs.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queued jobs: %w", err)
	}

	signature, err := w.mailer.DefaultSignature(ctx)
	if err != nil {
		w.logger.Warn("signature fetch failed, sending without one", zap.Error(err))
		signature = ""
	}

	w.mu.Lock()
	w.running = true
	w.stopCh = make(chan struct{})
	w.delay = delay
	w.signature = signature
	w.total = int(counts.Pending)
	w.sent = 0
	w.failed = 0
	stopCh := w.stopCh
	w.mu.Unlock()

	if err := w.persistState(ctx, true, 0, "run started"); err != nil {
		return fmt.Errorf("failed to persist worker state: %w", err)
	}

	if w.metrics != nil {
		w.metrics.SetWorkerRunning(true)
	}
	w.logger.Info("worker run started",
		zap.Int64("pending", counts.Pending),
		zap.String("delayMode", string(delay.Mode)),
	)

	w.wg.Add(1)
	go w.run(stopCh)

	return nil
}

// Stop halts the run. A tick already in flight finishes and persists its
// outcome; only the next scheduled tick is canceled. Stopping twice is a
// no-op the second time.
func (w *Worker) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()

	if err := w.persistState(ctx, false, 0, "run stopped"); err != nil {
		w.logger.Error("failed to persist worker state on stop", zap.Error(err))
	}
	if w.metrics != nil {
		w.metrics.SetWorkerRunning(false)
	}
	w.logger.Info("worker run stopped")
}

// Running reports whether a run loop is live in this process.
func (w *Worker) Running() bool {
	if w == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Status returns the persisted snapshot, which survives restarts and is
// what the polling endpoint serves.
func (w *Worker) Status(ctx context.Context) (*domain.WorkerState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return w.states.Load(ctx)
}

// Recover reconciles state left by a previous process. Jobs caught
// mid-send are failed for manual review instead of silently re-sent; a run
// that was active at shutdown resumes when pending jobs remain.
func (w *Worker) Recover(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interrupted, err := w.jobs.RecoverInterrupted(ctx, recoveryError)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if interrupted > 0 {
		w.logger.Warn("failed interrupted jobs from previous run",
			zap.Int64("count", interrupted),
		)
	}

	state, err := w.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load worker state: %w", err)
	}
	if !state.IsRunning {
		return nil
	}

	counts, err := w.jobs.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queued jobs: %w", err)
	}
	if counts.Pending == 0 {
		state.IsRunning = false
		state.LastLogLine = "nothing to resume"
		state.UpdatedAt = w.now().UTC()
		return w.states.Save(ctx, state)
	}

	w.logger.Info("resuming interrupted run", zap.Int64("pending", counts.Pending))
	return w.Start(ctx, state.Delay)
}

func (w *Worker) run(stopCh <-chan struct{}) {
	defer w.wg.Done()

	ctx := context.Background()
	for {
		delay, done := w.tick(ctx)
		if done {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if !w.Running() {
			return
		}
	}
}

// tick processes at most one job and reports the pause before the next
// one. done means the run ended: queue drained, cap reached, or a storage
// failure.
func (w *Worker) tick(ctx context.Context) (time.Duration, bool) {
	if !w.Running() {
		return 0, true
	}

	remaining, err := w.limiter.Remaining(ctx)
	if err != nil {
		w.finishRun(ctx, fmt.Sprintf("daily counter unavailable: %v", err))
		return 0, true
	}
	if remaining <= 0 {
		w.logger.Info("daily cap reached, stopping run")
		w.finishRun(ctx, "daily cap reached")
		return 0, true
	}

	job, err := w.jobs.NextPending(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		w.logger.Info("queue drained, run complete")
		w.finishRun(ctx, "run complete")
		return 0, true
	}
	if err != nil {
		w.finishRun(ctx, fmt.Sprintf("queue read failed: %v", err))
		return 0, true
	}

	if err := w.jobs.MarkInProgress(ctx, job.ID); err != nil {
		w.finishRun(ctx, fmt.Sprintf("failed to claim job %s: %v", job.ID, err))
		return 0, true
	}

	sendErr := w.dispatch(ctx, job)

	logLine := w.recordOutcome(ctx, job, sendErr)

	count, err := w.limiter.Increment(ctx)
	if err != nil {
		w.logger.Error("failed to count send attempt", zap.Error(err))
	} else if w.metrics != nil {
		w.metrics.SetDailyCount(count)
	}

	delay := w.nextDelay()
	if err := w.persistState(ctx, true, int(delay.Milliseconds()), logLine); err != nil {
		w.logger.Error("failed to persist worker state", zap.Error(err))
	}

	return delay, false
}

// dispatch renders the transport message for one job and hands it to the
// mailer. All failures come back as an error classified by the taxonomy
// sentinels.
func (w *Worker) dispatch(ctx context.Context, job *domain.Job) error {
	body := strings.ReplaceAll(job.Body, "\n", "<br>")

	w.mu.Lock()
	signature := w.signature
	w.mu.Unlock()
	if signature != "" {
		body = body + "<br><br>" + signature
	}

	raw, err := mime.BuildRaw(job.Customer.Email, job.Subject, body, job.Attachments, w.fromOverride)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrAssembly) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrAssembly, err)
	}

	start := w.now()
	err = w.mailer.Send(ctx, provider.OutboundMessage{
		From:        w.fromOverride,
		To:          job.Customer.Email,
		Subject:     job.Subject,
		HTMLBody:    body,
		Attachments: job.Attachments,
		Raw:         raw,
	})
	if w.metrics != nil {
		w.metrics.ObserveSendDuration(w.now().Sub(start))
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransport, err)
}

// recordOutcome moves the job to its terminal status, appends the send log
// entry and bumps the run counters. Per-job errors never abort the run.
func (w *Worker) recordOutcome(ctx context.Context, job *domain.Job, sendErr error) string {
	now := w.now().UTC()

	var logLine string
	entry := &domain.SendLogEntry{
		ID:        w.newID(),
		JobID:     job.ID,
		Recipient: job.Customer.Email,
		CreatedAt: now,
	}

	if sendErr == nil {
		if err := w.jobs.MarkDone(ctx, job.ID, now); err != nil {
			w.logger.Error("failed to mark job done",
				zap.String("jobId", job.ID),
				zap.Error(err),
			)
		}
		entry.Status = domain.SendSuccess

		w.mu.Lock()
		w.sent++
		w.mu.Unlock()

		if w.metrics != nil {
			w.metrics.IncEmailSent()
		}
		logLine = fmt.Sprintf("sent to %s", job.Customer.Email)
		w.logger.Info("email sent",
			zap.String("jobId", job.ID),
			zap.String("recipient", job.Customer.Email),
		)
	} else {
		errMsg := sendErr.Error()
		if err := w.jobs.MarkFailed(ctx, job.ID, errMsg); err != nil {
			w.logger.Error("failed to mark job failed",
				zap.String("jobId", job.ID),
				zap.Error(err),
			)
		}
		entry.Status = domain.SendFailed
		entry.Error = &errMsg

		w.mu.Lock()
		w.failed++
		w.mu.Unlock()

		if w.metrics != nil {
			w.metrics.IncEmailFailed(failureReason(sendErr))
		}
		logLine = fmt.Sprintf("failed to send to %s: %s", job.Customer.Email, errMsg)
		w.logger.Error("email send failed",
			zap.String("jobId", job.ID),
			zap.String("recipient", job.Customer.Email),
			zap.Bool("transient", provider.IsTransient(sendErr)),
			zap.Error(sendErr),
		)
	}

	if err := w.sendLog.Append(ctx, entry); err != nil {
		w.logger.Error("failed to append send log entry",
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
	}

	return logLine
}

// finishRun ends the run in place, from inside the loop goroutine. The
// stop channel stays open; the loop exits by the done flag instead.
func (w *Worker) finishRun(ctx context.Context, logLine string) {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if err := w.persistState(ctx, false, 0, logLine); err != nil {
		w.logger.Error("failed to persist worker state", zap.Error(err))
	}
	if w.metrics != nil {
		w.metrics.SetWorkerRunning(false)
	}
}

func (w *Worker) persistState(ctx context.Context, running bool, nextSendInMs int, logLine string) error {
	w.mu.Lock()
	state := &domain.WorkerState{
		ID:           domain.WorkerStateID,
		IsRunning:    running,
		Delay:        w.delay,
		Total:        w.total,
		Sent:         w.sent,
		Failed:       w.failed,
		NextSendInMs: nextSendInMs,
		LastLogLine:  logLine,
		UpdatedAt:    w.now().UTC(),
	}
	w.mu.Unlock()

	return w.states.Save(ctx, state)
}

func (w *Worker) nextDelay() time.Duration {
	w.mu.Lock()
	delay := w.delay
	w.mu.Unlock()

	switch delay.Mode {
	case domain.DelayRandom:
		spread := delay.MaxMs - delay.MinMs
		ms := delay.MinMs
		if spread > 0 && w.randIntn != nil {
			ms += w.randIntn(spread + 1)
		}
		return time.Duration(ms) * time.Millisecond
	default:
		return time.Duration(delay.FixedMs) * time.Millisecond
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return "auth"
	case errors.Is(err, domain.ErrAssembly):
		return "assembly"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "transport"
	}
}
