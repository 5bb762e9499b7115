package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/ratelimit"
	"github.com/haiminhvu/mailflow/internal/repository"
	"github.com/haiminhvu/mailflow/internal/template"
)

const maxBatchSize = 1000

// BatchRequest enqueues one sending batch: the same template and
// attachments rendered per customer.
type BatchRequest struct {
	Customers    []domain.Customer
	Subject      string
	TemplateBody string
	Attachments  []domain.Attachment
	TargetCount  int
}

// BatchResult reports what the enqueue did.
type BatchResult struct {
	Enqueued int
	Skipped  int
}

// BatchService validates sending batches, renders subject and body per
// recipient and appends the jobs to the queue. Rendering happens here, at
// enqueue time, so the queue holds exactly what will be sent.
type BatchService struct {
	jobs      repository.JobRepository
	sendLog   repository.SendLogRepository
	limiter   ratelimit.DailyLimiter
	knowledge domain.Knowledge
	worker    *Worker
	logger    *zap.Logger

	newID func() string
	now   func() time.Time
	rng   *rand.Rand
}

func NewBatchService(
	jobs repository.JobRepository,
	sendLog repository.SendLogRepository,
	limiter ratelimit.DailyLimiter,
	knowledge domain.Knowledge,
	worker *Worker,
	logger *zap.Logger,
) (*BatchService, error) {
	if jobs == nil || sendLog == nil {
		return nil, fmt.Errorf("job and send log repositories are required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("daily limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		jobs:      jobs,
		sendLog:   sendLog,
		limiter:   limiter,
		knowledge: knowledge,
		worker:    worker,
		logger:    logger,
		newID:     newUUID,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Enqueue validates the whole batch up front and persists one pre-rendered
// job per deliverable customer. Rows without a usable email address are
// skipped, everything else rejects the batch before a single job is
// stored.
func (s *BatchService) Enqueue(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(req.Customers) == 0 {
		return nil, fmt.Errorf("%w: at least one customer is required", domain.ErrValidation)
	}
	if len(req.Customers) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch exceeds %d customers", domain.ErrValidation, maxBatchSize)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	if total := domain.TotalAttachmentBytes(req.Attachments); total > domain.MaxEnqueueAttachmentBytes {
		return nil, fmt.Errorf("%w: attachments total %d bytes exceeds %d",
			domain.ErrValidation, total, domain.MaxEnqueueAttachmentBytes)
	}

	deliverable := make([]domain.Customer, 0, len(req.Customers))
	skipped := 0
	for _, customer := range req.Customers {
		if customer.Validate() != nil {
			skipped++
			continue
		}
		deliverable = append(deliverable, customer)
	}
	if len(deliverable) == 0 {
		return nil, fmt.Errorf("%w: no deliverable recipients in batch", domain.ErrValidation)
	}

	remaining, err := s.limiter.Remaining(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily counter: %w", err)
	}
	if int64(len(deliverable)) > remaining {
		return nil, fmt.Errorf("%w: batch of %d exceeds today's remaining quota of %d",
			domain.ErrValidation, len(deliverable), remaining)
	}

	targetCount := req.TargetCount
	if targetCount <= 0 {
		targetCount = template.DefaultTargetCount
	}

	now := s.now().UTC()
	jobs := make([]*domain.Job, 0, len(deliverable))
	for _, customer := range deliverable {
		selection := template.Select(s.rng, strings.Join(customer.DomainTags, ","), s.knowledge, targetCount)
		rendered := template.Render(customer, req.TemplateBody, selection)

		jobs = append(jobs, &domain.Job{
			ID:          s.newID(),
			Customer:    customer,
			Subject:     req.Subject,
			Body:        rendered.Body,
			Attachments: req.Attachments,
			Status:      domain.StatusPending,
			CreatedAt:   now,
		})
	}

	if err := s.jobs.EnqueueBatch(ctx, jobs); err != nil {
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}

	s.logger.Info("batch enqueued",
		zap.Int("enqueued", len(jobs)),
		zap.Int("skipped", skipped),
	)

	return &BatchResult{Enqueued: len(jobs), Skipped: skipped}, nil
}

func (s *BatchService) ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.Job, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.jobs.List(ctx, params)
}

// ClearQueue drops every job, terminal ones included. Refused while a run
// is live so an in-flight job cannot lose its row mid-send.
func (s *BatchService) ClearQueue(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if s.worker != nil && s.worker.Running() {
		return 0, fmt.Errorf("%w: cannot clear the queue while the worker is running", domain.ErrConflict)
	}

	removed, err := s.jobs.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}

	s.logger.Info("queue cleared", zap.Int64("removed", removed))
	return removed, nil
}

func (s *BatchService) ListLog(ctx context.Context, params repository.SendLogListParams) ([]domain.SendLogEntry, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.sendLog.List(ctx, params)
}

// PurgeLog removes send log entries older than the retention window.
func (s *BatchService) PurgeLog(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := s.now().UTC().Add(-domain.SendLogRetention)
	purged, err := s.sendLog.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge send log: %w", err)
	}

	s.logger.Info("send log purged",
		zap.Int64("purged", purged),
		zap.Time("cutoff", cutoff),
	)
	return purged, nil
}

func newUUID() string {
	return uuid.NewString()
}
