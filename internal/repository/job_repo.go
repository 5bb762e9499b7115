package repository

import (
	"context"
	"errors"
	"time"

	"github.com/haiminhvu/mailflow/internal/domain"
	"gorm.io/gorm"
)

type JobListParams struct {
	Status   *domain.JobStatus
	Page     int
	PageSize int
}

// StatusCounts aggregates the queue by job status.
type StatusCounts struct {
	Pending    int64
	InProgress int64
	Done       int64
	Failed     int64
}

type JobRepository interface {
	EnqueueBatch(ctx context.Context, jobs []*domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, params JobListParams) ([]domain.Job, int64, error)
	NextPending(ctx context.Context) (*domain.Job, error)
	MarkInProgress(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	RecoverInterrupted(ctx context.Context, errMsg string) (int64, error)
	CountByStatus(ctx context.Context) (StatusCounts, error)
	Clear(ctx context.Context) (int64, error)
}

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) EnqueueBatch(ctx context.Context, jobs []*domain.Job) error {
	models := make([]JobModel, 0, len(jobs))
	modelIndexes := make([]int, 0, len(jobs))
	for i, j := range jobs {
		model := jobModelFromDomain(j)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(jobs) && jobs[idx] != nil {
			*jobs[idx] = *jobModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormJobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var model JobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormJobRepo) List(ctx context.Context, params JobListParams) ([]domain.Job, int64, error) {
	query := r.db.WithContext(ctx).Model(&JobModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 200)

	var models []JobModel
	err := query.
		Order("seq ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]domain.Job, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, total, nil
}

// NextPending returns the oldest pending job, queue order being strictly
// by enqueue sequence. ErrNotFound means the queue is drained.
func (r *GormJobRepo) NextPending(ctx context.Context) (*domain.Job, error) {
	var model JobModel
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("seq ASC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

// MarkInProgress claims a pending job. The status guard in the WHERE
// clause makes a double claim surface as ErrConflict instead of silently
// re-dispatching.
func (r *GormJobRepo) MarkInProgress(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusInProgress)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormJobRepo) MarkDone(ctx context.Context, id string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Updates(map[string]any{
			"status":  domain.StatusDone,
			"sent_at": sentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormJobRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("id = ? AND status = ?", id, domain.StatusInProgress).
		Updates(map[string]any{
			"status": domain.StatusFailed,
			"error":  errMsg,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// RecoverInterrupted fails every job left in-progress by a previous
// process. Those sends may or may not have reached the provider, so they
// are flagged for manual review rather than re-dispatched.
func (r *GormJobRepo) RecoverInterrupted(ctx context.Context, errMsg string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("status = ?", domain.StatusInProgress).
		Updates(map[string]any{
			"status": domain.StatusFailed,
			"error":  errMsg,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormJobRepo) CountByStatus(ctx context.Context) (StatusCounts, error) {
	type row struct {
		Status domain.JobStatus `gorm:"column:status"`
		Count  int64            `gorm:"column:count"`
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&JobModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return StatusCounts{}, err
	}

	var counts StatusCounts
	for _, r := range rows {
		switch r.Status {
		case domain.StatusPending:
			counts.Pending = r.Count
		case domain.StatusInProgress:
			counts.InProgress = r.Count
		case domain.StatusDone:
			counts.Done = r.Count
		case domain.StatusFailed:
			counts.Failed = r.Count
		}
	}
	return counts, nil
}

func (r *GormJobRepo) Clear(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&JobModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
