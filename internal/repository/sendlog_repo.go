package repository

import (
	"context"
	"time"

	"github.com/haiminhvu/mailflow/internal/domain"
	"gorm.io/gorm"
)

type SendLogListParams struct {
	Status   *domain.SendStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type SendLogRepository interface {
	Append(ctx context.Context, entry *domain.SendLogEntry) error
	List(ctx context.Context, params SendLogListParams) ([]domain.SendLogEntry, int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormSendLogRepo struct {
	db *gorm.DB
}

func NewGormSendLogRepo(db *gorm.DB) *GormSendLogRepo {
	return &GormSendLogRepo{db: db}
}

func (r *GormSendLogRepo) Append(ctx context.Context, entry *domain.SendLogEntry) error {
	model := sendLogModelFromDomain(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if entry != nil {
		*entry = *sendLogModelToDomain(model)
	}
	return nil
}

func (r *GormSendLogRepo) List(ctx context.Context, params SendLogListParams) ([]domain.SendLogEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&SendLogModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
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

	var models []SendLogModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	entries := make([]domain.SendLogEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *sendLogModelToDomain(&models[i]))
	}

	return entries, total, nil
}

func (r *GormSendLogRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&SendLogModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
