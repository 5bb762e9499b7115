package repository

import (
	"context"
	"errors"

	"github.com/haiminhvu/mailflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkerStateRepository interface {
	Load(ctx context.Context) (*domain.WorkerState, error)
	Save(ctx context.Context, state *domain.WorkerState) error
}

type GormWorkerStateRepo struct {
	db *gorm.DB
}

func NewGormWorkerStateRepo(db *gorm.DB) *GormWorkerStateRepo {
	return &GormWorkerStateRepo{db: db}
}

// Load returns the single persisted snapshot, or a zero-value stopped
// state when the row was never written.
func (r *GormWorkerStateRepo) Load(ctx context.Context) (*domain.WorkerState, error) {
	var model WorkerStateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", domain.WorkerStateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.WorkerState{
			ID:    domain.WorkerStateID,
			Delay: domain.DelayConfig{Mode: domain.DelayFixed},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return workerStateModelToDomain(&model), nil
}

// Save upserts on the fixed primary key so the table never grows past one
// row.
func (r *GormWorkerStateRepo) Save(ctx context.Context, state *domain.WorkerState) error {
	model := workerStateModelFromDomain(state)
	if model == nil {
		return nil
	}
	model.ID = domain.WorkerStateID

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}
