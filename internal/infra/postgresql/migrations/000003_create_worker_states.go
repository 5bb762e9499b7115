package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/haiminhvu/mailflow/internal/repository"
)

func createWorkerStatesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_worker_states",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.WorkerStateModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WorkerStateModel{})
		},
	}
}
