package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/haiminhvu/mailflow/internal/repository"
)

func createSendLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_send_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SendLogModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_send_logs_job_id ON send_logs (job_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SendLogModel{})
		},
	}
}
