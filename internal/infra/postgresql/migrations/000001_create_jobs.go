package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/haiminhvu/mailflow/internal/repository"
)

func createJobsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.JobModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_jobs_status_seq ON jobs (status, seq)`,
				`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.JobModel{})
		},
	}
}
