package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/seenotify/agent/internal/infra/postgresql"
	"gorm.io/gorm"
)

func createBlobsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_blobs",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&postgresql.BlobModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&postgresql.BlobModel{})
		},
	}
}
