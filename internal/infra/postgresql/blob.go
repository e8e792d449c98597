package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seenotify/agent/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlobModel is one persisted blob row, keyed by name.
type BlobModel struct {
	Key       string `gorm:"primaryKey;type:varchar(255)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (BlobModel) TableName() string { return "blobs" }

var _ storage.Blob = (*PostgresBlob)(nil)

// PostgresBlob stores whole-collection blobs in a single keyed table.
type PostgresBlob struct {
	db *gorm.DB
}

func NewPostgresBlob(db *gorm.DB) (*PostgresBlob, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	return &PostgresBlob{db: db}, nil
}

func (b *PostgresBlob) Get(ctx context.Context, key string) (string, bool, error) {
	var model BlobModel
	err := b.db.WithContext(ctx).First(&model, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return model.Value, true, nil
}

func (b *PostgresBlob) Set(ctx context.Context, key, value string) error {
	model := BlobModel{Key: key, Value: value}
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return nil
}
