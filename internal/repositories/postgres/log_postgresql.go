package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/exercise-service/internal/models"
	"github.com/SAP-F-2025/exercise-service/internal/repositories"
)

// LogPostgreSQL persists the append-only activity log. Entries are inserted
// in the same transaction as the state change they describe.
type LogPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewLogPostgreSQL(db *gorm.DB) repositories.LogRepository {
	return &LogPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (l *LogPostgreSQL) Append(ctx context.Context, tx *gorm.DB, entry *models.LogEntry) error {
	db := l.getDB(tx)
	if err := db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func (l *LogPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.LogFilters) ([]*models.LogEntry, int64, error) {
	db := l.getDB(tx)
	var entries []*models.LogEntry
	var total int64

	query := db.WithContext(ctx).Model(&models.LogEntry{})
	query = l.helpers.ApplyLogFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at ASC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (l *LogPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}
