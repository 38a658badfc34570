package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/blinddate/internal/db"
)

// ConfigRepository reads and writes the system_configs key/value table.
type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(database *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: database}
}

// All returns every config row ordered by key.
func (r *ConfigRepository) All(ctx context.Context) ([]db.SystemConfig, error) {
	var rows []db.SystemConfig
	// key is reserved in mysql, so let the dialect quote it
	err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error
	return rows, err
}

// Upsert writes the given key/values, replacing value (and description when
// set) of existing keys.
func (r *ConfigRepository) Upsert(ctx context.Context, rows []db.SystemConfig) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			cols := []string{"value", "updated_at"}
			if rows[i].Description != nil {
				cols = append(cols, "description")
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns(cols),
			}).Create(&rows[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
