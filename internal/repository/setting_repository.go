package repository

import (
	"context"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository defines the interface for plugin setting access
type SettingRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	List(ctx context.Context) ([]*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

// settingRepository implements SettingRepository
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// Get retrieves a setting by key
func (r *settingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).Where("config_key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// List returns all settings
func (r *settingRepository) List(ctx context.Context) ([]*models.Setting, error) {
	var settings []*models.Setting
	err := r.db.WithContext(ctx).Order("config_key ASC").Find(&settings).Error
	return settings, err
}

// Upsert creates or replaces a setting by key
func (r *settingRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "config_key"}},
			UpdateAll: true,
		}).
		Create(setting).Error
}
