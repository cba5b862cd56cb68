package repository

import (
	"context"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"gorm.io/gorm"
)

// ObjectMapRepository defines the interface for object-map data access
type ObjectMapRepository interface {
	Create(ctx context.Context, objectMap *models.ObjectMap) error
	GetByID(ctx context.Context, id uint) (*models.ObjectMap, error)
	GetByWordpressID(ctx context.Context, wordpressObject, wordpressID string) (*models.ObjectMap, error)
	GetBySalesforceID(ctx context.Context, salesforceID string) (*models.ObjectMap, error)
	Update(ctx context.Context, objectMap *models.ObjectMap) error
	Delete(ctx context.Context, id uint) error

	// Query methods
	List(ctx context.Context, offset, limit int) ([]*models.ObjectMap, int64, error)
	FindByFieldmap(ctx context.Context, fieldmapID uint) ([]*models.ObjectMap, error)

	// RecordSyncResult stamps the outcome of the latest sync attempt
	RecordSyncResult(ctx context.Context, id uint, action string, ok bool, message string) error
}

// objectMapRepository implements ObjectMapRepository
type objectMapRepository struct {
	db *gorm.DB
}

// NewObjectMapRepository creates a new ObjectMapRepository instance
func NewObjectMapRepository(db *gorm.DB) ObjectMapRepository {
	return &objectMapRepository{db: db}
}

// Create creates a new object map
func (r *objectMapRepository) Create(ctx context.Context, objectMap *models.ObjectMap) error {
	return r.db.WithContext(ctx).Create(objectMap).Error
}

// GetByID retrieves an object map by ID
func (r *objectMapRepository) GetByID(ctx context.Context, id uint) (*models.ObjectMap, error) {
	var objectMap models.ObjectMap
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&objectMap).Error
	if err != nil {
		return nil, err
	}
	return &objectMap, nil
}

// GetByWordpressID retrieves the map for one WordPress entity instance
func (r *objectMapRepository) GetByWordpressID(ctx context.Context, wordpressObject, wordpressID string) (*models.ObjectMap, error) {
	var objectMap models.ObjectMap
	err := r.db.WithContext(ctx).
		Where("wordpress_object = ? AND wordpress_id = ?", wordpressObject, wordpressID).
		First(&objectMap).Error
	if err != nil {
		return nil, err
	}
	return &objectMap, nil
}

// GetBySalesforceID retrieves the map for one Salesforce record
func (r *objectMapRepository) GetBySalesforceID(ctx context.Context, salesforceID string) (*models.ObjectMap, error) {
	var objectMap models.ObjectMap
	err := r.db.WithContext(ctx).
		Where("salesforce_id = ?", salesforceID).
		First(&objectMap).Error
	if err != nil {
		return nil, err
	}
	return &objectMap, nil
}

// Update updates an object map
func (r *objectMapRepository) Update(ctx context.Context, objectMap *models.ObjectMap) error {
	return r.db.WithContext(ctx).Save(objectMap).Error
}

// Delete removes an object map by ID
func (r *objectMapRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.ObjectMap{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns a page of object maps plus the total count
func (r *objectMapRepository) List(ctx context.Context, offset, limit int) ([]*models.ObjectMap, int64, error) {
	var objectMaps []*models.ObjectMap
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.ObjectMap{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&objectMaps).Error
	return objectMaps, total, err
}

// FindByFieldmap finds all object maps created under one fieldmap
func (r *objectMapRepository) FindByFieldmap(ctx context.Context, fieldmapID uint) ([]*models.ObjectMap, error) {
	var objectMaps []*models.ObjectMap
	err := r.db.WithContext(ctx).
		Where("fieldmap_id = ?", fieldmapID).
		Order("id ASC").
		Find(&objectMaps).Error
	return objectMaps, err
}

// RecordSyncResult stamps the outcome of the latest sync attempt
func (r *objectMapRepository) RecordSyncResult(ctx context.Context, id uint, action string, ok bool, message string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.ObjectMap{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_sync_at":      &now,
			"last_sync_action":  action,
			"last_sync_status":  ok,
			"last_sync_message": message,
		}).Error
}
