package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"gorm.io/gorm"
)

// FieldmapRepository defines the interface for fieldmap data access
type FieldmapRepository interface {
	Create(ctx context.Context, fieldmap *models.Fieldmap) error
	GetByID(ctx context.Context, id uint) (*models.Fieldmap, error)
	GetByName(ctx context.Context, name string) (*models.Fieldmap, error)
	Update(ctx context.Context, fieldmap *models.Fieldmap) error
	Delete(ctx context.Context, id uint) error

	// Query methods
	List(ctx context.Context, offset, limit int) ([]*models.Fieldmap, int64, error)
	FindActiveByWordpressObject(ctx context.Context, wordpressObject string) ([]*models.Fieldmap, error)
	FindActiveBySalesforceObject(ctx context.Context, salesforceObject string) ([]*models.Fieldmap, error)
	FindActive(ctx context.Context) ([]*models.Fieldmap, error)
}

// fieldmapRepository implements FieldmapRepository
type fieldmapRepository struct {
	db *gorm.DB
}

// NewFieldmapRepository creates a new FieldmapRepository instance
func NewFieldmapRepository(db *gorm.DB) FieldmapRepository {
	return &fieldmapRepository{db: db}
}

// Create creates a new fieldmap. Labels are unique.
func (r *fieldmapRepository) Create(ctx context.Context, fieldmap *models.Fieldmap) error {
	err := r.db.WithContext(ctx).Create(fieldmap).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("fieldmap label %q already exists: %w", fieldmap.Label, err)
	}
	return err
}

// GetByID retrieves a fieldmap by ID
func (r *fieldmapRepository) GetByID(ctx context.Context, id uint) (*models.Fieldmap, error) {
	var fieldmap models.Fieldmap
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&fieldmap).Error
	if err != nil {
		return nil, err
	}
	return &fieldmap, nil
}

// GetByName retrieves a fieldmap by its slug name
func (r *fieldmapRepository) GetByName(ctx context.Context, name string) (*models.Fieldmap, error) {
	var fieldmap models.Fieldmap
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&fieldmap).Error
	if err != nil {
		return nil, err
	}
	return &fieldmap, nil
}

// Update updates a fieldmap
func (r *fieldmapRepository) Update(ctx context.Context, fieldmap *models.Fieldmap) error {
	return r.db.WithContext(ctx).Save(fieldmap).Error
}

// Delete removes a fieldmap by ID
func (r *fieldmapRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Fieldmap{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns a page of fieldmaps plus the total count
func (r *fieldmapRepository) List(ctx context.Context, offset, limit int) ([]*models.Fieldmap, int64, error) {
	var fieldmaps []*models.Fieldmap
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Fieldmap{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&fieldmaps).Error
	return fieldmaps, total, err
}

// FindActiveByWordpressObject finds active fieldmaps for a WordPress content type
func (r *fieldmapRepository) FindActiveByWordpressObject(ctx context.Context, wordpressObject string) ([]*models.Fieldmap, error) {
	var fieldmaps []*models.Fieldmap
	err := r.db.WithContext(ctx).
		Where("wordpress_object = ? AND status = ?", wordpressObject, models.FieldmapStatusActive).
		Order("id ASC").
		Find(&fieldmaps).Error
	return fieldmaps, err
}

// FindActiveBySalesforceObject finds active fieldmaps for a Salesforce object type
func (r *fieldmapRepository) FindActiveBySalesforceObject(ctx context.Context, salesforceObject string) ([]*models.Fieldmap, error) {
	var fieldmaps []*models.Fieldmap
	err := r.db.WithContext(ctx).
		Where("salesforce_object = ? AND status = ?", salesforceObject, models.FieldmapStatusActive).
		Order("id ASC").
		Find(&fieldmaps).Error
	return fieldmaps, err
}

// FindActive finds all active fieldmaps
func (r *fieldmapRepository) FindActive(ctx context.Context) ([]*models.Fieldmap, error) {
	var fieldmaps []*models.Fieldmap
	err := r.db.WithContext(ctx).
		Where("status = ?", models.FieldmapStatusActive).
		Order("id ASC").
		Find(&fieldmaps).Error
	return fieldmaps, err
}
