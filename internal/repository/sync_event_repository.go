package repository

import (
	"context"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"gorm.io/gorm"
)

// SyncEventRepository defines the interface for sync event log access
type SyncEventRepository interface {
	Create(ctx context.Context, event *models.SyncEvent) error
	ListRecent(ctx context.Context, limit int) ([]*models.SyncEvent, error)
	ListByFieldmap(ctx context.Context, fieldmapID uint, limit int) ([]*models.SyncEvent, error)
	CountByStatus(ctx context.Context, status models.SyncEventStatus) (int64, error)
}

// syncEventRepository implements SyncEventRepository
type syncEventRepository struct {
	db *gorm.DB
}

// NewSyncEventRepository creates a new SyncEventRepository instance
func NewSyncEventRepository(db *gorm.DB) SyncEventRepository {
	return &syncEventRepository{db: db}
}

// Create records a sync event
func (r *syncEventRepository) Create(ctx context.Context, event *models.SyncEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListRecent returns the most recent sync events, newest first
func (r *syncEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.SyncEvent, error) {
	var events []*models.SyncEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// ListByFieldmap returns the most recent sync events for one fieldmap
func (r *syncEventRepository) ListByFieldmap(ctx context.Context, fieldmapID uint, limit int) ([]*models.SyncEvent, error) {
	var events []*models.SyncEvent
	err := r.db.WithContext(ctx).
		Where("fieldmap_id = ?", fieldmapID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// CountByStatus counts sync events with the given terminal status
func (r *syncEventRepository) CountByStatus(ctx context.Context, status models.SyncEventStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SyncEvent{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
