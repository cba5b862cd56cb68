package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransientRepository is the transient store carrying failed form payloads
// across redirects. A zero ttl means the entry persists until explicitly
// deleted; expired entries are reported as absent.
type TransientRepository interface {
	Set(ctx context.Context, token string, payload map[string]string, ttl time.Duration) error
	Get(ctx context.Context, token string) (map[string]string, error)
	Delete(ctx context.Context, token string) error
}

// transientRepository implements TransientRepository
type transientRepository struct {
	db *gorm.DB
}

// NewTransientRepository creates a new TransientRepository instance
func NewTransientRepository(db *gorm.DB) TransientRepository {
	return &transientRepository{db: db}
}

// Set stores a payload under the given token, replacing any prior entry.
// The token is content-derived, so a concurrent identical submission
// writes the same value; last writer wins.
func (r *transientRepository) Set(ctx context.Context, token string, payload map[string]string, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	transient := models.Transient{
		Token:     token,
		Payload:   string(data),
		ExpiresAt: expiresAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			UpdateAll: true,
		}).
		Create(&transient).Error
}

// Get retrieves the payload stored under token. Expired entries are
// deleted on read and reported as gorm.ErrRecordNotFound.
func (r *transientRepository) Get(ctx context.Context, token string) (map[string]string, error) {
	var transient models.Transient
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&transient).Error; err != nil {
		return nil, err
	}

	if transient.ExpiresAt != nil && time.Now().After(*transient.ExpiresAt) {
		_ = r.Delete(ctx, token)
		return nil, gorm.ErrRecordNotFound
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(transient.Payload), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Delete removes the entry for token. Deleting an absent token is not an
// error.
func (r *transientRepository) Delete(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Transient{}).Error
}
