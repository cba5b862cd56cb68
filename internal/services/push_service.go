package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/clients"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/metrics"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PushService moves one WordPress entity's data into Salesforce, driven
// by the active fieldmaps for that entity's content type.
type PushService struct {
	fieldmaps  repository.FieldmapRepository
	objectMaps repository.ObjectMapRepository
	events     repository.SyncEventRepository
	salesforce *clients.SalesforceClient
	wordpress  *clients.WordPressClient
	publisher  *clients.NATSPublisher
	feed       *ActivityFeedService
	logger     *logrus.Logger
}

// NewPushService creates a new PushService. publisher and feed may be nil;
// event fan-out is then skipped.
func NewPushService(
	fieldmaps repository.FieldmapRepository,
	objectMaps repository.ObjectMapRepository,
	events repository.SyncEventRepository,
	salesforce *clients.SalesforceClient,
	wordpress *clients.WordPressClient,
	publisher *clients.NATSPublisher,
	feed *ActivityFeedService,
	logger *logrus.Logger,
) *PushService {
	if logger == nil {
		logger = logrus.New()
	}
	return &PushService{
		fieldmaps:  fieldmaps,
		objectMaps: objectMaps,
		events:     events,
		salesforce: salesforce,
		wordpress:  wordpress,
		publisher:  publisher,
		feed:       feed,
		logger:     logger,
	}
}

// PushObject pushes one WordPress entity to Salesforce through every
// active fieldmap configured for its content type. One sync event is
// recorded per fieldmap attempted.
func (s *PushService) PushObject(ctx context.Context, wordpressObject, wordpressID string) ([]*models.SyncEvent, error) {
	fieldmaps, err := s.fieldmaps.FindActiveByWordpressObject(ctx, wordpressObject)
	if err != nil {
		return nil, fmt.Errorf("failed to load fieldmaps for %s: %w", wordpressObject, err)
	}
	if len(fieldmaps) == 0 {
		return nil, fmt.Errorf("no active fieldmap for wordpress object %s", wordpressObject)
	}

	var results []*models.SyncEvent
	var firstErr error
	for _, fieldmap := range fieldmaps {
		event := s.pushWithFieldmap(ctx, fieldmap, wordpressObject, wordpressID)
		results = append(results, event)
		if event.Status == models.SyncEventStatusError && firstErr == nil {
			firstErr = errors.New(event.Message)
		}
	}
	return results, firstErr
}

func (s *PushService) pushWithFieldmap(ctx context.Context, fieldmap *models.Fieldmap, wordpressObject, wordpressID string) *models.SyncEvent {
	start := time.Now()
	event := &models.SyncEvent{
		ID:              uuid.NewString(),
		Direction:       models.SyncDirectionPush,
		FieldmapID:      fieldmap.ID,
		WordpressID:     wordpressID,
		WordpressObject: wordpressObject,
	}

	pairs, err := ParseFieldPairs(fieldmap.Fields)
	if err != nil {
		return s.finishEvent(ctx, event, start, "", fmt.Errorf("fieldmap %d has invalid fields: %w", fieldmap.ID, err))
	}

	record, err := s.wordpress.GetRecord(wordpressObject, wordpressID)
	if err != nil {
		return s.finishEvent(ctx, event, start, "", fmt.Errorf("failed to read wordpress record: %w", err))
	}

	sfFields := make(map[string]interface{})
	var keyField, keyValue string
	for _, pair := range pairs {
		if pair.Direction != "wp_sf" && pair.Direction != "sync" {
			continue
		}
		if pair.IsKey {
			keyField = pair.SalesforceField
		}
		value, ok := record[pair.WordpressField]
		if !ok {
			continue
		}
		sfFields[pair.SalesforceField] = value
		if pair.IsKey {
			keyValue = fmt.Sprintf("%v", value)
		}
	}
	if len(sfFields) == 0 {
		event.Status = models.SyncEventStatusSkipped
		event.Message = "no pushable fields mapped"
		return s.finishEvent(ctx, event, start, "", nil)
	}

	objectMap, err := s.objectMaps.GetByWordpressID(ctx, wordpressObject, wordpressID)
	switch {
	case err == nil:
		// Already linked: update the existing Salesforce record.
		event.Action = "update"
		event.SalesforceID = objectMap.SalesforceID
		if updateErr := s.salesforce.UpdateRecord(fieldmap.SalesforceObject, objectMap.SalesforceID, sfFields); updateErr != nil {
			s.objectMaps.RecordSyncResult(ctx, objectMap.ID, event.Action, false, updateErr.Error())
			return s.finishEvent(ctx, event, start, objectMap.SalesforceID, updateErr)
		}
		s.objectMaps.RecordSyncResult(ctx, objectMap.ID, event.Action, true, "")
		event.ObjectMapID = objectMap.ID
		return s.finishEvent(ctx, event, start, objectMap.SalesforceID, nil)

	case errors.Is(err, gorm.ErrRecordNotFound):
		// An empty external id would upsert into the wrong record.
		if keyField != "" && keyValue == "" {
			event.Status = models.SyncEventStatusSkipped
			event.Message = "external id key field is empty"
			return s.finishEvent(ctx, event, start, "", nil)
		}

		var salesforceID string
		var createErr error
		if keyField != "" {
			event.Action = "upsert"
			salesforceID, _, createErr = s.salesforce.UpsertRecord(fieldmap.SalesforceObject, keyField, keyValue, sfFields)
		} else {
			event.Action = "create"
			salesforceID, createErr = s.salesforce.CreateRecord(fieldmap.SalesforceObject, sfFields)
		}
		if createErr != nil {
			return s.finishEvent(ctx, event, start, "", createErr)
		}

		now := time.Now()
		newMap := &models.ObjectMap{
			WordpressID:     wordpressID,
			WordpressObject: wordpressObject,
			SalesforceID:    salesforceID,
			FieldmapID:      fieldmap.ID,
			LastSyncAt:      &now,
			LastSyncAction:  event.Action,
			LastSyncStatus:  true,
		}
		if mapErr := s.objectMaps.Create(ctx, newMap); mapErr != nil {
			return s.finishEvent(ctx, event, start, salesforceID, fmt.Errorf("record synced but mapping not saved: %w", mapErr))
		}
		event.ObjectMapID = newMap.ID
		return s.finishEvent(ctx, event, start, salesforceID, nil)

	default:
		return s.finishEvent(ctx, event, start, "", fmt.Errorf("failed to look up object map: %w", err))
	}
}

// PushDelete removes the Salesforce record linked to a deleted WordPress
// entity, when its fieldmap maps deletes, then drops the object map.
func (s *PushService) PushDelete(ctx context.Context, wordpressObject, wordpressID string) (*models.SyncEvent, error) {
	start := time.Now()
	event := &models.SyncEvent{
		ID:              uuid.NewString(),
		Direction:       models.SyncDirectionPush,
		WordpressID:     wordpressID,
		WordpressObject: wordpressObject,
		Action:          "delete",
	}

	objectMap, err := s.objectMaps.GetByWordpressID(ctx, wordpressObject, wordpressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			event.Status = models.SyncEventStatusSkipped
			event.Message = "no object map, nothing to delete"
			return s.finishEvent(ctx, event, start, "", nil), nil
		}
		finished := s.finishEvent(ctx, event, start, "", err)
		return finished, err
	}
	event.FieldmapID = objectMap.FieldmapID
	event.ObjectMapID = objectMap.ID

	fieldmap, err := s.fieldmaps.GetByID(ctx, objectMap.FieldmapID)
	if err != nil {
		finished := s.finishEvent(ctx, event, start, objectMap.SalesforceID, err)
		return finished, err
	}
	if !fieldmapMapsDeletes(fieldmap) {
		event.Status = models.SyncEventStatusSkipped
		event.Message = "fieldmap does not map deletes"
		return s.finishEvent(ctx, event, start, objectMap.SalesforceID, nil), nil
	}

	if err := s.salesforce.DeleteRecord(fieldmap.SalesforceObject, objectMap.SalesforceID); err != nil {
		s.objectMaps.RecordSyncResult(ctx, objectMap.ID, "delete", false, err.Error())
		finished := s.finishEvent(ctx, event, start, objectMap.SalesforceID, err)
		return finished, err
	}
	if err := s.objectMaps.Delete(ctx, objectMap.ID); err != nil {
		s.logger.WithError(err).WithField("object_map_id", objectMap.ID).Warn("Salesforce record deleted but object map removal failed")
	}
	return s.finishEvent(ctx, event, start, objectMap.SalesforceID, nil), nil
}

// finishEvent stamps status and duration, persists the event and fans it
// out to the activity feed and NATS. Fan-out failures are logged only.
func (s *PushService) finishEvent(ctx context.Context, event *models.SyncEvent, start time.Time, salesforceID string, opErr error) *models.SyncEvent {
	if salesforceID != "" {
		event.SalesforceID = salesforceID
	}
	event.DurationMs = time.Since(start).Milliseconds()
	if opErr != nil {
		event.Status = models.SyncEventStatusError
		event.Message = opErr.Error()
	} else if event.Status == "" {
		event.Status = models.SyncEventStatusSuccess
	}
	event.CreatedAt = time.Now()

	if err := s.events.Create(ctx, event); err != nil {
		s.logger.WithError(err).Error("Failed to persist sync event")
	}

	metrics.SyncOperationsTotal.WithLabelValues(string(event.Direction), string(event.Status)).Inc()
	metrics.SyncDuration.WithLabelValues(string(event.Direction)).Observe(float64(event.DurationMs) / 1000)

	if s.feed != nil {
		s.feed.BroadcastSyncEvent(event)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSyncEvent(event); err != nil {
			s.logger.WithError(err).Warn("Failed to publish sync event to NATS")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":         event.ID,
		"direction":        event.Direction,
		"action":           event.Action,
		"status":           event.Status,
		"wordpress_object": event.WordpressObject,
		"wordpress_id":     event.WordpressID,
		"salesforce_id":    event.SalesforceID,
		"duration_ms":      event.DurationMs,
	}).Info("Sync event finished")

	return event
}

// ParseFieldPairs decodes a fieldmap's stored field pair list.
func ParseFieldPairs(raw string) ([]models.FieldPair, error) {
	if raw == "" {
		return nil, nil
	}
	var pairs []models.FieldPair
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func fieldmapMapsDeletes(fieldmap *models.Fieldmap) bool {
	pairs, err := ParseFieldPairs(fieldmap.Fields)
	if err != nil {
		return false
	}
	for _, pair := range pairs {
		if pair.IsDelete {
			return true
		}
	}
	return false
}
