package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/clients"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/metrics"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const soqlTimeLayout = "2006-01-02T15:04:05Z"

// PullService moves modified Salesforce records into WordPress, driven by
// the active fieldmaps for each Salesforce object. A background scheduler
// runs PullModified on a fixed interval.
type PullService struct {
	fieldmaps  repository.FieldmapRepository
	objectMaps repository.ObjectMapRepository
	events     repository.SyncEventRepository
	settings   repository.SettingRepository
	salesforce *clients.SalesforceClient
	wordpress  *clients.WordPressClient
	publisher  *clients.NATSPublisher
	feed       *ActivityFeedService
	logger     *logrus.Logger

	batchSize int
	interval  time.Duration
	stop      chan struct{}
}

// NewPullService creates a new PullService. publisher and feed may be nil.
// interval zero disables the scheduler.
func NewPullService(
	fieldmaps repository.FieldmapRepository,
	objectMaps repository.ObjectMapRepository,
	events repository.SyncEventRepository,
	settings repository.SettingRepository,
	salesforce *clients.SalesforceClient,
	wordpress *clients.WordPressClient,
	publisher *clients.NATSPublisher,
	feed *ActivityFeedService,
	batchSize int,
	interval time.Duration,
	logger *logrus.Logger,
) *PullService {
	if logger == nil {
		logger = logrus.New()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &PullService{
		fieldmaps:  fieldmaps,
		objectMaps: objectMaps,
		events:     events,
		settings:   settings,
		salesforce: salesforce,
		wordpress:  wordpress,
		publisher:  publisher,
		feed:       feed,
		logger:     logger,
		batchSize:  batchSize,
		interval:   interval,
		stop:       make(chan struct{}),
	}
}

// Start launches the pull scheduler. It returns immediately; the loop
// stops when Stop is called or the context is cancelled.
func (s *PullService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Pull scheduler disabled, interval is zero")
		return
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.WithField("interval", s.interval.String()).Info("Pull scheduler started")

		for {
			select {
			case <-ticker.C:
				if err := s.PullModified(ctx); err != nil {
					s.logger.WithError(err).Error("Scheduled pull failed")
				}
			case <-s.stop:
				s.logger.Info("Pull scheduler stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the pull scheduler.
func (s *PullService) Stop() {
	close(s.stop)
}

// PullModified pulls every Salesforce record modified since the last pull
// for each active fieldmap.
func (s *PullService) PullModified(ctx context.Context) error {
	fieldmaps, err := s.fieldmaps.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active fieldmaps: %w", err)
	}

	var firstErr error
	for _, fieldmap := range fieldmaps {
		if err := s.pullFieldmap(ctx, fieldmap); err != nil {
			s.logger.WithError(err).WithField("fieldmap_id", fieldmap.ID).Error("Pull failed for fieldmap")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PullObject pulls one Salesforce record into WordPress through the first
// active fieldmap for its object type.
func (s *PullService) PullObject(ctx context.Context, salesforceObject, salesforceID string) (*models.SyncEvent, error) {
	fieldmaps, err := s.fieldmaps.FindActiveBySalesforceObject(ctx, salesforceObject)
	if err != nil {
		return nil, fmt.Errorf("failed to load fieldmaps for %s: %w", salesforceObject, err)
	}
	if len(fieldmaps) == 0 {
		return nil, fmt.Errorf("no active fieldmap for salesforce object %s", salesforceObject)
	}
	fieldmap := fieldmaps[0]

	pairs, err := ParseFieldPairs(fieldmap.Fields)
	if err != nil {
		return nil, fmt.Errorf("fieldmap %d has invalid fields: %w", fieldmap.ID, err)
	}

	soql := fmt.Sprintf("SELECT %s FROM %s WHERE Id = '%s'",
		strings.Join(pullQueryFields(pairs), ", "), fieldmap.SalesforceObject, salesforceID)
	result, err := s.salesforce.Query(soql)
	if err != nil {
		return nil, fmt.Errorf("salesforce query failed: %w", err)
	}
	if len(result.Records) == 0 {
		return nil, fmt.Errorf("salesforce record %s not found", salesforceID)
	}

	event := s.pullRecord(ctx, fieldmap, pairs, result.Records[0])
	if event.Status == models.SyncEventStatusError {
		return event, errors.New(event.Message)
	}
	return event, nil
}

func (s *PullService) pullFieldmap(ctx context.Context, fieldmap *models.Fieldmap) error {
	pairs, err := ParseFieldPairs(fieldmap.Fields)
	if err != nil {
		return fmt.Errorf("fieldmap %d has invalid fields: %w", fieldmap.ID, err)
	}

	since := s.lastPullTime(ctx, fieldmap)
	pullStarted := time.Now().UTC()

	soql := fmt.Sprintf("SELECT %s FROM %s WHERE LastModifiedDate > %s ORDER BY LastModifiedDate ASC LIMIT %d",
		strings.Join(pullQueryFields(pairs), ", "),
		fieldmap.SalesforceObject,
		since.UTC().Format(soqlTimeLayout),
		s.batchSize)

	result, err := s.salesforce.Query(soql)
	if err != nil {
		return fmt.Errorf("salesforce query failed: %w", err)
	}

	pulled := 0
	for {
		for _, record := range result.Records {
			s.pullRecord(ctx, fieldmap, pairs, record)
			pulled++
		}
		if result.Done || result.NextRecordsURL == "" {
			break
		}
		result, err = s.salesforce.QueryMore(result.NextRecordsURL)
		if err != nil {
			return fmt.Errorf("salesforce query continuation failed: %w", err)
		}
	}

	if err := s.storeLastPullTime(ctx, fieldmap, pullStarted); err != nil {
		s.logger.WithError(err).WithField("fieldmap_id", fieldmap.ID).Warn("Failed to store pull checkpoint")
	}

	if pulled > 0 {
		s.logger.WithFields(logrus.Fields{
			"fieldmap_id": fieldmap.ID,
			"records":     pulled,
		}).Info("Pull batch finished")
	}
	return nil
}

func (s *PullService) pullRecord(ctx context.Context, fieldmap *models.Fieldmap, pairs []models.FieldPair, record map[string]interface{}) *models.SyncEvent {
	start := time.Now()
	salesforceID, _ := record["Id"].(string)
	event := &models.SyncEvent{
		ID:              uuid.NewString(),
		Direction:       models.SyncDirectionPull,
		FieldmapID:      fieldmap.ID,
		WordpressObject: fieldmap.WordpressObject,
		SalesforceID:    salesforceID,
	}

	wpFields := make(map[string]interface{})
	for _, pair := range pairs {
		if pair.Direction != "sf_wp" && pair.Direction != "sync" {
			continue
		}
		if value, ok := record[pair.SalesforceField]; ok {
			wpFields[pair.WordpressField] = value
		}
	}
	if len(wpFields) == 0 {
		event.Status = models.SyncEventStatusSkipped
		event.Message = "no pullable fields mapped"
		return s.finishEvent(ctx, event, start, nil)
	}
	if fieldmap.PullToDrafts {
		wpFields["status"] = "draft"
	}

	objectMap, err := s.objectMaps.GetBySalesforceID(ctx, salesforceID)
	switch {
	case err == nil:
		event.Action = "update"
		event.WordpressID = objectMap.WordpressID
		event.ObjectMapID = objectMap.ID
		if updateErr := s.wordpress.UpdateRecord(fieldmap.WordpressObject, objectMap.WordpressID, wpFields); updateErr != nil {
			s.objectMaps.RecordSyncResult(ctx, objectMap.ID, event.Action, false, updateErr.Error())
			return s.finishEvent(ctx, event, start, updateErr)
		}
		s.objectMaps.RecordSyncResult(ctx, objectMap.ID, event.Action, true, "")
		return s.finishEvent(ctx, event, start, nil)

	case errors.Is(err, gorm.ErrRecordNotFound):
		event.Action = "create"
		wordpressID, createErr := s.wordpress.CreateRecord(fieldmap.WordpressObject, wpFields)
		if createErr != nil {
			return s.finishEvent(ctx, event, start, createErr)
		}
		event.WordpressID = wordpressID

		now := time.Now()
		newMap := &models.ObjectMap{
			WordpressID:     wordpressID,
			WordpressObject: fieldmap.WordpressObject,
			SalesforceID:    salesforceID,
			FieldmapID:      fieldmap.ID,
			LastSyncAt:      &now,
			LastSyncAction:  event.Action,
			LastSyncStatus:  true,
		}
		if mapErr := s.objectMaps.Create(ctx, newMap); mapErr != nil {
			return s.finishEvent(ctx, event, start, fmt.Errorf("record synced but mapping not saved: %w", mapErr))
		}
		event.ObjectMapID = newMap.ID
		return s.finishEvent(ctx, event, start, nil)

	default:
		return s.finishEvent(ctx, event, start, fmt.Errorf("failed to look up object map: %w", err))
	}
}

func (s *PullService) finishEvent(ctx context.Context, event *models.SyncEvent, start time.Time, opErr error) *models.SyncEvent {
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

func (s *PullService) lastPullTime(ctx context.Context, fieldmap *models.Fieldmap) time.Time {
	setting, err := s.settings.Get(ctx, pullCheckpointKey(fieldmap))
	if err == nil {
		if ts, parseErr := time.Parse(time.RFC3339, setting.Value); parseErr == nil {
			return ts
		}
	}
	// First pull for this fieldmap: look back one day.
	return time.Now().Add(-24 * time.Hour)
}

func (s *PullService) storeLastPullTime(ctx context.Context, fieldmap *models.Fieldmap, ts time.Time) error {
	return s.settings.Upsert(ctx, &models.Setting{
		Key:         pullCheckpointKey(fieldmap),
		Value:       ts.Format(time.RFC3339),
		Description: fmt.Sprintf("Last pull checkpoint for fieldmap %q", fieldmap.Label),
		UpdatedBy:   "pull_scheduler",
	})
}

func pullCheckpointKey(fieldmap *models.Fieldmap) string {
	return fmt.Sprintf("pull_last_sync_%d", fieldmap.ID)
}

// pullQueryFields builds the SOQL select list for a fieldmap's pullable
// fields, always including Id and LastModifiedDate.
func pullQueryFields(pairs []models.FieldPair) []string {
	seen := map[string]bool{"Id": true, "LastModifiedDate": true}
	fields := []string{"Id", "LastModifiedDate"}
	for _, pair := range pairs {
		if pair.Direction != "sf_wp" && pair.Direction != "sync" {
			continue
		}
		if pair.SalesforceField == "" || seen[pair.SalesforceField] {
			continue
		}
		seen[pair.SalesforceField] = true
		fields = append(fields, pair.SalesforceField)
	}
	return fields
}
