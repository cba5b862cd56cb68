package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/dto"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/metrics"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/repository"

	"github.com/sirupsen/logrus"
)

// FormService is the admin form controller. It validates a submitted
// mapping form, dispatches the requested mutation to the mapping store,
// and decides which URL the browser is redirected to. A failed submission
// stashes its payload in the transient store keyed by a content hash so
// the form can be re-rendered with the user's prior input.
type FormService struct {
	fieldmaps    repository.FieldmapRepository
	objectMaps   repository.ObjectMapRepository
	transients   repository.TransientRepository
	transientTTL time.Duration
	version      string
	logger       *logrus.Logger
}

// NewFormService creates a FormService. transientTTL of zero keeps stashed
// payloads until they are explicitly cleared.
func NewFormService(
	fieldmaps repository.FieldmapRepository,
	objectMaps repository.ObjectMapRepository,
	transients repository.TransientRepository,
	transientTTL time.Duration,
	version string,
	logger *logrus.Logger,
) *FormService {
	if logger == nil {
		logger = logrus.New()
	}
	return &FormService{
		fieldmaps:    fieldmaps,
		objectMaps:   objectMaps,
		transients:   transients,
		transientTTL: transientTTL,
		version:      version,
		logger:       logger,
	}
}

// Submit handles one admin form submission end to end and returns the
// redirect the handler must answer with. Validation and persistence
// failures never surface as errors; every outcome is a redirect.
func (s *FormService) Submit(ctx context.Context, sub dto.Submission) dto.RedirectDecision {
	if field, ok := s.validate(sub); !ok {
		metrics.FormSubmissionsTotal.WithLabelValues(string(sub.Entity), string(sub.Method), "validation_failure").Inc()
		metrics.FormValidationFailures.WithLabelValues(string(sub.Entity), field).Inc()
		s.logger.WithFields(logrus.Fields{
			"entity": sub.Entity,
			"method": sub.Method,
			"field":  field,
		}).Warn("Form submission rejected by validation")
		return s.stashAndRedirect(ctx, sub)
	}

	if err := s.dispatch(ctx, sub); err != nil {
		metrics.FormSubmissionsTotal.WithLabelValues(string(sub.Entity), string(sub.Method), "persistence_failure").Inc()
		s.logger.WithFields(logrus.Fields{
			"entity": sub.Entity,
			"method": sub.Method,
			"id":     sub.ID,
			"error":  err.Error(),
		}).Warn("Mapping store rejected form submission")

		// A failed delete carries the record id back instead of a
		// transient token; there is no payload worth re-rendering.
		if sub.Method == dto.MethodDelete {
			return dto.RedirectDecision{
				Location: appendQueryParam(sub.RedirectError, "id", sub.ID),
			}
		}
		return s.stashAndRedirect(ctx, sub)
	}

	metrics.FormSubmissionsTotal.WithLabelValues(string(sub.Entity), string(sub.Method), "success").Inc()

	if sub.PriorTransient != "" {
		// Best effort: the entry may have expired or never existed.
		if err := s.transients.Delete(ctx, sub.PriorTransient); err != nil {
			s.logger.WithFields(logrus.Fields{
				"token": sub.PriorTransient,
				"error": err.Error(),
			}).Debug("Failed to clear prior transient")
		} else {
			metrics.TransientsCleared.Inc()
		}
	}

	return dto.RedirectDecision{Location: sub.RedirectSuccess}
}

// RecoverPayload returns the payload stashed under a transient token so a
// form can be re-populated after an error redirect.
func (s *FormService) RecoverPayload(ctx context.Context, token string) (map[string]string, error) {
	return s.transients.Get(ctx, token)
}

// validate reports the first missing required field. Required keys vary
// by entity kind and method.
func (s *FormService) validate(sub dto.Submission) (string, bool) {
	switch sub.Method {
	case dto.MethodAdd, dto.MethodEdit, dto.MethodClone:
	case dto.MethodDelete:
		if sub.ID == "" {
			return "id", false
		}
		return "", true
	default:
		return "method", false
	}

	switch sub.Entity {
	case dto.EntityFieldmap:
		if sub.Fieldmap == nil {
			return "fieldmap", false
		}
		if sub.Fieldmap.Label == "" {
			return "label", false
		}
		if sub.Fieldmap.SalesforceObject == "" {
			return "salesforce_object", false
		}
		if sub.Fieldmap.WordpressObject == "" {
			return "wordpress_object", false
		}
	case dto.EntityObjectMap:
		if sub.ObjectMap == nil {
			return "object_map", false
		}
		if sub.ObjectMap.WordpressID == "" {
			return "wordpress_id", false
		}
		if sub.ObjectMap.SalesforceID == "" {
			return "salesforce_id", false
		}
	default:
		return "entity", false
	}

	if sub.Method == dto.MethodEdit && sub.ID == "" {
		return "id", false
	}
	return "", true
}

// dispatch routes the validated submission to the mapping store.
func (s *FormService) dispatch(ctx context.Context, sub dto.Submission) error {
	switch sub.Entity {
	case dto.EntityFieldmap:
		return s.dispatchFieldmap(ctx, sub)
	case dto.EntityObjectMap:
		return s.dispatchObjectMap(ctx, sub)
	}
	return fmt.Errorf("unknown entity kind %q", sub.Entity)
}

func (s *FormService) dispatchFieldmap(ctx context.Context, sub dto.Submission) error {
	switch sub.Method {
	case dto.MethodAdd, dto.MethodClone:
		fieldmap := fieldmapFromSubmission(sub.Fieldmap)
		fieldmap.Version = s.version
		return s.fieldmaps.Create(ctx, fieldmap)

	case dto.MethodEdit:
		id, err := parseID(sub.ID)
		if err != nil {
			return err
		}
		existing, err := s.fieldmaps.GetByID(ctx, id)
		if err != nil {
			return err
		}
		applyFieldmapSubmission(existing, sub.Fieldmap)
		existing.Version = s.version
		return s.fieldmaps.Update(ctx, existing)

	case dto.MethodDelete:
		id, err := parseID(sub.ID)
		if err != nil {
			return err
		}
		return s.fieldmaps.Delete(ctx, id)
	}
	return fmt.Errorf("unknown method %q", sub.Method)
}

func (s *FormService) dispatchObjectMap(ctx context.Context, sub dto.Submission) error {
	switch sub.Method {
	case dto.MethodAdd, dto.MethodClone:
		return s.objectMaps.Create(ctx, &models.ObjectMap{
			WordpressID:     sub.ObjectMap.WordpressID,
			WordpressObject: sub.ObjectMap.WordpressObject,
			SalesforceID:    sub.ObjectMap.SalesforceID,
		})

	case dto.MethodEdit:
		id, err := parseID(sub.ID)
		if err != nil {
			return err
		}
		existing, err := s.objectMaps.GetByID(ctx, id)
		if err != nil {
			return err
		}
		existing.WordpressID = sub.ObjectMap.WordpressID
		existing.SalesforceID = sub.ObjectMap.SalesforceID
		if sub.ObjectMap.WordpressObject != "" {
			existing.WordpressObject = sub.ObjectMap.WordpressObject
		}
		return s.objectMaps.Update(ctx, existing)

	case dto.MethodDelete:
		id, err := parseID(sub.ID)
		if err != nil {
			return err
		}
		return s.objectMaps.Delete(ctx, id)
	}
	return fmt.Errorf("unknown method %q", sub.Method)
}

// stashAndRedirect persists the payload under its content hash and builds
// the error redirect carrying the token.
func (s *FormService) stashAndRedirect(ctx context.Context, sub dto.Submission) dto.RedirectDecision {
	token := PayloadToken(sub.Payload)

	if err := s.transients.Set(ctx, token, sub.Payload, s.transientTTL); err != nil {
		// The redirect still carries the token; recovery will simply
		// find nothing and the user re-enters the form from scratch.
		s.logger.WithFields(logrus.Fields{
			"token": token,
			"error": err.Error(),
		}).Error("Failed to stash form payload")
	} else {
		metrics.TransientsStashed.Inc()
	}

	return dto.RedirectDecision{
		Location: appendQueryParam(sub.RedirectError, "transient", token),
		Stashed:  true,
		Token:    token,
	}
}

// PayloadToken derives the transient token from a payload: keys are
// sorted, joined as k=v pairs with "&", and hashed with md5. Identical
// payloads always produce the same token.
func PayloadToken(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+payload[key])
	}

	sum := md5.Sum([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(sum[:])
}

// appendQueryParam attaches key=value to a URL, joining with "?" or "&"
// depending on whether the URL already carries a query string.
func appendQueryParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + key + "=" + url.QueryEscape(value)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return uint(id), nil
}

// fieldmapFromSubmission builds a new fieldmap record from form input.
func fieldmapFromSubmission(sub *dto.FieldmapSubmission) *models.Fieldmap {
	return &models.Fieldmap{
		Label:            sub.Label,
		Name:             Slugify(sub.Label),
		WordpressObject:  sub.WordpressObject,
		SalesforceObject: sub.SalesforceObject,
		Fields:           sub.Fields,
		SyncTriggers:     sub.SyncTriggers,
		PushAsync:        sub.PushAsync,
		PushDrafts:       sub.PushDrafts,
		PullToDrafts:     sub.PullToDrafts,
		Status:           models.FieldmapStatusActive,
	}
}

func applyFieldmapSubmission(fieldmap *models.Fieldmap, sub *dto.FieldmapSubmission) {
	fieldmap.Label = sub.Label
	fieldmap.Name = Slugify(sub.Label)
	fieldmap.WordpressObject = sub.WordpressObject
	fieldmap.SalesforceObject = sub.SalesforceObject
	fieldmap.Fields = sub.Fields
	fieldmap.SyncTriggers = sub.SyncTriggers
	fieldmap.PushAsync = sub.PushAsync
	fieldmap.PushDrafts = sub.PushDrafts
	fieldmap.PullToDrafts = sub.PullToDrafts
}

// Slugify lowercases a label and collapses anything that is not a letter
// or digit into single underscores.
func Slugify(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
