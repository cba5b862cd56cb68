package dto

import (
	"net/url"
	"strings"
)

// EntityKind selects which mapping entity an admin form addresses.
type EntityKind string

const (
	EntityFieldmap  EntityKind = "fieldmap"
	EntityObjectMap EntityKind = "object_map"
)

// FormMethod is the operation requested by the form, derived from the
// submitted "method" field.
type FormMethod string

const (
	MethodAdd    FormMethod = "add"
	MethodEdit   FormMethod = "edit"
	MethodClone  FormMethod = "clone"
	MethodDelete FormMethod = "delete"
)

// Reserved form fields that route the request rather than describe the
// entity. They are excluded from the canonical payload so that a
// resubmission carrying a prior transient token hashes to the same value
// as the original submission.
var reservedFields = map[string]bool{
	"redirect_url_success": true,
	"redirect_url_error":   true,
	"transient":            true,
}

// Submission is one parsed admin form submission. Payload holds the
// canonical field map used for token derivation and error stashing;
// exactly one of Fieldmap/ObjectMap is set according to Entity.
type Submission struct {
	Entity          EntityKind
	Method          FormMethod
	ID              string
	RedirectSuccess string
	RedirectError   string
	PriorTransient  string
	Payload         map[string]string

	Fieldmap  *FieldmapSubmission
	ObjectMap *ObjectMapSubmission
}

// FieldmapSubmission carries the typed fields of a fieldmap form.
type FieldmapSubmission struct {
	Label            string
	WordpressObject  string
	SalesforceObject string
	Fields           string // jsonb array of field pairs, passed through as submitted
	SyncTriggers     string
	PushAsync        bool
	PushDrafts       bool
	PullToDrafts     bool
}

// ObjectMapSubmission carries the typed fields of an object-map form.
type ObjectMapSubmission struct {
	WordpressID     string
	WordpressObject string
	SalesforceID    string
}

// RedirectDecision is the terminal outcome of one form submission.
type RedirectDecision struct {
	Location string
	Stashed  bool
	Token    string
}

// ParseFieldmapSubmission builds a fieldmap Submission from form values.
func ParseFieldmapSubmission(values url.Values) Submission {
	sub := parseCommon(values)
	sub.Entity = EntityFieldmap
	sub.Fieldmap = &FieldmapSubmission{
		Label:            strings.TrimSpace(values.Get("label")),
		WordpressObject:  strings.TrimSpace(values.Get("wordpress_object")),
		SalesforceObject: strings.TrimSpace(values.Get("salesforce_object")),
		Fields:           values.Get("fields"),
		SyncTriggers:     values.Get("sync_triggers"),
		PushAsync:        isTruthy(values.Get("push_async")),
		PushDrafts:       isTruthy(values.Get("push_drafts")),
		PullToDrafts:     isTruthy(values.Get("pull_to_drafts")),
	}
	return sub
}

// ParseObjectMapSubmission builds an object-map Submission from form values.
func ParseObjectMapSubmission(values url.Values) Submission {
	sub := parseCommon(values)
	sub.Entity = EntityObjectMap
	sub.ObjectMap = &ObjectMapSubmission{
		WordpressID:     strings.TrimSpace(values.Get("wordpress_id")),
		WordpressObject: strings.TrimSpace(values.Get("wordpress_object")),
		SalesforceID:    strings.TrimSpace(values.Get("salesforce_id")),
	}
	return sub
}

func parseCommon(values url.Values) Submission {
	payload := make(map[string]string, len(values))
	for key := range values {
		if reservedFields[key] {
			continue
		}
		payload[key] = values.Get(key)
	}

	return Submission{
		Method:          FormMethod(values.Get("method")),
		ID:              strings.TrimSpace(values.Get("id")),
		RedirectSuccess: values.Get("redirect_url_success"),
		RedirectError:   values.Get("redirect_url_error"),
		PriorTransient:  values.Get("transient"),
		Payload:         payload,
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
