package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/dto"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/services"

	"github.com/google/go-cmp/cmp"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeFieldmapRepo struct {
	items     map[uint]*models.Fieldmap
	nextID    uint
	createErr error
	updateErr error
	deleteErr error
}

func newFakeFieldmapRepo() *fakeFieldmapRepo {
	return &fakeFieldmapRepo{items: make(map[uint]*models.Fieldmap), nextID: 1}
}

func (f *fakeFieldmapRepo) Create(_ context.Context, fieldmap *models.Fieldmap) error {
	if f.createErr != nil {
		return f.createErr
	}
	fieldmap.ID = f.nextID
	f.nextID++
	f.items[fieldmap.ID] = fieldmap
	return nil
}

func (f *fakeFieldmapRepo) GetByID(_ context.Context, id uint) (*models.Fieldmap, error) {
	if fieldmap, ok := f.items[id]; ok {
		return fieldmap, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeFieldmapRepo) GetByName(_ context.Context, name string) (*models.Fieldmap, error) {
	for _, fieldmap := range f.items {
		if fieldmap.Name == name {
			return fieldmap, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeFieldmapRepo) Update(_ context.Context, fieldmap *models.Fieldmap) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.items[fieldmap.ID] = fieldmap
	return nil
}

func (f *fakeFieldmapRepo) Delete(_ context.Context, id uint) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.items[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeFieldmapRepo) List(_ context.Context, _, _ int) ([]*models.Fieldmap, int64, error) {
	var out []*models.Fieldmap
	for _, fieldmap := range f.items {
		out = append(out, fieldmap)
	}
	return out, int64(len(out)), nil
}

func (f *fakeFieldmapRepo) FindActiveByWordpressObject(_ context.Context, wordpressObject string) ([]*models.Fieldmap, error) {
	var out []*models.Fieldmap
	for _, fieldmap := range f.items {
		if fieldmap.WordpressObject == wordpressObject && fieldmap.Status == models.FieldmapStatusActive {
			out = append(out, fieldmap)
		}
	}
	return out, nil
}

func (f *fakeFieldmapRepo) FindActiveBySalesforceObject(_ context.Context, salesforceObject string) ([]*models.Fieldmap, error) {
	var out []*models.Fieldmap
	for _, fieldmap := range f.items {
		if fieldmap.SalesforceObject == salesforceObject && fieldmap.Status == models.FieldmapStatusActive {
			out = append(out, fieldmap)
		}
	}
	return out, nil
}

func (f *fakeFieldmapRepo) FindActive(_ context.Context) ([]*models.Fieldmap, error) {
	var out []*models.Fieldmap
	for _, fieldmap := range f.items {
		if fieldmap.Status == models.FieldmapStatusActive {
			out = append(out, fieldmap)
		}
	}
	return out, nil
}

type fakeObjectMapRepo struct {
	items     map[uint]*models.ObjectMap
	nextID    uint
	createErr error
	deleteErr error
}

func newFakeObjectMapRepo() *fakeObjectMapRepo {
	return &fakeObjectMapRepo{items: make(map[uint]*models.ObjectMap), nextID: 1}
}

func (f *fakeObjectMapRepo) Create(_ context.Context, objectMap *models.ObjectMap) error {
	if f.createErr != nil {
		return f.createErr
	}
	objectMap.ID = f.nextID
	f.nextID++
	f.items[objectMap.ID] = objectMap
	return nil
}

func (f *fakeObjectMapRepo) GetByID(_ context.Context, id uint) (*models.ObjectMap, error) {
	if objectMap, ok := f.items[id]; ok {
		return objectMap, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeObjectMapRepo) GetByWordpressID(_ context.Context, wordpressObject, wordpressID string) (*models.ObjectMap, error) {
	for _, objectMap := range f.items {
		if objectMap.WordpressObject == wordpressObject && objectMap.WordpressID == wordpressID {
			return objectMap, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeObjectMapRepo) GetBySalesforceID(_ context.Context, salesforceID string) (*models.ObjectMap, error) {
	for _, objectMap := range f.items {
		if objectMap.SalesforceID == salesforceID {
			return objectMap, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeObjectMapRepo) Update(_ context.Context, objectMap *models.ObjectMap) error {
	f.items[objectMap.ID] = objectMap
	return nil
}

func (f *fakeObjectMapRepo) Delete(_ context.Context, id uint) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.items[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeObjectMapRepo) List(_ context.Context, _, _ int) ([]*models.ObjectMap, int64, error) {
	var out []*models.ObjectMap
	for _, objectMap := range f.items {
		out = append(out, objectMap)
	}
	return out, int64(len(out)), nil
}

func (f *fakeObjectMapRepo) FindByFieldmap(_ context.Context, fieldmapID uint) ([]*models.ObjectMap, error) {
	var out []*models.ObjectMap
	for _, objectMap := range f.items {
		if objectMap.FieldmapID == fieldmapID {
			out = append(out, objectMap)
		}
	}
	return out, nil
}

func (f *fakeObjectMapRepo) RecordSyncResult(_ context.Context, id uint, action string, ok bool, message string) error {
	objectMap, found := f.items[id]
	if !found {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	objectMap.LastSyncAt = &now
	objectMap.LastSyncAction = action
	objectMap.LastSyncStatus = ok
	objectMap.LastSyncMessage = message
	return nil
}

type fakeTransientRepo struct {
	entries map[string]map[string]string
	setErr  error
	deleted []string
}

func newFakeTransientRepo() *fakeTransientRepo {
	return &fakeTransientRepo{entries: make(map[string]map[string]string)}
}

func (f *fakeTransientRepo) Set(_ context.Context, token string, payload map[string]string, _ time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	copied := make(map[string]string, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	f.entries[token] = copied
	return nil
}

func (f *fakeTransientRepo) Get(_ context.Context, token string) (map[string]string, error) {
	if payload, ok := f.entries[token]; ok {
		return payload, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeTransientRepo) Delete(_ context.Context, token string) error {
	delete(f.entries, token)
	f.deleted = append(f.deleted, token)
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const (
	successURL = "https://example.com/wp-admin/admin.php?page=mappings"
	errorURL   = "https://example.com/wp-admin/admin.php?page=mappings&tab=edit"
)

type fixture struct {
	forms      *services.FormService
	fieldmaps  *fakeFieldmapRepo
	objectMaps *fakeObjectMapRepo
	transients *fakeTransientRepo
}

func newFixture() *fixture {
	fieldmaps := newFakeFieldmapRepo()
	objectMaps := newFakeObjectMapRepo()
	transients := newFakeTransientRepo()
	return &fixture{
		forms:      services.NewFormService(fieldmaps, objectMaps, transients, 0, "2.3.0", nil),
		fieldmaps:  fieldmaps,
		objectMaps: objectMaps,
		transients: transients,
	}
}

func fieldmapForm(overrides map[string]string) url.Values {
	values := url.Values{}
	values.Set("method", "add")
	values.Set("label", "Contact Map")
	values.Set("wordpress_object", "user")
	values.Set("salesforce_object", "Contact")
	values.Set("redirect_url_success", successURL)
	values.Set("redirect_url_error", errorURL)
	for key, value := range overrides {
		if value == "" {
			values.Del(key)
			continue
		}
		values.Set(key, value)
	}
	return values
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPayloadToken(t *testing.T) {
	payload := map[string]string{
		"method": "add",
		"label":  "Contact Map",
	}

	// md5("label=Contact Map&method=add")
	want := "5bbee352466b936471c258d8d8d9a2e3"
	if got := services.PayloadToken(payload); got != want {
		t.Errorf("PayloadToken() = %q, want %q", got, want)
	}

	// Key order must not matter.
	same := map[string]string{
		"label":  "Contact Map",
		"method": "add",
	}
	if got := services.PayloadToken(same); got != want {
		t.Errorf("PayloadToken() with reordered keys = %q, want %q", got, want)
	}

	if got := services.PayloadToken(map[string]string{"method": "edit", "label": "Contact Map"}); got == want {
		t.Error("PayloadToken() should differ for a different payload")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Contact Map", "contact_map"},
		{"  User -> Contact  ", "user_contact"},
		{"Already_fine", "already_fine"},
		{"UPPER", "upper"},
		{"a  b   c", "a_b_c"},
		{"trailing!!!", "trailing"},
	}
	for _, tt := range tests {
		if got := services.Slugify(tt.label); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestSubmitFieldmapAdd(t *testing.T) {
	fx := newFixture()
	sub := dto.ParseFieldmapSubmission(fieldmapForm(nil))

	decision := fx.forms.Submit(context.Background(), sub)

	if decision.Stashed {
		t.Fatal("successful submission should not stash")
	}
	if decision.Location != successURL {
		t.Errorf("Location = %q, want %q", decision.Location, successURL)
	}
	if len(fx.transients.entries) != 0 {
		t.Errorf("transient store has %d entries, want 0", len(fx.transients.entries))
	}

	created, err := fx.fieldmaps.GetByName(context.Background(), "contact_map")
	if err != nil {
		t.Fatalf("created fieldmap not found: %v", err)
	}
	if created.Label != "Contact Map" {
		t.Errorf("Label = %q, want %q", created.Label, "Contact Map")
	}
	if created.Version != "2.3.0" {
		t.Errorf("Version = %q, want %q", created.Version, "2.3.0")
	}
	if created.Status != models.FieldmapStatusActive {
		t.Errorf("Status = %q, want active", created.Status)
	}
}

func TestSubmitValidationFailureStashesPayload(t *testing.T) {
	fx := newFixture()
	sub := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{"label": ""}))

	decision := fx.forms.Submit(context.Background(), sub)

	if !decision.Stashed {
		t.Fatal("validation failure should stash the payload")
	}
	wantToken := services.PayloadToken(sub.Payload)
	if decision.Token != wantToken {
		t.Errorf("Token = %q, want %q", decision.Token, wantToken)
	}
	wantLocation := errorURL + "&transient=" + wantToken
	if decision.Location != wantLocation {
		t.Errorf("Location = %q, want %q", decision.Location, wantLocation)
	}

	recovered, err := fx.forms.RecoverPayload(context.Background(), wantToken)
	if err != nil {
		t.Fatalf("RecoverPayload() error: %v", err)
	}
	if diff := cmp.Diff(sub.Payload, recovered); diff != "" {
		t.Errorf("recovered payload mismatch (-want +got):\n%s", diff)
	}

	if len(fx.fieldmaps.items) != 0 {
		t.Error("rejected submission must not write to the mapping store")
	}
}

func TestSubmitPersistenceFailureStashesPayload(t *testing.T) {
	fx := newFixture()
	fx.fieldmaps.createErr = errors.New("duplicate label")
	sub := dto.ParseFieldmapSubmission(fieldmapForm(nil))

	decision := fx.forms.Submit(context.Background(), sub)

	if !decision.Stashed {
		t.Fatal("persistence failure should stash the payload")
	}
	if _, ok := fx.transients.entries[decision.Token]; !ok {
		t.Error("payload not found in transient store")
	}
}

func TestSubmitDeleteFailureCarriesIDNotToken(t *testing.T) {
	fx := newFixture()
	sub := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{
		"method": "delete",
		"id":     "42",
	}))

	// No fieldmap 42 exists, so the delete fails.
	decision := fx.forms.Submit(context.Background(), sub)

	if decision.Stashed {
		t.Fatal("failed delete must not stash a transient")
	}
	wantLocation := errorURL + "&id=42"
	if decision.Location != wantLocation {
		t.Errorf("Location = %q, want %q", decision.Location, wantLocation)
	}
	if len(fx.transients.entries) != 0 {
		t.Errorf("transient store has %d entries, want 0", len(fx.transients.entries))
	}
}

func TestSubmitDeleteSuccess(t *testing.T) {
	fx := newFixture()
	fx.fieldmaps.items[7] = &models.Fieldmap{ID: 7, Label: "Old", Name: "old"}

	sub := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{
		"method": "delete",
		"id":     "7",
		"label":  "",
	}))

	decision := fx.forms.Submit(context.Background(), sub)
	if decision.Location != successURL {
		t.Errorf("Location = %q, want %q", decision.Location, successURL)
	}
	if _, ok := fx.fieldmaps.items[7]; ok {
		t.Error("fieldmap 7 should be gone")
	}
}

func TestSubmitSuccessClearsPriorTransient(t *testing.T) {
	fx := newFixture()

	// First attempt fails validation and stashes.
	failed := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{"label": ""}))
	first := fx.forms.Submit(context.Background(), failed)
	if !first.Stashed {
		t.Fatal("setup: first submission should stash")
	}

	// Resubmission carries the prior token and succeeds.
	form := fieldmapForm(nil)
	form.Set("transient", first.Token)
	retry := dto.ParseFieldmapSubmission(form)

	decision := fx.forms.Submit(context.Background(), retry)
	if decision.Location != successURL {
		t.Fatalf("Location = %q, want %q", decision.Location, successURL)
	}
	if _, ok := fx.transients.entries[first.Token]; ok {
		t.Error("prior transient should be cleared after success")
	}
}

func TestTokenStableWhenRoutingFieldsChange(t *testing.T) {
	base := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{"label": ""}))

	// The same entity payload resubmitted with a transient token and
	// different redirect URLs must hash identically.
	form := fieldmapForm(map[string]string{"label": ""})
	form.Set("transient", "aaaabbbbccccddddaaaabbbbccccdddd")
	form.Set("redirect_url_success", "https://example.com/other")
	resubmitted := dto.ParseFieldmapSubmission(form)

	if got, want := services.PayloadToken(resubmitted.Payload), services.PayloadToken(base.Payload); got != want {
		t.Errorf("token changed across resubmission: %q != %q", got, want)
	}
}

func TestSubmitEditFieldmap(t *testing.T) {
	fx := newFixture()
	fx.fieldmaps.items[3] = &models.Fieldmap{
		ID:               3,
		Label:            "Old Label",
		Name:             "old_label",
		WordpressObject:  "post",
		SalesforceObject: "Lead",
		Version:          "2.2.0",
		Status:           models.FieldmapStatusActive,
	}

	sub := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{
		"method": "edit",
		"id":     "3",
		"label":  "New Label",
	}))

	decision := fx.forms.Submit(context.Background(), sub)
	if decision.Location != successURL {
		t.Fatalf("Location = %q, want %q", decision.Location, successURL)
	}

	updated := fx.fieldmaps.items[3]
	if updated.Label != "New Label" || updated.Name != "new_label" {
		t.Errorf("fieldmap not updated: label=%q name=%q", updated.Label, updated.Name)
	}
	if updated.Version != "2.3.0" {
		t.Errorf("Version = %q, want 2.3.0", updated.Version)
	}
}

func TestSubmitEditMissingIDFailsValidation(t *testing.T) {
	fx := newFixture()
	sub := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{"method": "edit"}))

	decision := fx.forms.Submit(context.Background(), sub)
	if !decision.Stashed {
		t.Error("edit without id should stash")
	}
}

func TestSubmitUnknownMethodFailsValidation(t *testing.T) {
	fx := newFixture()
	sub := dto.ParseFieldmapSubmission(fieldmapForm(map[string]string{"method": "upsert"}))

	decision := fx.forms.Submit(context.Background(), sub)
	if !decision.Stashed {
		t.Error("unknown method should stash")
	}
}

func TestSubmitObjectMap(t *testing.T) {
	fx := newFixture()

	form := url.Values{}
	form.Set("method", "add")
	form.Set("wordpress_id", "101")
	form.Set("wordpress_object", "user")
	form.Set("salesforce_id", "003000000000001AAA")
	form.Set("redirect_url_success", successURL)
	form.Set("redirect_url_error", errorURL)

	sub := dto.ParseObjectMapSubmission(form)
	decision := fx.forms.Submit(context.Background(), sub)
	if decision.Location != successURL {
		t.Fatalf("Location = %q, want %q", decision.Location, successURL)
	}

	created, err := fx.objectMaps.GetByWordpressID(context.Background(), "user", "101")
	if err != nil {
		t.Fatalf("created object map not found: %v", err)
	}
	if created.SalesforceID != "003000000000001AAA" {
		t.Errorf("SalesforceID = %q", created.SalesforceID)
	}

	// Missing salesforce_id is a validation failure.
	form.Del("salesforce_id")
	bad := dto.ParseObjectMapSubmission(form)
	if decision := fx.forms.Submit(context.Background(), bad); !decision.Stashed {
		t.Error("object map without salesforce_id should stash")
	}
}

func TestErrorRedirectJoinsQueryCorrectly(t *testing.T) {
	tests := []struct {
		name     string
		errorURL string
		wantSep  string
	}{
		{"bare url", "https://example.com/admin", "?"},
		{"url with query", "https://example.com/admin?page=1", "&"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture()
			form := fieldmapForm(map[string]string{"label": "", "redirect_url_error": tt.errorURL})
			sub := dto.ParseFieldmapSubmission(form)

			decision := fx.forms.Submit(context.Background(), sub)
			want := fmt.Sprintf("%s%stransient=%s", tt.errorURL, tt.wantSep, decision.Token)
			if decision.Location != want {
				t.Errorf("Location = %q, want %q", decision.Location, want)
			}
		})
	}
}
