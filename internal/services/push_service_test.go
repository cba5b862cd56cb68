package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/clients"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/services"

	"gorm.io/gorm"
)

type fakeSyncEventRepo struct {
	events []*models.SyncEvent
}

func (f *fakeSyncEventRepo) Create(_ context.Context, event *models.SyncEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSyncEventRepo) ListRecent(_ context.Context, limit int) ([]*models.SyncEvent, error) {
	if len(f.events) < limit {
		return f.events, nil
	}
	return f.events[:limit], nil
}

func (f *fakeSyncEventRepo) ListByFieldmap(_ context.Context, fieldmapID uint, _ int) ([]*models.SyncEvent, error) {
	var out []*models.SyncEvent
	for _, event := range f.events {
		if event.FieldmapID == fieldmapID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeSyncEventRepo) CountByStatus(_ context.Context, status models.SyncEventStatus) (int64, error) {
	var n int64
	for _, event := range f.events {
		if event.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeSettingRepo struct {
	items map[string]*models.Setting
}

func newFakeSettingRepo() *fakeSettingRepo {
	return &fakeSettingRepo{items: make(map[string]*models.Setting)}
}

func (f *fakeSettingRepo) Get(_ context.Context, key string) (*models.Setting, error) {
	if setting, ok := f.items[key]; ok {
		return setting, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSettingRepo) List(_ context.Context) ([]*models.Setting, error) {
	var out []*models.Setting
	for _, setting := range f.items {
		out = append(out, setting)
	}
	return out, nil
}

func (f *fakeSettingRepo) Upsert(_ context.Context, setting *models.Setting) error {
	f.items[setting.Key] = setting
	return nil
}

// startSalesforceServer serves the OAuth token endpoint plus the given API
// routes, and points the global config at itself.
func startSalesforceServer(t *testing.T, api http.HandlerFunc) *clients.SalesforceClient {
	t.Helper()
	mux := http.NewServeMux()

	var server *httptest.Server
	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "test-token",
			"instance_url": server.URL,
		})
	})
	mux.HandleFunc("/", api)

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	prior := config.AppConfig
	config.AppConfig = &config.Config{
		Salesforce: config.SalesforceConfig{
			InstanceURL: server.URL,
			LoginURL:    server.URL,
			APIVersion:  "v62.0",
			Username:    "admin@example.com",
			Password:    "secret",
			Timeout:     5,
		},
	}
	t.Cleanup(func() { config.AppConfig = prior })

	return clients.NewSalesforceClient()
}

func startWordPressServer(t *testing.T, api http.HandlerFunc) *clients.WordPressClient {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client := clients.NewWordPressClient()
	client.BaseURL = server.URL
	return client
}

const contactFieldPairs = `[
	{"wordpress_field":"name","salesforce_field":"LastName","direction":"sync"},
	{"wordpress_field":"email","salesforce_field":"Email","direction":"wp_sf","is_key":true},
	{"wordpress_field":"bio","salesforce_field":"Description","direction":"sf_wp"}
]`

func TestPushObjectUpsertsNewRecord(t *testing.T) {
	var upsertPath string
	salesforce := startSalesforceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch && strings.Contains(r.URL.Path, "/sobjects/Contact/Email/") {
			upsertPath = r.URL.Path

			var fields map[string]interface{}
			json.NewDecoder(r.Body).Decode(&fields)
			if _, ok := fields["Description"]; ok {
				t.Error("sf_wp field must not be pushed")
			}
			if fields["LastName"] != "Doe" {
				t.Errorf("LastName = %v", fields["LastName"])
			}

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id": "003PUSHED", "success": true, "created": true,
			})
			return
		}
		http.NotFound(w, r)
	})

	wordpress := startWordPressServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp/v2/users/101" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 101, "name": "Doe", "email": "doe@example.com", "bio": "hi",
		})
	})

	fieldmaps := newFakeFieldmapRepo()
	fieldmaps.items[1] = &models.Fieldmap{
		ID:               1,
		Label:            "User to Contact",
		Name:             "user_to_contact",
		WordpressObject:  "users",
		SalesforceObject: "Contact",
		Fields:           contactFieldPairs,
		Status:           models.FieldmapStatusActive,
	}
	objectMaps := newFakeObjectMapRepo()
	events := &fakeSyncEventRepo{}

	push := services.NewPushService(fieldmaps, objectMaps, events, salesforce, wordpress, nil, nil, nil)

	results, err := push.PushObject(context.Background(), "users", "101")
	if err != nil {
		t.Fatalf("PushObject() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d events, want 1", len(results))
	}

	event := results[0]
	if event.Status != models.SyncEventStatusSuccess {
		t.Errorf("Status = %q (%s)", event.Status, event.Message)
	}
	if event.Action != "upsert" {
		t.Errorf("Action = %q, want upsert", event.Action)
	}
	if event.SalesforceID != "003PUSHED" {
		t.Errorf("SalesforceID = %q", event.SalesforceID)
	}
	if !strings.HasSuffix(upsertPath, "/Contact/Email/doe@example.com") {
		t.Errorf("upsert path = %q", upsertPath)
	}

	created, mapErr := objectMaps.GetBySalesforceID(context.Background(), "003PUSHED")
	if mapErr != nil {
		t.Fatalf("object map not created: %v", mapErr)
	}
	if created.WordpressID != "101" || created.FieldmapID != 1 {
		t.Errorf("object map = %+v", created)
	}

	if len(events.events) != 1 {
		t.Errorf("persisted events = %d, want 1", len(events.events))
	}
}

func TestPushObjectUpdatesLinkedRecord(t *testing.T) {
	var gotUpdate bool
	salesforce := startSalesforceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/sobjects/Contact/003EXISTING") {
			gotUpdate = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	})

	wordpress := startWordPressServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 101, "name": "Doe", "email": "doe@example.com",
		})
	})

	fieldmaps := newFakeFieldmapRepo()
	fieldmaps.items[1] = &models.Fieldmap{
		ID:               1,
		WordpressObject:  "users",
		SalesforceObject: "Contact",
		Fields:           contactFieldPairs,
		Status:           models.FieldmapStatusActive,
	}
	objectMaps := newFakeObjectMapRepo()
	objectMaps.items[5] = &models.ObjectMap{
		ID:              5,
		WordpressID:     "101",
		WordpressObject: "users",
		SalesforceID:    "003EXISTING",
		FieldmapID:      1,
	}
	events := &fakeSyncEventRepo{}

	push := services.NewPushService(fieldmaps, objectMaps, events, salesforce, wordpress, nil, nil, nil)

	results, err := push.PushObject(context.Background(), "users", "101")
	if err != nil {
		t.Fatalf("PushObject() error: %v", err)
	}
	if !gotUpdate {
		t.Error("expected an update call for the linked record")
	}
	if results[0].Action != "update" {
		t.Errorf("Action = %q, want update", results[0].Action)
	}
	if !objectMaps.items[5].LastSyncStatus {
		t.Error("object map sync result not recorded")
	}
}

func TestPushObjectEmptyKeyValueSkips(t *testing.T) {
	salesforce := startSalesforceServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no Salesforce write expected, got %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	wordpress := startWordPressServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": 101, "name": "Doe", "email": "",
		})
	})

	fieldmaps := newFakeFieldmapRepo()
	fieldmaps.items[1] = &models.Fieldmap{
		ID:               1,
		Label:            "User to Contact",
		Name:             "user_to_contact",
		WordpressObject:  "users",
		SalesforceObject: "Contact",
		Fields:           contactFieldPairs,
		Status:           models.FieldmapStatusActive,
	}
	objectMaps := newFakeObjectMapRepo()
	events := &fakeSyncEventRepo{}

	push := services.NewPushService(fieldmaps, objectMaps, events, salesforce, wordpress, nil, nil, nil)

	results, err := push.PushObject(context.Background(), "users", "101")
	if err != nil {
		t.Fatalf("PushObject() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d events, want 1", len(results))
	}

	event := results[0]
	if event.Status != models.SyncEventStatusSkipped {
		t.Errorf("Status = %q (%s), want skipped", event.Status, event.Message)
	}
	if _, mapErr := objectMaps.GetByWordpressID(context.Background(), "users", "101"); mapErr == nil {
		t.Error("no object map should be created for a skipped push")
	}
}

func TestPushObjectNoFieldmap(t *testing.T) {
	push := services.NewPushService(newFakeFieldmapRepo(), newFakeObjectMapRepo(), &fakeSyncEventRepo{}, nil, nil, nil, nil, nil)

	if _, err := push.PushObject(context.Background(), "users", "101"); err == nil {
		t.Error("PushObject() should fail when no active fieldmap exists")
	}
}

func TestPullObjectCreatesWordPressRecord(t *testing.T) {
	salesforce := startSalesforceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/services/data/v62.0/query") {
			soql := r.URL.Query().Get("q")
			if !strings.Contains(soql, "FROM Contact") || !strings.Contains(soql, "'003REMOTE'") {
				t.Errorf("unexpected SOQL: %s", soql)
			}
			json.NewEncoder(w).Encode(clients.QueryResult{
				TotalSize: 1,
				Done:      true,
				Records: []map[string]interface{}{
					{"Id": "003REMOTE", "LastName": "Puller", "Description": "from sf"},
				},
			})
			return
		}
		http.NotFound(w, r)
	})

	var createdBody map[string]interface{}
	wordpress := startWordPressServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/wp/v2/users" {
			json.NewDecoder(r.Body).Decode(&createdBody)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 202})
			return
		}
		http.NotFound(w, r)
	})

	fieldmaps := newFakeFieldmapRepo()
	fieldmaps.items[1] = &models.Fieldmap{
		ID:               1,
		WordpressObject:  "users",
		SalesforceObject: "Contact",
		Fields:           contactFieldPairs,
		Status:           models.FieldmapStatusActive,
	}
	objectMaps := newFakeObjectMapRepo()
	events := &fakeSyncEventRepo{}

	pull := services.NewPullService(fieldmaps, objectMaps, events, newFakeSettingRepo(), salesforce, wordpress, nil, nil, 50, 0, nil)

	event, err := pull.PullObject(context.Background(), "Contact", "003REMOTE")
	if err != nil {
		t.Fatalf("PullObject() error: %v", err)
	}
	if event.Status != models.SyncEventStatusSuccess {
		t.Fatalf("Status = %q (%s)", event.Status, event.Message)
	}
	if event.Action != "create" || event.WordpressID != "202" {
		t.Errorf("event = %+v", event)
	}

	// Only sf_wp and sync directions cross into WordPress.
	if createdBody["name"] != "Puller" || createdBody["bio"] != "from sf" {
		t.Errorf("created body = %v", createdBody)
	}
	if _, ok := createdBody["email"]; ok {
		t.Error("wp_sf field must not be pulled")
	}

	if _, err := objectMaps.GetBySalesforceID(context.Background(), "003REMOTE"); err != nil {
		t.Errorf("object map not created: %v", err)
	}
}
