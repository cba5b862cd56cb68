package dto_test

import (
	"net/url"
	"testing"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/dto"

	"github.com/google/go-cmp/cmp"
)

func TestParseFieldmapSubmission(t *testing.T) {
	values := url.Values{}
	values.Set("method", "add")
	values.Set("label", " Contact Map ")
	values.Set("wordpress_object", "user")
	values.Set("salesforce_object", "Contact")
	values.Set("push_async", "on")
	values.Set("pull_to_drafts", "0")
	values.Set("redirect_url_success", "https://example.com/ok")
	values.Set("redirect_url_error", "https://example.com/err")
	values.Set("transient", "deadbeefdeadbeefdeadbeefdeadbeef")

	sub := dto.ParseFieldmapSubmission(values)

	if sub.Entity != dto.EntityFieldmap {
		t.Errorf("Entity = %q, want fieldmap", sub.Entity)
	}
	if sub.Method != dto.MethodAdd {
		t.Errorf("Method = %q, want add", sub.Method)
	}
	if sub.Fieldmap.Label != "Contact Map" {
		t.Errorf("Label = %q, want trimmed label", sub.Fieldmap.Label)
	}
	if !sub.Fieldmap.PushAsync {
		t.Error("push_async=on should parse as true")
	}
	if sub.Fieldmap.PullToDrafts {
		t.Error("pull_to_drafts=0 should parse as false")
	}
	if sub.RedirectSuccess != "https://example.com/ok" || sub.RedirectError != "https://example.com/err" {
		t.Errorf("redirects not captured: %q / %q", sub.RedirectSuccess, sub.RedirectError)
	}
	if sub.PriorTransient != "deadbeefdeadbeefdeadbeefdeadbeef" {
		t.Errorf("PriorTransient = %q", sub.PriorTransient)
	}
}

func TestParseExcludesRoutingFieldsFromPayload(t *testing.T) {
	values := url.Values{}
	values.Set("method", "add")
	values.Set("label", "X")
	values.Set("redirect_url_success", "https://example.com/ok")
	values.Set("redirect_url_error", "https://example.com/err")
	values.Set("transient", "deadbeefdeadbeefdeadbeefdeadbeef")

	sub := dto.ParseFieldmapSubmission(values)

	want := map[string]string{
		"method": "add",
		"label":  "X",
	}
	if diff := cmp.Diff(want, sub.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestParseObjectMapSubmission(t *testing.T) {
	values := url.Values{}
	values.Set("method", "edit")
	values.Set("id", "12")
	values.Set("wordpress_id", "101")
	values.Set("wordpress_object", "user")
	values.Set("salesforce_id", "003xx")

	sub := dto.ParseObjectMapSubmission(values)

	if sub.Entity != dto.EntityObjectMap {
		t.Errorf("Entity = %q, want object_map", sub.Entity)
	}
	if sub.ID != "12" {
		t.Errorf("ID = %q, want 12", sub.ID)
	}
	if sub.ObjectMap.WordpressID != "101" || sub.ObjectMap.SalesforceID != "003xx" {
		t.Errorf("object map fields not captured: %+v", sub.ObjectMap)
	}
}
