package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/runtime"
	"github.com/goliatone/go-clinicform/pkg/store"
)

const intakeForm = `{
  "title": "Intake <b>form</b>",
  "clinicId": "c1",
  "steps": [{"id": "s1", "title": "You", "fields": [
    {"id": "email", "type": "text", "label": "Email", "role": "email", "required": true},
    {"id": "allergies", "type": "select", "label": "Allergies?", "options": [
      {"label": "Yes", "value": "yes"}, {"label": "No", "value": "no"}
    ]},
    {"id": "details", "type": "textarea", "label": "Details", "logic": {"fieldId": "allergies", "value": "yes"}}
  ]}]
}`

type capture struct {
	values []model.FormValues
	err    error
}

func (c *capture) Submit(_ context.Context, _ model.FormModel, values model.FormValues) error {
	c.values = append(c.values, values)
	return c.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	rec := do(t, New(Config{}), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestFormLifecycle(t *testing.T) {
	h := New(Config{Store: store.NewMemoryStore()})

	rec := do(t, h, http.MethodPut, "/api/forms/intake", intakeForm)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: %d %s", rec.Code, rec.Body.String())
	}
	var saved model.FormModel
	decode(t, rec, &saved)
	if saved.ID != "intake" || saved.Title != "Intake form" {
		t.Fatalf("unexpected saved form %q %q", saved.ID, saved.Title)
	}

	rec = do(t, h, http.MethodGet, "/api/forms/intake", "")
	var got model.FormModel
	decode(t, rec, &got)
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Fatalf("stored form mismatch (-saved +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodGet, "/api/forms?clinic=c1", "")
	var list struct {
		Forms []model.FormModel `json:"forms"`
	}
	decode(t, rec, &list)
	if len(list.Forms) != 1 || list.Forms[0].ID != "intake" {
		t.Fatalf("unexpected list %#v", list.Forms)
	}
	rec = do(t, h, http.MethodGet, "/api/forms?clinic=other", "")
	decode(t, rec, &list)
	if len(list.Forms) != 0 {
		t.Fatalf("clinic filter ignored: %#v", list.Forms)
	}

	rec = do(t, h, http.MethodGet, "/api/forms/intake/schema", "")
	var schema struct {
		Required   []string       `json:"required"`
		Properties map[string]any `json:"properties"`
	}
	decode(t, rec, &schema)
	if diff := cmp.Diff([]string{"email"}, schema.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
	if len(schema.Properties) != 3 {
		t.Fatalf("expected 3 properties, got %d", len(schema.Properties))
	}

	if rec = do(t, h, http.MethodDelete, "/api/forms/intake", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec = do(t, h, http.MethodGet, "/api/forms/intake", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
	if rec = do(t, h, http.MethodDelete, "/api/forms/intake", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}

func TestPutRejectsStructuralViolations(t *testing.T) {
	h := New(Config{Store: store.NewMemoryStore()})
	body := `{"title": "Book", "kind": "booking", "steps": [{"id": "s", "fields": [
	  {"id": "a", "type": "text"}, {"id": "a", "type": "text"}
	]}]}`
	rec := do(t, h, http.MethodPut, "/api/forms/book", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp struct {
		Violations []model.Violation `json:"violations"`
	}
	decode(t, rec, &resp)
	codes := map[model.ViolationCode]int{}
	for _, v := range resp.Violations {
		codes[v.Code]++
	}
	if codes[model.ViolationDuplicateID] == 0 || codes[model.ViolationMissingFieldType] != 3 {
		t.Fatalf("unexpected violations %#v", resp.Violations)
	}
	if rec = do(t, h, http.MethodGet, "/api/forms/book", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("refused form was stored")
	}
	if rec = do(t, h, http.MethodPut, "/api/forms/book", "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestSubmissions(t *testing.T) {
	mem := store.NewMemoryStore()
	sink := &capture{}
	h := New(Config{Store: mem, Sink: sink})
	if rec := do(t, h, http.MethodPut, "/api/forms/intake", intakeForm); rec.Code != http.StatusOK {
		t.Fatalf("put: %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/forms/intake/submissions",
		`{"values": {"email": "a@b.co", "allergies": "no", "details": "peanuts"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	want := model.FormValues{"email": "a@b.co", "allergies": "no"}
	if diff := cmp.Diff(want, sink.values[0]); diff != "" {
		t.Fatalf("hidden value leaked (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodPost, "/api/forms/intake/submissions",
		`{"values": {"allergies": "maybe", "shoe": 42}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var rej struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, rec, &rej)
	for _, id := range []string{"email", "allergies", "shoe"} {
		if _, ok := rej.Fields[id]; !ok {
			t.Fatalf("expected a %s error, got %#v", id, rej.Fields)
		}
	}
	if len(sink.values) != 1 {
		t.Fatalf("invalid values reached the sink")
	}

	sink.err = &directory.RejectionError{Kind: directory.RejectionConflict, Message: "taken", Fields: map[string]string{"email": "already booked"}}
	rec = do(t, h, http.MethodPost, "/api/forms/intake/submissions", `{"values": {"email": "a@b.co"}}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	decode(t, rec, &rej)
	if rej.Code != "CONFLICT" || rej.Fields["email"] != "already booked" {
		t.Fatalf("unexpected conflict body %#v", rej)
	}

	if rec = do(t, h, http.MethodPost, "/api/forms/missing/submissions", `{"values": {}}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown form, got %d", rec.Code)
	}
}

func TestSubmissionsDisabledWithoutSink(t *testing.T) {
	var _ runtime.Submitter = (*capture)(nil)
	h := New(Config{Store: store.NewMemoryStore()})
	rec := do(t, h, http.MethodPost, "/api/forms/x/submissions", `{"values": {}}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestTimezonesMounted(t *testing.T) {
	h := New(Config{})
	rec := do(t, h, http.MethodGet, "/api/timezones?zone=Europe/Madrid", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Europe/Madrid") {
		t.Fatalf("zone missing from %s", rec.Body.String())
	}
}
