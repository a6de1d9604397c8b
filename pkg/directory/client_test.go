package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL+"/api/", WithHeader("X-Clinic-Key", "k1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClient_PractitionersEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/practitioners" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Clinic-Key") != "k1" {
			t.Errorf("missing clinic key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","name":"Dr. Ruiz","specialties":["derm"],"timeZone":"America/New_York"}]}`))
	})

	got, err := client.Practitioners(context.Background())
	if err != nil {
		t.Fatalf("practitioners: %v", err)
	}
	want := []Practitioner{{ID: "p1", Name: "Dr. Ruiz", Specialties: []string{"derm"}, TimeZone: "America/New_York"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("practitioners mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_ServicesBareArrayWithFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("practitionerId") != "p1" {
			t.Errorf("practitioner filter not sent: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"s1","name":"Peel","duration":30,"price":120.5}]`))
	})

	got, err := client.Services(context.Background(), "p1")
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	if diff := cmp.Diff([]Service{{ID: "s1", Name: "Peel", Duration: 30, Price: 120.5}}, got); diff != "" {
		t.Fatalf("services mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_PractitionerValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"p1"}]`))
	})
	if _, err := client.Practitioners(context.Background()); err == nil {
		t.Fatalf("expected validation error for practitioner without name")
	}
}

func TestClient_AvailableSlots(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("date") != "2025-03-10" || q.Get("type") != "online" || q.Get("timeZone") != "Europe/Madrid" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"slots":[{"time":"09:00","type":"online","available":true}],"allSlots":[{"time":"09:00","type":"online","available":true},{"time":"09:30","type":"online","available":false}]}`))
	})

	got, err := client.AvailableSlots(context.Background(), SlotQuery{
		PractitionerID:   "p1",
		Date:             "2025-03-10",
		ConsultationType: ConsultationOnline,
		TimeZone:         "Europe/Madrid",
	})
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(got.Slots) != 1 || len(got.AllSlots) != 2 {
		t.Fatalf("unexpected slot result %#v", got)
	}
}

func TestClient_AvailableSlotsRejectsBadTime(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"slots":[{"time":"9am","available":true}]}`))
	})
	_, err := client.AvailableSlots(context.Background(), SlotQuery{PractitionerID: "p1", Date: "2025-03-10"})
	if err == nil {
		t.Fatalf("expected validation error for malformed slot time")
	}
}

func TestClient_LookupEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") != "sarah@example.com" || r.URL.Query().Get("clinicId") != "c1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"exists":true,"user":{"name":"Sarah Connor"}}`))
	})

	got, err := client.LookupEmail(context.Background(), "sarah@example.com", "c1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	want := LookupResult{Exists: true, User: &Account{Name: "Sarah Connor"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lookup mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_StatusAndTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	if _, err := client.Practitioners(context.Background()); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}

	block := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(block)

	timed, err := NewClient(slow.URL, WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := timed.Services(context.Background(), ""); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestNewClient_RequiresAbsoluteURL(t *testing.T) {
	if _, err := NewClient("/relative"); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}

func TestConsultationType(t *testing.T) {
	if ConsultationOnline.Complement() != ConsultationInPerson || ConsultationInPerson.Complement() != ConsultationOnline {
		t.Fatalf("complement mismatch")
	}
	got, err := ParseConsultationType("In_Person")
	if err != nil || got != ConsultationInPerson {
		t.Fatalf("parse: %v %v", got, err)
	}
	if _, err := ParseConsultationType("carrier pigeon"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestStatic(t *testing.T) {
	raw := []byte(`
practitioners:
  - id: p1
    name: Dr. Ruiz
    specialties: [derm]
services:
  - id: s1
    name: Peel
  - id: s2
    name: Laser
servicesByPractitioner:
  p1: [s2]
slots:
  p1@2025-03-10:
    - {time: "09:00", type: online, available: true}
    - {time: "10:00", type: in-person, available: true}
    - {time: "11:00", type: in-person, available: false}
accounts:
  Sarah@Example.com: {name: Sarah Connor}
`)
	dir, err := LoadStatic(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()

	svcs, _ := dir.Services(ctx, "p1")
	if len(svcs) != 1 || svcs[0].ID != "s2" {
		t.Fatalf("service filter mismatch: %#v", svcs)
	}
	res, _ := dir.AvailableSlots(ctx, SlotQuery{PractitionerID: "p1", Date: "2025-03-10", ConsultationType: ConsultationInPerson})
	if len(res.Slots) != 1 || len(res.AllSlots) != 2 {
		t.Fatalf("slot filter mismatch: %#v", res)
	}
	look, _ := dir.LookupEmail(ctx, "sarah@example.com", "")
	if !look.Exists || look.User.Name != "Sarah Connor" {
		t.Fatalf("lookup mismatch: %#v", look)
	}
}
