package console

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/runtime"
	"github.com/goliatone/go-clinicform/pkg/testsupport"
)

type stubDriver struct {
	inputs       []string
	selectIdx    []int
	multiIdx     [][]int
	confirm      []bool
	textAreas    []string
	passwords    []string
	infoMessages []string
	inputPos     int
	selectPos    int
	multiPos     int
	confirmPos   int
	textPos      int
	passPos      int
}

func (s *stubDriver) Input(_ context.Context, _ InputConfig) (string, error) {
	if s.inputPos >= len(s.inputs) {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[s.inputPos]
	s.inputPos++
	return val, nil
}

func (s *stubDriver) Password(_ context.Context, _ InputConfig) (string, error) {
	if s.passPos >= len(s.passwords) {
		return "", errors.New("no password scripted")
	}
	val := s.passwords[s.passPos]
	s.passPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, _ ConfirmConfig) (bool, error) {
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, _ SelectConfig) (int, error) {
	if s.selectPos >= len(s.selectIdx) {
		return -1, errors.New("no select scripted")
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) MultiSelect(_ context.Context, _ SelectConfig) ([]int, error) {
	if s.multiPos >= len(s.multiIdx) {
		return nil, errors.New("no multiselect scripted")
	}
	val := s.multiIdx[s.multiPos]
	s.multiPos++
	return val, nil
}

func (s *stubDriver) TextArea(_ context.Context, _ TextAreaConfig) (string, error) {
	if s.textPos >= len(s.textAreas) {
		return "", errors.New("no textarea scripted")
	}
	val := s.textAreas[s.textPos]
	s.textPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infoMessages = append(s.infoMessages, msg)
	return nil
}

type captureSubmitter struct {
	values []model.FormValues
	errs   []error
}

func (c *captureSubmitter) Submit(_ context.Context, _ model.FormModel, values model.FormValues) error {
	c.values = append(c.values, values)
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

const bookingForm = `{
  "id": "booking",
  "title": "Booking",
  "steps": [
    {"id": "you", "title": "About you", "fields": [
      {"id": "email", "type": "text", "label": "Email", "role": "email", "required": true},
      {"id": "name", "type": "text", "label": "Name", "role": "name", "required": true},
      {"id": "password", "type": "text", "label": "Password", "role": "password", "required": true}
    ]},
    {"id": "visit", "title": "Visit", "fields": [
      {"id": "doctor", "type": "doctor_selection", "label": "Doctor", "required": true, "locked": true},
      {"id": "when", "type": "schedule", "label": "When", "required": true, "locked": true},
      {"id": "notes", "type": "textarea", "label": "Notes"},
      {"id": "consent", "type": "checkbox", "label": "I agree", "required": true},
      {"id": "areas", "type": "checkbox", "label": "Areas", "options": [
        {"label": "Face", "value": "face"}, {"label": "Neck", "value": "neck"}
      ]}
    ]}
  ]
}`


func newSession(t *testing.T, raw string, sub runtime.Submitter) *runtime.Session {
	t.Helper()
	form, err := model.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	dir := testsupport.MustLoadDirectory(t, filepath.Join("testdata", "directory.yaml"))
	s, err := runtime.New(form, runtime.WithDirectory(dir), runtime.WithSubmitter(sub))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestRunnerFillsAndSubmits(t *testing.T) {
	sub := &captureSubmitter{}
	s := newSession(t, bookingForm, sub)
	driver := &stubDriver{
		inputs:    []string{"sarah@example.com", "Sarah Connor", "2025-03-10"},
		selectIdx: []int{0, 1},
		textAreas: []string{"none"},
		confirm:   []bool{true},
		multiIdx:  [][]int{{1}},
	}

	if err := NewRunner(WithDriver(driver)).Run(context.Background(), s); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.State() != runtime.StateSubmitted {
		t.Fatalf("expected submitted, got %s", s.State())
	}
	if driver.passPos != 0 {
		t.Fatalf("password prompted for a known account")
	}
	if len(sub.values) != 1 {
		t.Fatalf("expected one submission, got %d", len(sub.values))
	}
	want := model.FormValues{
		"email":   "sarah@example.com",
		"name":    "Sarah Connor",
		"doctor":  "p1",
		"when":    model.ScheduleValue{Specialty: "derm", Practitioner: "p1", Date: "2025-03-10", Time: "10:00"},
		"notes":   "none",
		"consent": true,
		"areas":   []string{"neck"},
	}
	if diff := cmp.Diff(want, sub.values[0]); diff != "" {
		t.Fatalf("submitted values mismatch (-want +got):\n%s", diff)
	}
	if got := driver.infoMessages[len(driver.infoMessages)-1]; got != "Submitted." {
		t.Fatalf("unexpected final message %q", got)
	}
}

func TestRunnerRepromptsFailedFields(t *testing.T) {
	sub := &captureSubmitter{}
	raw := `{"steps":[{"id":"s","fields":[{"id":"age","type":"number","label":"Age","required":true}]}]}`
	s := newSession(t, raw, sub)
	driver := &stubDriver{inputs: []string{"", "42"}}

	if err := NewRunner(WithDriver(driver)).Run(context.Background(), s); err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{"! Age is required", "Submitted."}, driver.infoMessages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
	if got := sub.values[0]["age"]; got != 42.0 {
		t.Fatalf("expected numeric age, got %#v", got)
	}
}

func TestRunnerStopsOnUnconfiguredRequiredField(t *testing.T) {
	raw := `{"steps":[{"id":"s","fields":[{"id":"svc","type":"service_selection","label":"Service","required":true}]}]}`
	s := newSession(t, raw, &captureSubmitter{})
	driver := &stubDriver{}

	err := NewRunner(WithDriver(driver)).Run(context.Background(), s)
	if !errors.Is(err, ErrUnanswerable) {
		t.Fatalf("expected ErrUnanswerable, got %v", err)
	}
	if diff := cmp.Diff([]string{"Service *: none configured"}, driver.infoMessages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRunnerRetriesRejectedSubmission(t *testing.T) {
	sub := &captureSubmitter{errs: []error{&directory.RejectionError{
		Kind:    directory.RejectionConflict,
		Message: "slot taken",
		Fields:  map[string]string{"nick": "Already used"},
	}}}
	raw := `{"steps":[{"id":"s","fields":[{"id":"nick","type":"text","label":"Nickname"}]}]}`
	s := newSession(t, raw, sub)
	driver := &stubDriver{inputs: []string{"neo", "trinity"}, confirm: []bool{true}}

	if err := NewRunner(WithDriver(driver)).Run(context.Background(), s); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sub.values) != 2 {
		t.Fatalf("expected two attempts, got %d", len(sub.values))
	}
	if got := sub.values[1]["nick"]; got != "trinity" {
		t.Fatalf("retry should carry the corrected value, got %#v", got)
	}
}

func TestRunnerGivesUpWhenDeclined(t *testing.T) {
	rejection := &directory.RejectionError{Kind: directory.RejectionValidation}
	sub := &captureSubmitter{errs: []error{rejection}}
	raw := `{"steps":[{"id":"s","fields":[{"id":"nick","type":"text"}]}]}`
	s := newSession(t, raw, sub)
	driver := &stubDriver{inputs: []string{"neo"}, confirm: []bool{false}}

	err := NewRunner(WithDriver(driver)).Run(context.Background(), s)
	if !errors.Is(err, rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if s.State() != runtime.StateEditing {
		t.Fatalf("session should be editable after a rejection")
	}
}
