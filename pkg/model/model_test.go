package model_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-clinicform/pkg/model"
)

func TestDecode_LegacyFlatFields(t *testing.T) {
	raw := []byte(`{"title":"Intake","fields":[{"id":"email","type":"text","required":true}]}`)

	form, err := model.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := model.FormModel{
		Title: "Intake",
		Kind:  model.KindGeneral,
		Steps: []model.FormStep{{
			ID:    model.LegacyStepID,
			Title: "Intake",
			Fields: []model.FormField{
				{ID: "email", Type: model.FieldTypeText, Required: true},
			},
		}},
	}
	if diff := cmp.Diff(want, form); diff != "" {
		t.Fatalf("legacy normalisation mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_StepsWinOverLegacyFields(t *testing.T) {
	raw := []byte(`{"title":"T","steps":[{"id":"a","fields":[]}],"fields":[{"id":"x","type":"text"}]}`)

	form, err := model.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(form.Steps) != 1 || form.Steps[0].ID != "a" {
		t.Fatalf("expected declared steps to be kept, got %#v", form.Steps)
	}
}

func TestDecode_YAML(t *testing.T) {
	raw := []byte(`
title: Booking
kind: booking
steps:
  - id: who
    title: Who
    fields:
      - id: email
        type: text
        role: email
        required: true
      - id: notes
        type: textarea
        logic:
          fieldId: email
          value: a@b.c
`)

	form, err := model.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if form.Kind != model.KindBooking {
		t.Fatalf("kind mismatch: %s", form.Kind)
	}
	notes, ok := form.FieldByID("notes")
	if !ok {
		t.Fatalf("notes field missing")
	}
	want := &model.Logic{Kind: model.LogicSingle, FieldID: "email", Value: "a@b.c", Action: model.ActionShow}
	if diff := cmp.Diff(want, notes.Logic); diff != "" {
		t.Fatalf("logic mismatch (-want +got):\n%s", diff)
	}
	email, _ := form.FieldByID("email")
	if email.Role != model.RoleEmail {
		t.Fatalf("role not decoded: %q", email.Role)
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := model.Decode([]byte("   ")); !errors.Is(err, model.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if _, err := model.Decode([]byte("- a\n- b\n")); err == nil {
		t.Fatalf("expected error for sequence root")
	}
}

func TestLogic_CompoundDecode(t *testing.T) {
	raw := []byte(`{"title":"T","steps":[{"id":"s","fields":[
		{"id":"a","type":"text"},
		{"id":"b","type":"text"},
		{"id":"c","type":"text","logic":{"kind":"AND","action":"Hide","rules":[{"fieldId":"a","value":"x"},{"fieldId":"b","value":2}]}}
	]}]}`)

	form, err := model.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c, _ := form.FieldByID("c")
	if c.Logic.Kind != model.LogicAnd || c.Logic.Action != model.ActionHide {
		t.Fatalf("compound logic not normalised: %#v", c.Logic)
	}
	if diff := cmp.Diff([]string{"a", "b"}, c.Logic.References()); diff != "" {
		t.Fatalf("references mismatch (-want +got):\n%s", diff)
	}
	if c.Logic.Rules[1].Kind != model.LogicSingle {
		t.Fatalf("nested rule kind not defaulted: %q", c.Logic.Rules[1].Kind)
	}
}

func TestCheck(t *testing.T) {
	form := model.FormModel{
		Title: "Broken",
		Steps: []model.FormStep{
			{ID: "one", Fields: []model.FormField{
				{ID: "email", Type: model.FieldTypeText},
				{ID: "email", Type: model.FieldTypeText},
				{ID: "odd", Type: "slider"},
			}},
			{ID: "two", Fields: []model.FormField{
				{ID: "notes", Type: model.FieldTypeTextarea, Logic: &model.Logic{FieldID: "ghost", Value: true}},
			}},
		},
	}

	var codes []model.ViolationCode
	for _, v := range model.Check(form) {
		codes = append(codes, v.Code)
	}
	want := []model.ViolationCode{model.ViolationDuplicateID, model.ViolationUnknownType, model.ViolationDanglingLogic}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}

	if got := model.Check(model.FormModel{}); len(got) != 1 || got[0].Code != model.ViolationNoSteps {
		t.Fatalf("expected no_steps violation, got %#v", got)
	}
}

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, true},
		{"blank string", "  ", true},
		{"string", "x", false},
		{"zero number", 0, false},
		{"false bool", false, false},
		{"empty slice", []any{}, true},
		{"empty string slice", []string{}, true},
		{"slice", []string{"a"}, false},
		{"incomplete schedule", model.ScheduleValue{Practitioner: "p1"}, true},
		{"complete schedule", model.ScheduleValue{Practitioner: "p1", Date: "2025-01-02", Time: "09:00"}, false},
		{"empty map", map[string]any{}, true},
		{"typed empty slice", []int{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := model.IsEmpty(tc.value); got != tc.want {
				t.Fatalf("IsEmpty(%#v) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestIsMissing(t *testing.T) {
	consent := model.FormField{ID: "consent", Type: model.FieldTypeCheckbox}
	topics := model.FormField{ID: "topics", Type: model.FieldTypeCheckbox, Options: []model.Option{{Value: "hair"}}}
	toggle := model.FormField{ID: "toggle", Type: model.FieldTypeSelect}

	cases := []struct {
		name  string
		field model.FormField
		value any
		want  bool
	}{
		{"unticked consent", consent, false, true},
		{"ticked consent", consent, true, false},
		{"unset consent", consent, nil, true},
		{"no topics", topics, []string{}, true},
		{"one topic", topics, []string{"hair"}, false},
		{"false on non-checkbox", toggle, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := model.IsMissing(tc.field, tc.value); got != tc.want {
				t.Fatalf("IsMissing(%s, %#v) = %v, want %v", tc.field.ID, tc.value, got, tc.want)
			}
		})
	}
}

func TestFormValues_Schedule(t *testing.T) {
	values := model.FormValues{
		"typed":   model.ScheduleValue{Practitioner: "p1"},
		"decoded": map[string]any{"practitioner": "p2", "date": "2025-01-02", "time": "10:30"},
		"other":   "nope",
	}

	if got, ok := values.Schedule("typed"); !ok || got.Practitioner != "p1" {
		t.Fatalf("typed schedule: %#v %v", got, ok)
	}
	got, ok := values.Schedule("decoded")
	if !ok {
		t.Fatalf("decoded schedule not converted")
	}
	if diff := cmp.Diff(model.ScheduleValue{Practitioner: "p2", Date: "2025-01-02", Time: "10:30"}, got); diff != "" {
		t.Fatalf("decoded schedule mismatch (-want +got):\n%s", diff)
	}
	if _, ok := values.Schedule("other"); ok {
		t.Fatalf("expected non-schedule value to be rejected")
	}
}

func TestClone_IsDeep(t *testing.T) {
	form := model.FormModel{Steps: []model.FormStep{{ID: "s", Fields: []model.FormField{
		{ID: "doc", Type: model.FieldTypeDoctorSelection, Options: []model.Option{{Label: "A", Value: "a", Specialties: []string{"x"}}}},
		{ID: "n", Type: model.FieldTypeText, Logic: &model.Logic{FieldID: "doc", Value: "a"}},
	}}}}

	clone := form.Clone()
	clone.Steps[0].Fields[0].Options[0].Specialties[0] = "changed"
	clone.Steps[0].Fields[1].Logic.Value = "b"

	if form.Steps[0].Fields[0].Options[0].Specialties[0] != "x" {
		t.Fatalf("option specialties shared with clone")
	}
	if form.Steps[0].Fields[1].Logic.Value != "a" {
		t.Fatalf("logic shared with clone")
	}
}

func TestEffectiveRole(t *testing.T) {
	cases := []struct {
		field model.FormField
		want  model.Role
	}{
		{model.FormField{ID: "contact", Type: model.FieldTypeText, Role: model.RoleEmail}, model.RoleEmail},
		{model.FormField{ID: "patient_email", Type: model.FieldTypeText}, model.RoleEmail},
		{model.FormField{ID: "f1", Type: model.FieldTypeText, Label: "Full name"}, model.RoleName},
		{model.FormField{ID: "f2", Type: model.FieldTypeText, Label: "Mobile phone"}, model.RolePhone},
		{model.FormField{ID: "f3", Type: model.FieldTypeDate, Label: "Date of birth"}, model.RoleDOB},
		{model.FormField{ID: "pw", Type: model.FieldTypeText, Label: "Password"}, model.RolePassword},
		{model.FormField{ID: "name_header", Type: model.FieldTypeHeader, Label: "Name"}, model.RoleNone},
		{model.FormField{ID: "notes", Type: model.FieldTypeTextarea}, model.RoleNone},
	}
	for _, tc := range cases {
		if got := tc.field.EffectiveRole(); got != tc.want {
			t.Fatalf("%s: role = %q, want %q", tc.field.ID, got, tc.want)
		}
	}
}
