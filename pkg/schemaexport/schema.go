// Package schemaexport describes the values of a form as an OpenAPI schema
// and validates submitted payloads against it.
package schemaexport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-clinicform/pkg/model"
)

const (
	datePattern  = `^\d{4}-\d{2}-\d{2}$`
	clockPattern = `^\d{2}:\d{2}$`
)

// ValidationError lists per-field problems found in a payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	ids := make([]string, 0, len(e.Fields))
	for id := range e.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+e.Fields[id])
	}
	return "schemaexport: invalid values: " + strings.Join(parts, "; ")
}

// AsValidation unwraps a *ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// Export is the value schema of one form.
type Export struct {
	form   model.FormModel
	schema *openapi3.Schema
}

// New builds the value schema for form.
func New(form model.FormModel) *Export {
	return &Export{form: form.Clone(), schema: Build(form)}
}

// Schema returns the object schema for the form's values.
func (e *Export) Schema() *openapi3.Schema { return e.schema }

// Build returns an object schema with one property per data field. Fields
// that can be hidden at runtime, by a rule or by an account lookup, are never
// listed as required.
func Build(form model.FormModel) *openapi3.Schema {
	obj := openapi3.NewObjectSchema().WithoutAdditionalProperties()
	if form.Title != "" {
		obj.Title = form.Title
	}
	var required []string
	for _, field := range form.Fields() {
		if field.IsLayout() || field.ID == "" {
			continue
		}
		obj.WithProperty(field.ID, fieldSchema(field))
		if (field.Required || field.Locked) && field.Logic == nil && field.EffectiveRole() != model.RolePassword {
			required = append(required, field.ID)
		}
	}
	if len(required) > 0 {
		obj.WithRequired(required)
	}
	return obj
}

func fieldSchema(field model.FormField) *openapi3.Schema {
	var s *openapi3.Schema
	switch field.Type {
	case model.FieldTypeNumber:
		s = openapi3.NewFloat64Schema()
	case model.FieldTypeDate:
		s = openapi3.NewStringSchema().WithPattern(datePattern)
	case model.FieldTypeCheckbox:
		items := openapi3.NewStringSchema()
		if enum := optionValues(field); len(enum) > 0 {
			items.WithEnum(enum...)
		}
		s = openapi3.NewAnyOfSchema(openapi3.NewBoolSchema(), openapi3.NewArraySchema().WithItems(items))
	case model.FieldTypeSelect, model.FieldTypeServiceSelection, model.FieldTypeDoctorSelection, model.FieldTypePractitionerSelection:
		s = openapi3.NewStringSchema()
		if enum := optionValues(field); len(enum) > 0 {
			s.WithEnum(enum...)
		}
	case model.FieldTypeSchedule:
		s = openapi3.NewObjectSchema().
			WithProperty("specialty", openapi3.NewStringSchema()).
			WithProperty("practitioner", openapi3.NewStringSchema()).
			WithProperty("date", openapi3.NewStringSchema().WithPattern(datePattern)).
			WithProperty("time", openapi3.NewStringSchema().WithPattern(clockPattern))
	default:
		s = openapi3.NewStringSchema()
	}
	s.Title = field.Label
	s.Description = field.Help
	return s.WithNullable()
}

// optionValues returns curated option values. Entity-bound fields with no
// curated options accept any id.
func optionValues(field model.FormField) []any {
	if len(field.Options) == 0 {
		return nil
	}
	out := make([]any, 0, len(field.Options))
	for _, opt := range field.Options {
		out = append(out, opt.Value)
	}
	return out
}

// Validate checks values against the schema. Every problem is reported,
// keyed by field id.
func (e *Export) Validate(values model.FormValues) error {
	doc, err := normalize(values)
	if err != nil {
		return fmt.Errorf("schemaexport: %w", err)
	}
	fields := map[string]string{}
	for id := range doc {
		if _, known := e.schema.Properties[id]; !known {
			fields[id] = "unknown field"
			delete(doc, id)
		}
	}

	if err := e.schema.VisitJSON(doc, openapi3.MultiErrors()); err != nil {
		collect(err, fields)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// normalize round-trips values through JSON so typed Go values (ScheduleValue,
// []string, ints) reach the validator in their wire shape.
func normalize(values model.FormValues) (map[string]any, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func collect(err error, fields map[string]string) {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, inner := range multi {
			collect(inner, fields)
		}
		return
	}
	var schemaErr *openapi3.SchemaError
	if !errors.As(err, &schemaErr) {
		fields[""] = err.Error()
		return
	}
	key := ""
	if path := schemaErr.JSONPointer(); len(path) > 0 {
		key = path[0]
	}
	if _, seen := fields[key]; seen {
		return
	}
	msg := schemaErr.Reason
	if msg == "" {
		msg = schemaErr.Error()
	}
	fields[key] = msg
}
