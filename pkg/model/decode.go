package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// LegacyStepID is assigned to the synthetic step wrapping a flat field list.
const LegacyStepID = "step-1"

// ErrEmptyDocument is returned when Decode receives no content.
var ErrEmptyDocument = errors.New("model: empty form document")

// UnmarshalJSON accepts the current steps shape and the legacy flat `fields`
// shape, normalising the latter into a single step.
func (f *FormModel) UnmarshalJSON(data []byte) error {
	type alias FormModel
	var raw struct {
		alias
		Fields []FormField `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = FormModel(raw.alias)
	if len(f.Steps) == 0 && len(raw.Fields) > 0 {
		f.Steps = []FormStep{{
			ID:     LegacyStepID,
			Title:  f.Title,
			Fields: raw.Fields,
		}}
	}
	if f.Kind == "" {
		f.Kind = KindGeneral
	}
	return nil
}

// Decode parses a serialised form. JSON is tried first and YAML second, so
// authors can keep configs in either format.
func Decode(data []byte) (FormModel, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return FormModel{}, ErrEmptyDocument
	}

	var form FormModel
	jsonErr := json.Unmarshal(trimmed, &form)
	if jsonErr == nil {
		return form, nil
	}

	var generic any
	if err := yaml.Unmarshal(trimmed, &generic); err != nil {
		return FormModel{}, fmt.Errorf("model: decode: invalid JSON (%v) or YAML (%w)", jsonErr, err)
	}
	if _, ok := generic.(map[string]any); !ok {
		return FormModel{}, fmt.Errorf("model: decode: expected a mapping at document root, got %T", generic)
	}
	bridged, err := json.Marshal(generic)
	if err != nil {
		return FormModel{}, fmt.Errorf("model: decode: bridge yaml: %w", err)
	}
	if err := json.Unmarshal(bridged, &form); err != nil {
		return FormModel{}, fmt.Errorf("model: decode: %w", err)
	}
	return form, nil
}

// Encode serialises the model in its canonical JSON shape.
func Encode(form FormModel) ([]byte, error) {
	return json.Marshal(form)
}
