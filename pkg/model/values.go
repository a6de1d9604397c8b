package model

import (
	"reflect"
	"strings"
)

// FormValues maps field ids to their current value. The shape depends on the
// field type: scalars for text/number/date/select, []any or []string for
// checkbox, a URL string for file_upload and ScheduleValue for schedule.
type FormValues map[string]any

// ValidationErrors maps field ids to a user-facing message.
type ValidationErrors map[string]string

// ScheduleValue is the structured value of a schedule field. Date and Time are
// wall-clock values in the practitioner's zone ("2006-01-02", "15:04").
type ScheduleValue struct {
	Specialty    string `json:"specialty,omitempty"`
	Practitioner string `json:"practitioner,omitempty"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
}

// Complete reports whether the value names a concrete slot.
func (v ScheduleValue) Complete() bool {
	return v.Practitioner != "" && v.Date != "" && v.Time != ""
}

// Clone copies the map. Slices and schedule values are copied too.
func (v FormValues) Clone() FormValues {
	out := make(FormValues, len(v))
	for k, val := range v {
		switch typed := val.(type) {
		case []any:
			out[k] = append([]any(nil), typed...)
		case []string:
			out[k] = append([]string(nil), typed...)
		case *ScheduleValue:
			if typed != nil {
				cp := *typed
				out[k] = cp
			}
		default:
			out[k] = val
		}
	}
	return out
}

// Schedule extracts a ScheduleValue stored under id. Values decoded from JSON
// arrive as map[string]any and are converted.
func (v FormValues) Schedule(id string) (ScheduleValue, bool) {
	raw, ok := v[id]
	if !ok || raw == nil {
		return ScheduleValue{}, false
	}
	switch typed := raw.(type) {
	case ScheduleValue:
		return typed, true
	case *ScheduleValue:
		if typed == nil {
			return ScheduleValue{}, false
		}
		return *typed, true
	case map[string]any:
		out := ScheduleValue{}
		out.Specialty, _ = typed["specialty"].(string)
		out.Practitioner, _ = typed["practitioner"].(string)
		out.Date, _ = typed["date"].(string)
		out.Time, _ = typed["time"].(string)
		return out, true
	default:
		return ScheduleValue{}, false
	}
}

// String returns the value stored under id when it is a string.
func (v FormValues) String(id string) string {
	s, _ := v[id].(string)
	return s
}

// IsEmpty reports whether a value counts as "not provided" for required
// validation: nil, blank strings, empty collections and schedule values
// without a chosen slot.
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		return len(typed) == 0
	case []string:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	case ScheduleValue:
		return !typed.Complete()
	case *ScheduleValue:
		return typed == nil || !typed.Complete()
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// IsMissing reports whether value leaves field unanswered. On top of IsEmpty,
// an unticked single checkbox counts as unanswered.
func IsMissing(field FormField, value any) bool {
	if IsEmpty(value) {
		return true
	}
	if ticked, ok := value.(bool); ok && field.Type == FieldTypeCheckbox {
		return !ticked
	}
	return false
}
