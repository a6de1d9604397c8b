package runtime

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-clinicform/pkg/model"
)

// ValidateStep checks every visible data field of step index. Required
// fields with an empty value fail. Unless silent, the step's errors are
// replaced by the failures found; a silent call never touches errors.
func (s *Session) ValidateStep(index int, silent bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.form.Steps) {
		return false
	}
	return s.validateStepLocked(index, silent, false)
}

// Complete reports whether every step would pass validation right now,
// without recording errors.
func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.form.Steps {
		if !s.validateStepLocked(i, true, true) {
			return false
		}
	}
	return true
}

// validateStepLocked treats locked data fields as required when strict is
// set, so structurally required values cannot be submitted empty.
func (s *Session) validateStepLocked(index int, silent, strict bool) bool {
	step := s.form.Steps[index]
	failures := make(map[string]string)
	for _, field := range step.Fields {
		if field.IsLayout() || !s.visibleLocked(field) {
			continue
		}
		required := field.Required || (strict && field.Locked)
		if !required || !model.IsMissing(field, s.values[field.ID]) {
			continue
		}
		failures[field.ID] = requiredMessage(field)
	}
	if silent {
		return len(failures) == 0
	}

	for _, field := range step.Fields {
		delete(s.errors, field.ID)
	}
	for id, msg := range failures {
		s.errors[id] = msg
		if field, ok := s.form.FieldByID(id); ok {
			s.metrics.ObserveValidationFailure(string(field.Type))
		}
	}
	return len(failures) == 0
}

func requiredMessage(field model.FormField) string {
	label := strings.TrimSpace(field.Label)
	if field.Type == model.FieldTypeSchedule {
		return "Please choose an appointment time"
	}
	if label == "" {
		return "This field is required"
	}
	return fmt.Sprintf("%s is required", label)
}
