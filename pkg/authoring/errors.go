package authoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-clinicform/pkg/model"
)

var (
	ErrStepNotFound     = errors.New("authoring: step not found")
	ErrFieldNotFound    = errors.New("authoring: field not found")
	ErrLockedField      = errors.New("authoring: field is locked")
	ErrLastStep         = errors.New("authoring: a form needs at least one step")
	ErrDuplicateID      = errors.New("authoring: id already in use")
	ErrUnknownType      = errors.New("authoring: unknown field type")
	ErrNotEntityBound   = errors.New("authoring: field options are not entity-bound")
	ErrIndexOutOfBounds = errors.New("authoring: index out of bounds")
)

// StructuralError lists every reason a form was refused at save time.
type StructuralError struct {
	Violations []model.Violation
}

func (e *StructuralError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("authoring: %d structural violation(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Missing returns the mandatory field types or roles reported missing.
func (e *StructuralError) Missing() []string {
	var out []string
	for _, v := range e.Violations {
		if v.Code == model.ViolationMissingFieldType {
			out = append(out, v.Requirement)
		}
	}
	return out
}
