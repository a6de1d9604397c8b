package model

import (
	"fmt"
	"strings"
)

// ViolationCode identifies a class of structural problem.
type ViolationCode string

const (
	ViolationNoSteps          ViolationCode = "no_steps"
	ViolationEmptyID          ViolationCode = "empty_id"
	ViolationDuplicateID      ViolationCode = "duplicate_id"
	ViolationDuplicateStepID  ViolationCode = "duplicate_step_id"
	ViolationUnknownType      ViolationCode = "unknown_type"
	ViolationDanglingLogic    ViolationCode = "dangling_logic"
	ViolationSelfLogic        ViolationCode = "self_logic"
	ViolationMissingFieldType ViolationCode = "missing_field_type"
)

// Violation describes one structural problem in a form.
type Violation struct {
	Code    ViolationCode `json:"code"`
	FieldID string        `json:"fieldId,omitempty"`
	StepID  string        `json:"stepId,omitempty"`
	// Requirement names the missing field type or role for
	// ViolationMissingFieldType.
	Requirement string `json:"requirement,omitempty"`
	Message     string `json:"message"`
}

func (v Violation) String() string {
	return v.Message
}

// Check enumerates structural problems: zero steps, missing or duplicate ids,
// unknown field types and visibility rules that reference missing fields.
// Nothing is repaired.
func Check(form FormModel) []Violation {
	var out []Violation
	if len(form.Steps) == 0 {
		out = append(out, Violation{Code: ViolationNoSteps, Message: "form must contain at least one step"})
		return out
	}

	ids := make(map[string]int)
	stepIDs := make(map[string]struct{})
	for i, step := range form.Steps {
		if strings.TrimSpace(step.ID) == "" {
			out = append(out, Violation{Code: ViolationEmptyID, Message: fmt.Sprintf("step %d has no id", i+1)})
		} else if _, dup := stepIDs[step.ID]; dup {
			out = append(out, Violation{Code: ViolationDuplicateStepID, StepID: step.ID, Message: fmt.Sprintf("step id %q is used more than once", step.ID)})
		} else {
			stepIDs[step.ID] = struct{}{}
		}

		for _, field := range step.Fields {
			if strings.TrimSpace(field.ID) == "" {
				out = append(out, Violation{Code: ViolationEmptyID, StepID: step.ID, Message: fmt.Sprintf("a %s field in step %q has no id", field.Type, step.ID)})
				continue
			}
			ids[field.ID]++
			if ids[field.ID] == 2 {
				out = append(out, Violation{Code: ViolationDuplicateID, FieldID: field.ID, Message: fmt.Sprintf("field id %q is used more than once", field.ID)})
			}
			if !field.Type.Valid() {
				out = append(out, Violation{Code: ViolationUnknownType, FieldID: field.ID, Message: fmt.Sprintf("field %q has unknown type %q", field.ID, field.Type)})
			}
		}
	}

	for _, field := range form.Fields() {
		if field.Logic == nil {
			continue
		}
		for _, ref := range field.Logic.References() {
			if ref == field.ID {
				out = append(out, Violation{Code: ViolationSelfLogic, FieldID: field.ID, Message: fmt.Sprintf("field %q has a visibility rule on itself", field.ID)})
				continue
			}
			if _, ok := ids[ref]; !ok {
				out = append(out, Violation{Code: ViolationDanglingLogic, FieldID: field.ID, Message: fmt.Sprintf("field %q depends on missing field %q", field.ID, ref)})
			}
		}
	}
	return out
}
