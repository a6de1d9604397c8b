package authoring

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-clinicform/pkg/model"
)

// requirement is one structural need of a form kind. It is met when any
// field matches one of the listed types or carries the listed role.
type requirement struct {
	name  string
	types []model.FieldType
	role  model.Role
}

var requirements = map[model.Kind][]requirement{
	model.KindBooking: {
		{
			name:  string(model.FieldTypeDoctorSelection) + "|" + string(model.FieldTypePractitionerSelection),
			types: []model.FieldType{model.FieldTypeDoctorSelection, model.FieldTypePractitionerSelection},
		},
		{name: string(model.FieldTypeServiceSelection), types: []model.FieldType{model.FieldTypeServiceSelection}},
		{name: string(model.FieldTypeSchedule), types: []model.FieldType{model.FieldTypeSchedule}},
	},
	model.KindIntake: {
		{name: "role:" + string(model.RoleEmail), role: model.RoleEmail},
	},
}

func (r requirement) met(form model.FormModel) bool {
	for _, field := range form.Fields() {
		for _, t := range r.types {
			if field.Type == t {
				return true
			}
		}
		if r.role != model.RoleNone && field.EffectiveRole() == r.role {
			return true
		}
	}
	return false
}

// Violations returns the structural violations of form followed by the
// mandatory field types its kind is missing.
func Violations(form model.FormModel) []model.Violation {
	out := model.Check(form)
	if len(form.Steps) == 0 {
		return out
	}
	for _, req := range requirements[form.Kind] {
		if req.met(form) {
			continue
		}
		out = append(out, model.Violation{
			Code:        model.ViolationMissingFieldType,
			Requirement: req.name,
			Message:     fmt.Sprintf("%s form requires a %s field", form.Kind, strings.ReplaceAll(req.name, "|", " or ")),
		})
	}
	return out
}
