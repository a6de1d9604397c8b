package authoring

import "github.com/goliatone/go-clinicform/pkg/model"

// NewBookingTemplate returns a booking form holding the locked fields the
// booking flow depends on. Entity-bound options start empty so every live
// practitioner and service is offered until the author curates them.
func NewBookingTemplate(title string) model.FormModel {
	return model.FormModel{
		Title: title,
		Kind:  model.KindBooking,
		Steps: []model.FormStep{
			{
				ID:    "patient",
				Title: "Your details",
				Fields: []model.FormField{
					{ID: "name", Type: model.FieldTypeText, Label: "Full name", Required: true, Role: model.RoleName, Width: model.WidthHalf},
					{ID: "email", Type: model.FieldTypeText, Label: "Email", Required: true, Role: model.RoleEmail, Width: model.WidthHalf},
					{ID: "phone", Type: model.FieldTypeText, Label: "Phone", Role: model.RolePhone, Width: model.WidthHalf},
					{ID: "dob", Type: model.FieldTypeDate, Label: "Date of birth", Role: model.RoleDOB, Width: model.WidthHalf},
					{ID: "password", Type: model.FieldTypeText, Label: "Create a password", Required: true, Locked: true, Role: model.RolePassword, Width: model.WidthFull},
				},
			},
			{
				ID:    "appointment",
				Title: "Appointment",
				Fields: []model.FormField{
					{ID: "doctor", Type: model.FieldTypeDoctorSelection, Label: "Doctor", Required: true, Locked: true, Width: model.WidthFull},
					{ID: "service", Type: model.FieldTypeServiceSelection, Label: "Service", Required: true, Locked: true, Width: model.WidthFull},
					{ID: "schedule", Type: model.FieldTypeSchedule, Label: "Date and time", Required: true, Locked: true, Width: model.WidthFull},
				},
			},
		},
	}
}
