package model

// FieldType enumerates the configurable input kinds a form author can place in
// a step.
type FieldType string

const (
	FieldTypeText                  FieldType = "text"
	FieldTypeTextarea              FieldType = "textarea"
	FieldTypeNumber                FieldType = "number"
	FieldTypeDate                  FieldType = "date"
	FieldTypeSelect                FieldType = "select"
	FieldTypeCheckbox              FieldType = "checkbox"
	FieldTypeHeader                FieldType = "header"
	FieldTypeSpacer                FieldType = "spacer"
	FieldTypeSeparator             FieldType = "separator"
	FieldTypeServiceSelection      FieldType = "service_selection"
	FieldTypePractitionerSelection FieldType = "practitioner_selection"
	FieldTypeSchedule              FieldType = "schedule"
	FieldTypeDoctorSelection       FieldType = "doctor_selection"
	FieldTypeFileUpload            FieldType = "file_upload"
)

// KnownFieldTypes lists every FieldType in declaration order.
var KnownFieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeTextarea,
	FieldTypeNumber,
	FieldTypeDate,
	FieldTypeSelect,
	FieldTypeCheckbox,
	FieldTypeHeader,
	FieldTypeSpacer,
	FieldTypeSeparator,
	FieldTypeServiceSelection,
	FieldTypePractitionerSelection,
	FieldTypeSchedule,
	FieldTypeDoctorSelection,
	FieldTypeFileUpload,
}

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	for _, known := range KnownFieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsLayout reports whether the type is presentation-only. Layout fields never
// carry a value and are never validated.
func (t FieldType) IsLayout() bool {
	switch t {
	case FieldTypeHeader, FieldTypeSpacer, FieldTypeSeparator:
		return true
	default:
		return false
	}
}

// IsEntityBound reports whether the type mirrors live backend records.
func (t FieldType) IsEntityBound() bool {
	switch t {
	case FieldTypeServiceSelection, FieldTypePractitionerSelection, FieldTypeSchedule, FieldTypeDoctorSelection:
		return true
	default:
		return false
	}
}

// IsPractitionerBound reports whether the options of the type are projected
// from the practitioner directory.
func (t FieldType) IsPractitionerBound() bool {
	switch t {
	case FieldTypePractitionerSelection, FieldTypeSchedule, FieldTypeDoctorSelection:
		return true
	default:
		return false
	}
}

// Role tags a field with the meaning the runtime infers side effects from.
type Role string

const (
	RoleNone     Role = ""
	RoleEmail    Role = "email"
	RoleName     Role = "name"
	RolePhone    Role = "phone"
	RoleDOB      Role = "dob"
	RolePassword Role = "password"
)

// Width is a layout hint only.
type Width string

const (
	WidthFull Width = "full"
	WidthHalf Width = "half"
)

// Kind classifies a form. Booking and intake forms carry mandatory field types.
type Kind string

const (
	KindGeneral Kind = "general"
	KindBooking Kind = "booking"
	KindIntake  Kind = "intake"
)

// Option is one selectable choice. Entity projections fill the metadata
// fields relevant to their type (duration/price for services, specialty for
// practitioners).
type Option struct {
	Label       string         `json:"label"`
	Value       string         `json:"value"`
	Duration    int            `json:"duration,omitempty"`
	Price       float64        `json:"price,omitempty"`
	Specialty   string         `json:"specialty,omitempty"`
	Specialties []string       `json:"specialties,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// FormField is one configurable input unit.
type FormField struct {
	ID          string    `json:"id"`
	Type        FieldType `json:"type"`
	Label       string    `json:"label,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Help        string    `json:"help,omitempty"`
	Required    bool      `json:"required"`
	Options     []Option  `json:"options,omitempty"`
	Logic       *Logic    `json:"logic,omitempty"`
	Locked      bool      `json:"locked,omitempty"`
	Width       Width     `json:"width,omitempty"`
	Role        Role      `json:"role,omitempty"`
}

// IsLayout reports whether the field is presentation-only.
func (f FormField) IsLayout() bool { return f.Type.IsLayout() }

// IsEntityBound reports whether the field's options mirror live records.
func (f FormField) IsEntityBound() bool { return f.Type.IsEntityBound() }

// FormStep groups fields shown together.
type FormStep struct {
	ID     string      `json:"id"`
	Title  string      `json:"title,omitempty"`
	Fields []FormField `json:"fields"`
}

// FormModel is the serialised form configuration.
type FormModel struct {
	ID             string     `json:"id,omitempty"`
	Title          string     `json:"title"`
	Kind           Kind       `json:"kind,omitempty"`
	ClinicID       string     `json:"clinicId,omitempty"`
	IncludeInEmail bool       `json:"includeInEmail,omitempty"`
	Steps          []FormStep `json:"steps"`
}

// Fields returns every field across all steps in order.
func (f FormModel) Fields() []FormField {
	var out []FormField
	for _, step := range f.Steps {
		out = append(out, step.Fields...)
	}
	return out
}

// FieldByID finds a field anywhere in the form.
func (f FormModel) FieldByID(id string) (FormField, bool) {
	for _, step := range f.Steps {
		for _, field := range step.Fields {
			if field.ID == id {
				return field, true
			}
		}
	}
	return FormField{}, false
}

// StepOf returns the index of the step containing the field, or -1.
func (f FormModel) StepOf(id string) int {
	for i, step := range f.Steps {
		for _, field := range step.Fields {
			if field.ID == id {
				return i
			}
		}
	}
	return -1
}

// FieldsOfType returns all fields of the given type in form order.
func (f FormModel) FieldsOfType(t FieldType) []FormField {
	var out []FormField
	for _, field := range f.Fields() {
		if field.Type == t {
			out = append(out, field)
		}
	}
	return out
}

// Clone returns a deep copy so the caller can mutate options without touching
// the original.
func (f FormModel) Clone() FormModel {
	out := f
	out.Steps = make([]FormStep, len(f.Steps))
	for i, step := range f.Steps {
		cloned := step
		cloned.Fields = make([]FormField, len(step.Fields))
		for j, field := range step.Fields {
			cloned.Fields[j] = field.Clone()
		}
		out.Steps[i] = cloned
	}
	return out
}

// Clone returns a deep copy of the field.
func (f FormField) Clone() FormField {
	out := f
	if f.Options != nil {
		out.Options = make([]Option, len(f.Options))
		for i, opt := range f.Options {
			out.Options[i] = opt.clone()
		}
	}
	if f.Logic != nil {
		logic := f.Logic.Clone()
		out.Logic = &logic
	}
	return out
}

func (o Option) clone() Option {
	out := o
	if o.Specialties != nil {
		out.Specialties = append([]string(nil), o.Specialties...)
	}
	if o.Meta != nil {
		out.Meta = make(map[string]any, len(o.Meta))
		for k, v := range o.Meta {
			out.Meta[k] = v
		}
	}
	return out
}
