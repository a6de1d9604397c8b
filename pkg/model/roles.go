package model

import "strings"

var roleHints = []struct {
	role  Role
	hints []string
}{
	{RolePassword, []string{"password", "passcode", "contraseña"}},
	{RoleEmail, []string{"email", "e-mail", "correo"}},
	{RoleDOB, []string{"dob", "birth", "nacimiento"}},
	{RolePhone, []string{"phone", "mobile", "telefono", "teléfono", "celular"}},
	{RoleName, []string{"name", "nombre"}},
}

// EffectiveRole returns the explicit Role when set. Untagged fields fall back
// to substring matching over id and label so forms authored before roles
// existed keep their side effects.
func (f FormField) EffectiveRole() Role {
	if f.Role != RoleNone {
		return f.Role
	}
	if f.IsLayout() || f.IsEntityBound() {
		return RoleNone
	}
	haystack := strings.ToLower(f.ID + " " + f.Label)
	for _, candidate := range roleHints {
		for _, hint := range candidate.hints {
			if strings.Contains(haystack, hint) {
				return candidate.role
			}
		}
	}
	return RoleNone
}

// FieldsWithRole returns every field whose effective role matches.
func (f FormModel) FieldsWithRole(role Role) []FormField {
	var out []FormField
	for _, field := range f.Fields() {
		if field.EffectiveRole() == role {
			out = append(out, field)
		}
	}
	return out
}
