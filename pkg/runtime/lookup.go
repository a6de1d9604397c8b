package runtime

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
)

// Blur signals that the user left a field. Leaving an email field holding an
// address triggers the account lookup: a match pre-fills empty name, phone
// and date-of-birth fields and hides password fields; a miss shows them
// again. Lookup failures are ignored. A response is applied only if the
// field was not edited or blurred again in the meantime. Blur reports
// whether a lookup result was applied.
func (s *Session) Blur(ctx context.Context, fieldID string) bool {
	s.mu.Lock()
	field, ok := s.form.FieldByID(fieldID)
	if !ok || s.state != StateEditing || s.lookup == nil || field.EffectiveRole() != model.RoleEmail {
		s.mu.Unlock()
		return false
	}
	email := strings.TrimSpace(s.values.String(fieldID))
	if !strings.Contains(email, "@") {
		s.mu.Unlock()
		return false
	}
	key := lookupKey(fieldID)
	tok := s.tokens.Issue(key)
	clinicID := s.clinicID
	s.mu.Unlock()

	res, err := s.lookup.LookupEmail(ctx, email, clinicID)

	s.mu.Lock()
	defer s.mu.Unlock()
	applied := false
	current := s.state == StateEditing && s.tokens.Commit(key, tok, func() {
		if err != nil {
			s.logger.Warn("email lookup failed", zap.String("field", fieldID), zap.Error(err))
			return
		}
		s.applyLookupLocked(res)
		applied = true
	})
	if !current {
		s.metrics.ObserveStale("email_lookup")
		s.logger.Debug("dropping superseded email lookup", zap.String("field", fieldID))
	}
	return applied
}

func (s *Session) applyLookupLocked(res directory.LookupResult) {
	passwords := s.form.FieldsWithRole(model.RolePassword)
	if !res.Exists {
		for _, field := range passwords {
			delete(s.hidden, field.ID)
		}
		return
	}

	for _, field := range passwords {
		s.hidden[field.ID] = struct{}{}
		delete(s.errors, field.ID)
	}
	if res.User == nil {
		return
	}
	fill := map[model.Role]string{
		model.RoleName:  res.User.Name,
		model.RolePhone: res.User.Phone,
		model.RoleDOB:   res.User.DOB,
	}
	for role, value := range fill {
		if value == "" {
			continue
		}
		for _, field := range s.form.FieldsWithRole(role) {
			if !model.IsEmpty(s.values[field.ID]) {
				continue
			}
			s.values[field.ID] = value
			delete(s.errors, field.ID)
		}
	}
}
