package runtime

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/hydrate"
	"github.com/goliatone/go-clinicform/pkg/model"
)

const servicesKey = "services"

// SelectedPractitioner returns the value of the first doctor or practitioner
// selection field holding one, in form order.
func (s *Session) SelectedPractitioner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedPractitionerLocked()
}

func (s *Session) selectedPractitionerLocked() string {
	for _, field := range s.form.Fields() {
		if field.Type != model.FieldTypeDoctorSelection && field.Type != model.FieldTypePractitionerSelection {
			continue
		}
		if id := strings.TrimSpace(s.values.String(field.ID)); id != "" {
			return id
		}
	}
	return ""
}

// RefreshServices reloads the service catalogue for the selected
// practitioner so service selection fields only offer what that practitioner
// provides. Only the newest request is applied. A service value the
// practitioner does not offer is cleared. Without a selected practitioner the
// unfiltered list applies again. On failure the unfiltered list stays in
// place. RefreshServices reports whether a filtered list was applied.
func (s *Session) RefreshServices(ctx context.Context) bool {
	s.mu.Lock()
	practitioner := s.selectedPractitionerLocked()
	if practitioner == "" || s.services == nil || s.state != StateEditing {
		s.tokens.Invalidate(servicesKey)
		s.offered, s.offeredFor = nil, ""
		s.mu.Unlock()
		return false
	}
	tok := s.tokens.Issue(servicesKey)
	s.mu.Unlock()

	list, err := s.services.Services(ctx, practitioner)

	s.mu.Lock()
	defer s.mu.Unlock()
	applied := false
	current := s.state == StateEditing && s.tokens.Commit(servicesKey, tok, func() {
		if err != nil {
			s.logger.Warn("service refresh failed", zap.String("practitioner", practitioner), zap.Error(err))
			s.offered, s.offeredFor = nil, ""
			return
		}
		s.offered = append([]directory.Service(nil), list...)
		s.offeredFor = practitioner
		s.dropUnofferedServicesLocked()
		applied = true
	})
	if !current {
		s.metrics.ObserveStale(servicesKey)
		s.logger.Debug("dropping superseded service list", zap.String("practitioner", practitioner))
	}
	return applied
}

func (s *Session) dropUnofferedServicesLocked() {
	for _, field := range s.form.FieldsOfType(model.FieldTypeServiceSelection) {
		value := strings.TrimSpace(s.values.String(field.ID))
		if value == "" {
			continue
		}
		options := hydrate.EffectiveOptions(field, s.livePract, s.liveServices)
		if hasOption(hydrate.NarrowServices(options, s.offered), value) {
			continue
		}
		delete(s.values, field.ID)
		s.logger.Debug("cleared service not offered by practitioner", zap.String("field", field.ID))
	}
}

func hasOption(options []model.Option, value string) bool {
	for _, opt := range options {
		if opt.Value == value {
			return true
		}
	}
	return false
}
