package runtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/internal/metrics"
	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/visibility"
)

// Submitter receives the final values of a session. Returning a
// *directory.RejectionError lets the session map field errors back onto the
// form.
type Submitter interface {
	Submit(ctx context.Context, form model.FormModel, values model.FormValues) error
}

// SubmitFunc adapts a function into a Submitter.
type SubmitFunc func(ctx context.Context, form model.FormModel, values model.FormValues) error

// Submit delegates to the underlying function.
func (fn SubmitFunc) Submit(ctx context.Context, form model.FormModel, values model.FormValues) error {
	return fn(ctx, form, values)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records session activity.
func WithMetrics(m *metrics.FormMetrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithEvaluator overrides the visibility evaluator.
func WithEvaluator(ev visibility.Evaluator) Option {
	return func(s *Session) {
		if ev != nil {
			s.evaluator = ev
		}
	}
}

// WithDirectory wires every collaborator role src implements.
func WithDirectory(src any) Option {
	return func(s *Session) {
		if p, ok := src.(directory.PractitionerSource); ok {
			s.practitioners = p
		}
		if c, ok := src.(directory.ServiceCatalog); ok {
			s.services = c
		}
		if sl, ok := src.(directory.SlotSource); ok {
			s.slots = sl
		}
		if l, ok := src.(directory.AccountLookup); ok {
			s.lookup = l
		}
	}
}

// WithPractitioners sets the practitioner source used for hydration.
func WithPractitioners(src directory.PractitionerSource) Option {
	return func(s *Session) { s.practitioners = src }
}

// WithServices sets the service catalog used for hydration.
func WithServices(src directory.ServiceCatalog) Option {
	return func(s *Session) { s.services = src }
}

// WithSlots sets the availability source for schedule fields.
func WithSlots(src directory.SlotSource) Option {
	return func(s *Session) { s.slots = src }
}

// WithAccountLookup enables the email existence side effect.
func WithAccountLookup(l directory.AccountLookup) Option {
	return func(s *Session) { s.lookup = l }
}

// WithSubmitter sets the submission sink.
func WithSubmitter(sub Submitter) Option {
	return func(s *Session) { s.submitter = sub }
}

// WithViewerZone sets the zone of the person filling the form.
func WithViewerZone(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.viewerZone = loc
		}
	}
}

// WithClinicZone sets the zone used for practitioners without their own.
func WithClinicZone(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.clinicZone = loc
		}
	}
}

// WithClinicID scopes account lookups.
func WithClinicID(id string) Option {
	return func(s *Session) { s.clinicID = id }
}
