package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
)

// Submit validates every step and hands the values to the submitter. Locked
// data fields count as required. On a remote rejection the session returns
// to Editing on the last step with values intact and a *SubmitError is
// returned; field errors reported by the remote side are merged into
// Errors(). On success values, errors and hiding are discarded and the
// session is Submitted.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateEditing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	if s.step != len(s.form.Steps)-1 {
		s.mu.Unlock()
		return ErrNotLastStep
	}
	if s.submitter == nil {
		s.mu.Unlock()
		return ErrNoSubmitter
	}
	valid := true
	for i := range s.form.Steps {
		if !s.validateStepLocked(i, false, true) {
			valid = false
		}
	}
	if !valid {
		s.metrics.ObserveSubmission("invalid")
		s.mu.Unlock()
		return ErrValidationFailed
	}

	s.state = StateSubmitting
	form := s.form.Clone()
	values := s.submittableLocked()
	s.mu.Unlock()

	err := s.submitter.Submit(ctx, form, values)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateEditing
		s.lastSubmit = err
		s.metrics.ObserveSubmission("rejected")
		s.logger.Warn("submission rejected", zap.Error(err))

		mapped := map[string]string{}
		if rej, ok := directory.AsRejection(err); ok {
			for id, msg := range rej.Fields {
				if _, known := s.form.FieldByID(id); known {
					s.errors[id] = msg
					mapped[id] = msg
				}
			}
		}
		return &SubmitError{Err: err, Fields: mapped}
	}

	s.metrics.ObserveSubmission("accepted")
	s.logger.Info("form submitted", zap.Int("fields", len(values)))
	s.resetLocked()
	s.state = StateSubmitted
	return nil
}

// submittableLocked copies the values of visible data fields. Values of
// hidden fields are left out so a field the user never saw cannot leak
// stale input.
func (s *Session) submittableLocked() model.FormValues {
	out := model.FormValues{}
	for _, field := range s.form.Fields() {
		if field.IsLayout() || !s.visibleLocked(field) {
			continue
		}
		if v, ok := s.values[field.ID]; ok {
			out[field.ID] = v
		}
	}
	return out.Clone()
}
