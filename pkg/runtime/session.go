// Package runtime drives a single fill-in session of a form: current step,
// values, validation errors and the set of fields hidden by side effects.
//
// A Session moves Editing -> Submitting -> Submitted. Navigation between
// steps is gated by validation of the current step; hidden fields never
// block. Async side effects (hydration, email lookup, slot queries) block
// the calling goroutine only; responses superseded by a newer request for
// the same key are dropped.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/internal/metrics"
	"github.com/goliatone/go-clinicform/internal/requesttoken"
	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/hydrate"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/schedule"
	"github.com/goliatone/go-clinicform/pkg/visibility"
)

// State is the session lifecycle state.
type State string

const (
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
)

// Session is one fill-in of a form. Methods are safe for concurrent use.
type Session struct {
	form      model.FormModel
	logger    *zap.Logger
	metrics   *metrics.FormMetrics
	evaluator visibility.Evaluator

	practitioners directory.PractitionerSource
	services      directory.ServiceCatalog
	slots         directory.SlotSource
	lookup        directory.AccountLookup
	submitter     Submitter

	viewerZone *time.Location
	clinicZone *time.Location
	clinicID   string

	tokens *requesttoken.Sequencer

	mu           sync.Mutex
	state        State
	step         int
	values       model.FormValues
	errors       model.ValidationErrors
	hidden       visibility.Hidden
	lastSubmit   error
	unconfigured map[string]bool
	livePract    []directory.Practitioner
	liveServices []directory.Service
	engines      map[string]*schedule.Engine

	// offered narrows service options to the selected practitioner once
	// RefreshServices has loaded their catalogue.
	offered    []directory.Service
	offeredFor string
}

// New prepares a session over a private copy of form. Call Start before use
// to hydrate entity-bound fields and run auto-selection.
func New(form model.FormModel, opts ...Option) (*Session, error) {
	if len(form.Steps) == 0 {
		return nil, ErrNoSteps
	}
	s := &Session{
		form:         form.Clone(),
		logger:       zap.NewNop(),
		evaluator:    visibility.Default,
		viewerZone:   time.UTC,
		clinicZone:   time.UTC,
		tokens:       requesttoken.New(),
		state:        StateEditing,
		values:       model.FormValues{},
		errors:       model.ValidationErrors{},
		hidden:       visibility.Hidden{},
		unconfigured: map[string]bool{},
		engines:      map[string]*schedule.Engine{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clinicID == "" {
		s.clinicID = s.form.ClinicID
	}
	s.logger = s.logger.With(zap.String("form", s.form.ID))
	return s, nil
}

// Start hydrates entity-bound fields from the configured directory, builds
// the schedule engines and runs the auto-selection step. Hydration failures
// degrade to empty option sets; see Unconfigured.
func (s *Session) Start(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	s.RefreshServices(ctx)
	return nil
}

func (s *Session) start(ctx context.Context) error {
	res := hydrate.Fetch(ctx, s.practitioners, s.services, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.livePract = res.Practitioners
	s.liveServices = res.Services
	hydrate.Apply(&s.form, res.Practitioners, res.Services)

	s.unconfigured = map[string]bool{}
	for _, field := range s.form.Fields() {
		if field.IsEntityBound() && len(field.Options) == 0 {
			s.unconfigured[field.ID] = true
		}
	}

	s.engines = map[string]*schedule.Engine{}
	for _, field := range s.form.FieldsOfType(model.FieldTypeSchedule) {
		engine, err := schedule.New(s.form, field.ID, schedule.Config{
			Practitioners: s.livePract,
			Slots:         s.slots,
			ViewerZone:    s.viewerZone,
			DefaultZone:   s.clinicZone,
			Logger:        s.logger,
			Metrics:       s.metrics,
		})
		if err != nil {
			return fmt.Errorf("runtime: schedule %s: %w", field.ID, err)
		}
		s.engines[field.ID] = engine
	}

	s.autoSelectLocked()
	return nil
}

// autoSelectLocked is the explicit initialisation step that pre-selects
// obvious choices: an entity-bound selection field offering exactly one
// option, and the resolved specialty and practitioner of every schedule
// field. Existing values are never replaced.
func (s *Session) autoSelectLocked() {
	for _, field := range s.form.Fields() {
		switch field.Type {
		case model.FieldTypeDoctorSelection, model.FieldTypePractitionerSelection, model.FieldTypeServiceSelection:
			if len(field.Options) == 1 && model.IsEmpty(s.values[field.ID]) {
				s.values[field.ID] = field.Options[0].Value
				s.logger.Debug("auto-selected single option", zap.String("field", field.ID))
			}
		}
	}
	for id, engine := range s.engines {
		current, _ := s.values.Schedule(id)
		if current.Practitioner != "" {
			continue
		}
		res := engine.Resolve(s.values)
		if res.Practitioner == "" {
			continue
		}
		current.Specialty = res.Specialty
		current.Practitioner = res.Practitioner
		s.values[id] = current
	}
}

// SetValue records a value. A recorded error for the field is cleared.
// Changing the practitioner or specialty of a schedule field, or an external
// practitioner selector, clears the chosen date and time. A selector change
// also rebinds dependent schedule fields to the new practitioner and one of
// their specialties, and marks the practitioner's services for reload.
func (s *Session) SetValue(fieldID string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEditing {
		return ErrNotEditing
	}
	field, ok := s.form.FieldByID(fieldID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, fieldID)
	}
	if field.IsLayout() {
		return fmt.Errorf("%w: %q", ErrLayoutField, fieldID)
	}

	switch field.Type {
	case model.FieldTypeSchedule:
		next, _ := model.FormValues{fieldID: value}.Schedule(fieldID)
		prev, _ := s.values.Schedule(fieldID)
		if (next.Practitioner != prev.Practitioner || next.Specialty != prev.Specialty) &&
			next.Date == prev.Date && next.Time == prev.Time {
			next.Date, next.Time = "", ""
			if engine := s.engines[fieldID]; engine != nil {
				engine.Reset()
			}
		}
		s.values[fieldID] = next
	case model.FieldTypeDoctorSelection, model.FieldTypePractitionerSelection:
		changed := !visibility.Equal(s.values[fieldID], value)
		s.values[fieldID] = value
		if changed {
			s.clearDependentSchedulesLocked(fieldID)
			s.tokens.Invalidate(servicesKey)
			s.offered, s.offeredFor = nil, ""
		}
	default:
		s.values[fieldID] = value
	}
	delete(s.errors, fieldID)

	if field.EffectiveRole() == model.RoleEmail {
		// A pending lookup for the previous address no longer applies.
		s.tokens.Invalidate(lookupKey(fieldID))
	}
	return nil
}

func (s *Session) clearDependentSchedulesLocked(selectorID string) {
	for id, engine := range s.engines {
		for _, sel := range engine.SelectorIDs() {
			if sel != selectorID {
				continue
			}
			if current, ok := s.values.Schedule(id); ok {
				current.Specialty, current.Date, current.Time = "", "", ""
				s.values[id] = current
				res := engine.Resolve(s.values)
				current.Specialty, current.Practitioner = res.Specialty, res.Practitioner
				s.values[id] = current
			}
			engine.Reset()
		}
	}
}

// Advance validates the current step and moves forward on success. On the
// last step a successful validation leaves the index unchanged.
func (s *Session) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEditing {
		return false
	}
	ok := s.validateStepLocked(s.step, false, false)
	s.metrics.ObserveStep("advance", ok)
	if ok && s.step < len(s.form.Steps)-1 {
		s.step++
	}
	return ok
}

// Retreat moves one step back without validating. It reports whether the
// index changed.
func (s *Session) Retreat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEditing || s.step == 0 {
		return false
	}
	s.step--
	s.metrics.ObserveStep("retreat", true)
	return true
}

// Reset discards values, errors and side-effect hiding, returns to the
// first step and runs auto-selection again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.autoSelectLocked()
}

func (s *Session) resetLocked() {
	for _, field := range s.form.Fields() {
		if field.EffectiveRole() == model.RoleEmail {
			s.tokens.Invalidate(lookupKey(field.ID))
		}
	}
	for _, engine := range s.engines {
		engine.Reset()
	}
	s.state = StateEditing
	s.step = 0
	s.values = model.FormValues{}
	s.errors = model.ValidationErrors{}
	s.hidden = visibility.Hidden{}
	s.lastSubmit = nil
	s.tokens.Invalidate(servicesKey)
	s.offered, s.offeredFor = nil, ""
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Step returns the current step index.
func (s *Session) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// StepCount returns the number of steps.
func (s *Session) StepCount() int { return len(s.form.Steps) }

// IsLastStep reports whether the current step is the last one.
func (s *Session) IsLastStep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step == len(s.form.Steps)-1
}

// Form returns a copy of the hydrated form.
func (s *Session) Form() model.FormModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.Clone()
}

// Values returns a copy of the current values.
func (s *Session) Values() model.FormValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// Value returns one value.
func (s *Session) Value(fieldID string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[fieldID]
	return v, ok
}

// Errors returns a copy of the validation errors.
func (s *Session) Errors() model.ValidationErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(model.ValidationErrors, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// Hidden returns the ids hidden by side effects, sorted.
func (s *Session) Hidden() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.hidden))
	for id := range s.hidden {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsVisible resolves the visibility of a field against the current state.
func (s *Session) IsVisible(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	field, ok := s.form.FieldByID(fieldID)
	if !ok {
		return false
	}
	return s.visibleLocked(field)
}

func (s *Session) visibleLocked(field model.FormField) bool {
	return s.evaluator.IsVisible(field, visibility.Context{Values: s.values, Hidden: s.hidden})
}

// VisibleFields returns the visible fields of step index.
func (s *Session) VisibleFields(index int) []model.FormField {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.form.Steps) {
		return nil
	}
	var out []model.FormField
	for _, field := range s.form.Steps[index].Fields {
		if s.visibleLocked(field) {
			out = append(out, field)
		}
	}
	return out
}

// Unconfigured reports an entity-bound field left without options after
// hydration. Such a field renders a "none configured" state.
func (s *Session) Unconfigured(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unconfigured[fieldID]
}

// Options returns the choices a field offers.
func (s *Session) Options(fieldID string) []model.Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	field, ok := s.form.FieldByID(fieldID)
	if !ok {
		return nil
	}
	options := hydrate.EffectiveOptions(field, s.livePract, s.liveServices)
	if field.Type == model.FieldTypeServiceSelection && s.offeredFor != "" {
		options = hydrate.NarrowServices(options, s.offered)
	}
	return options
}

// Schedule returns the engine driving a schedule field.
func (s *Session) Schedule(fieldID string) (*schedule.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	engine, ok := s.engines[fieldID]
	return engine, ok
}

// RefreshSchedule queries availability for a schedule field against the
// current values.
func (s *Session) RefreshSchedule(ctx context.Context, fieldID string) error {
	engine, ok := s.Schedule(fieldID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSchedule, fieldID)
	}
	engine.Refresh(ctx, s.Values())
	return nil
}

// ChooseSlot commits an offered slot into the schedule field's value.
func (s *Session) ChooseSlot(fieldID, clock string) error {
	engine, ok := s.Schedule(fieldID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSchedule, fieldID)
	}
	chosen, err := engine.Choose(s.Values(), clock)
	if err != nil {
		return err
	}
	return s.SetValue(fieldID, chosen)
}

// LastSubmitError returns the error of the most recent failed submit.
func (s *Session) LastSubmitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSubmit
}

func lookupKey(fieldID string) string {
	return "lookup:" + strings.ToLower(fieldID)
}
