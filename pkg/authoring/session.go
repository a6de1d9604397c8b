// Package authoring edits a form configuration and persists it.
//
// Edits that would break a form immediately (removing a locked field,
// removing the last step) are refused when attempted. Everything else is
// checked at save time, where every violation is reported together and
// nothing is repaired.
package authoring

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/hydrate"
	"github.com/goliatone/go-clinicform/pkg/model"
)

// Saver persists a form.
type Saver interface {
	Save(ctx context.Context, form model.FormModel) error
}

// Option configures a Session.
type Option func(*Session)

// WithSaver sets the persistence target for Save.
func WithSaver(s Saver) Option {
	return func(a *Session) { a.saver = s }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Session) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithIDGenerator overrides id generation for new steps and fields.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(a *Session) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// Session is an editing session over one form.
type Session struct {
	mu     sync.Mutex
	form   model.FormModel
	saver  Saver
	logger *zap.Logger
	newID  func(prefix string) string
}

// New starts editing a copy of form.
func New(form model.FormModel, opts ...Option) *Session {
	s := &Session{
		form:   form.Clone(),
		logger: zap.NewNop(),
		newID:  defaultID,
	}
	if s.form.Kind == "" {
		s.form.Kind = model.KindGeneral
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultID(prefix string) string {
	return prefix + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Form returns a copy of the form being edited.
func (s *Session) Form() model.FormModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.Clone()
}

// SetTitle renames the form.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.Title = title
}

// SetIncludeInEmail toggles the submission summary email.
func (s *Session) SetIncludeInEmail(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form.IncludeInEmail = on
}

// AddStep appends an empty step.
func (s *Session) AddStep(title string) model.FormStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := model.FormStep{ID: s.uniqueStepIDLocked(), Title: title, Fields: []model.FormField{}}
	s.form.Steps = append(s.form.Steps, step)
	return step
}

func (s *Session) uniqueStepIDLocked() string {
	for {
		id := s.newID("step")
		if s.stepIndexLocked(id) < 0 {
			return id
		}
	}
}

func (s *Session) uniqueFieldIDLocked(t model.FieldType) string {
	prefix := strings.ReplaceAll(string(t), "_", "-")
	if prefix == "" {
		prefix = "field"
	}
	for {
		id := s.newID(prefix)
		if _, taken := s.form.FieldByID(id); !taken {
			return id
		}
	}
}

func (s *Session) stepIndexLocked(id string) int {
	for i, step := range s.form.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

// RemoveStep deletes a step. The last remaining step and steps holding
// locked fields cannot be removed.
func (s *Session) RemoveStep(stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.stepIndexLocked(stepID)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	if len(s.form.Steps) == 1 {
		return ErrLastStep
	}
	for _, field := range s.form.Steps[idx].Fields {
		if field.Locked {
			return fmt.Errorf("%w: step %q holds %q", ErrLockedField, stepID, field.ID)
		}
	}
	s.form.Steps = append(s.form.Steps[:idx], s.form.Steps[idx+1:]...)
	return nil
}

// MoveStep moves a step to position to.
func (s *Session) MoveStep(stepID string, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.stepIndexLocked(stepID)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	if to < 0 || to >= len(s.form.Steps) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfBounds, to)
	}
	s.form.Steps = move(s.form.Steps, idx, to)
	return nil
}

// RenameStep changes a step title.
func (s *Session) RenameStep(stepID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.stepIndexLocked(stepID)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	s.form.Steps[idx].Title = title
	return nil
}

// AddField inserts field into a step at index, or appends when index is
// negative. An empty id is generated.
func (s *Session) AddField(stepID string, field model.FormField, index int) (model.FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.stepIndexLocked(stepID)
	if idx < 0 {
		return model.FormField{}, fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	if !field.Type.Valid() {
		return model.FormField{}, fmt.Errorf("%w: %q", ErrUnknownType, field.Type)
	}
	if field.ID == "" {
		field.ID = s.uniqueFieldIDLocked(field.Type)
	} else if _, taken := s.form.FieldByID(field.ID); taken {
		return model.FormField{}, fmt.Errorf("%w: %q", ErrDuplicateID, field.ID)
	}
	if field.Width == "" {
		field.Width = model.WidthFull
	}

	fields := s.form.Steps[idx].Fields
	if index < 0 || index > len(fields) {
		index = len(fields)
	}
	fields = append(fields, model.FormField{})
	copy(fields[index+1:], fields[index:])
	fields[index] = field.Clone()
	s.form.Steps[idx].Fields = fields
	return field, nil
}

func (s *Session) locateLocked(fieldID string) (int, int, bool) {
	for si, step := range s.form.Steps {
		for fi, field := range step.Fields {
			if field.ID == fieldID {
				return si, fi, true
			}
		}
	}
	return -1, -1, false
}

// RemoveField deletes an unlocked field.
func (s *Session) RemoveField(fieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	si, fi, ok := s.locateLocked(fieldID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, fieldID)
	}
	if s.form.Steps[si].Fields[fi].Locked {
		return fmt.Errorf("%w: %q", ErrLockedField, fieldID)
	}
	fields := s.form.Steps[si].Fields
	s.form.Steps[si].Fields = append(fields[:fi], fields[fi+1:]...)
	return nil
}

// MoveField moves a field to index within toStepID, which may be its own
// step. A negative index appends.
func (s *Session) MoveField(fieldID, toStepID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	si, fi, ok := s.locateLocked(fieldID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, fieldID)
	}
	target := s.stepIndexLocked(toStepID)
	if target < 0 {
		return fmt.Errorf("%w: %q", ErrStepNotFound, toStepID)
	}

	if target == si {
		fields := s.form.Steps[si].Fields
		if index < 0 || index >= len(fields) {
			index = len(fields) - 1
		}
		s.form.Steps[si].Fields = move(fields, fi, index)
		return nil
	}

	field := s.form.Steps[si].Fields[fi]
	src := s.form.Steps[si].Fields
	s.form.Steps[si].Fields = append(src[:fi], src[fi+1:]...)

	dst := s.form.Steps[target].Fields
	if index < 0 || index > len(dst) {
		index = len(dst)
	}
	dst = append(dst, model.FormField{})
	copy(dst[index+1:], dst[index:])
	dst[index] = field
	s.form.Steps[target].Fields = dst
	return nil
}

// UpdateField replaces a field's properties. The id never changes. Locked
// fields also keep their type, required flag and lock.
func (s *Session) UpdateField(fieldID string, next model.FormField) (model.FormField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	si, fi, ok := s.locateLocked(fieldID)
	if !ok {
		return model.FormField{}, fmt.Errorf("%w: %q", ErrFieldNotFound, fieldID)
	}
	current := s.form.Steps[si].Fields[fi]
	next = next.Clone()
	next.ID = current.ID
	if current.Locked {
		next.Type = current.Type
		next.Required = current.Required
		next.Locked = true
	}
	if !next.Type.Valid() {
		return model.FormField{}, fmt.Errorf("%w: %q", ErrUnknownType, next.Type)
	}
	s.form.Steps[si].Fields[fi] = next
	return next, nil
}

// ToggleOption adds opt to an entity-bound field's curated options, or
// removes it when an option with the same value is present. It reports
// whether the option is included afterwards. Removing the last curated
// option brings back the "all live records" default.
func (s *Session) ToggleOption(fieldID string, opt model.Option) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	si, fi, ok := s.locateLocked(fieldID)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrFieldNotFound, fieldID)
	}
	field := &s.form.Steps[si].Fields[fi]
	if !field.IsEntityBound() {
		return false, fmt.Errorf("%w: %q", ErrNotEntityBound, fieldID)
	}
	for i, existing := range field.Options {
		if existing.Value == opt.Value {
			field.Options = append(field.Options[:i], field.Options[i+1:]...)
			if len(field.Options) == 0 {
				field.Options = nil
			}
			return false, nil
		}
	}
	field.Options = append(field.Options, opt)
	return true, nil
}

// Preview returns a hydrated copy of the form, as a runtime would see it.
func (s *Session) Preview(practitioners []directory.Practitioner, services []directory.Service) model.FormModel {
	preview := s.Form()
	hydrate.Apply(&preview, practitioners, services)
	return preview
}

// Validate lists every structural violation without saving.
func (s *Session) Validate() []model.Violation {
	return Violations(s.Form())
}

// Save sanitises author-supplied text, checks structure and persists the
// form. A form with violations is refused with a *StructuralError.
func (s *Session) Save(ctx context.Context) (model.FormModel, error) {
	s.mu.Lock()
	sanitizeForm(&s.form)
	if s.form.ID == "" {
		s.form.ID = uuid.NewString()
	}
	form := s.form.Clone()
	s.mu.Unlock()

	if violations := Violations(form); len(violations) > 0 {
		s.logger.Info("form refused", zap.String("form", form.ID), zap.Int("violations", len(violations)))
		return model.FormModel{}, &StructuralError{Violations: violations}
	}
	if s.saver != nil {
		if err := s.saver.Save(ctx, form); err != nil {
			return model.FormModel{}, fmt.Errorf("authoring: save: %w", err)
		}
	}
	s.logger.Info("form saved", zap.String("form", form.ID), zap.String("kind", string(form.Kind)))
	return form, nil
}

func move[T any](items []T, from, to int) []T {
	if from == to {
		return items
	}
	item := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items, item)
	copy(items[to+1:], items[to:len(items)-1])
	items[to] = item
	return items
}
