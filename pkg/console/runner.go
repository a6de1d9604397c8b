// Package console fills a form session interactively in a terminal.
package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/runtime"
	"github.com/goliatone/go-clinicform/pkg/schedule"
)

// Option configures a Runner.
type Option func(*Runner)

// WithDriver swaps the prompt driver.
func WithDriver(d PromptDriver) Option {
	return func(r *Runner) {
		if d != nil {
			r.driver = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRetries sets how many times a rejected submission may be retried.
func WithRetries(n int) Option {
	return func(r *Runner) { r.retries = n }
}

// Runner walks a session step by step.
type Runner struct {
	driver  PromptDriver
	logger  *zap.Logger
	retries int
}

// NewRunner returns a runner prompting through survey by default.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		driver:  NewSurveyDriver(),
		logger:  zap.NewNop(),
		retries: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run prompts every visible field, advancing when a step validates, and
// submits on the last step. The session must already be started.
func (r *Runner) Run(ctx context.Context, s *runtime.Session) error {
	for s.State() == runtime.StateEditing {
		step := s.Step()
		form := s.Form()
		if title := form.Steps[step].Title; title != "" {
			if err := r.driver.Info(ctx, fmt.Sprintf("== %s (%d/%d)", title, step+1, s.StepCount())); err != nil {
				return err
			}
		}
		if err := r.promptStep(ctx, s, form.Steps[step], nil); err != nil {
			return err
		}
		for !s.Advance() {
			if err := r.reportErrors(ctx, s); err != nil {
				return err
			}
			if err := r.promptStep(ctx, s, form.Steps[step], s.Errors()); err != nil {
				return err
			}
		}
		if !s.IsLastStep() || s.Step() != step {
			continue
		}
		return r.submit(ctx, s)
	}
	return nil
}

func (r *Runner) submit(ctx context.Context, s *runtime.Session) error {
	for attempt := 0; ; attempt++ {
		err := s.Submit(ctx)
		if err == nil {
			return r.driver.Info(ctx, "Submitted.")
		}
		var rejected *runtime.SubmitError
		if !errors.As(err, &rejected) {
			return err
		}
		r.logger.Warn("submission rejected", zap.Error(err), zap.Int("attempt", attempt+1))
		if ierr := r.driver.Info(ctx, "Submission failed: "+err.Error()); ierr != nil {
			return ierr
		}
		if attempt >= r.retries {
			return err
		}
		retry, cerr := r.driver.Confirm(ctx, ConfirmConfig{Message: "Try again?", Default: true})
		if cerr != nil {
			return cerr
		}
		if !retry {
			return err
		}
		if len(rejected.Fields) > 0 {
			form := s.Form()
			for _, step := range form.Steps {
				if err := r.promptStep(ctx, s, step, rejected.Fields); err != nil {
					return err
				}
			}
		}
	}
}

func (r *Runner) reportErrors(ctx context.Context, s *runtime.Session) error {
	errs := s.Errors()
	form := s.Form()
	for _, field := range form.Fields() {
		msg, ok := errs[field.ID]
		if !ok {
			continue
		}
		if s.Unconfigured(field.ID) {
			return fmt.Errorf("%w: %s", ErrUnanswerable, field.ID)
		}
		if err := r.driver.Info(ctx, "! "+msg); err != nil {
			return err
		}
	}
	return nil
}

// promptStep asks every field of step that is visible at the moment it is
// reached. When only is set, fields without an entry are skipped.
func (r *Runner) promptStep(ctx context.Context, s *runtime.Session, step model.FormStep, only map[string]string) error {
	for _, field := range step.Fields {
		if only != nil {
			if _, ok := only[field.ID]; !ok {
				continue
			}
		}
		if !s.IsVisible(field.ID) {
			continue
		}
		if err := r.promptField(ctx, s, field); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) promptField(ctx context.Context, s *runtime.Session, field model.FormField) error {
	switch field.Type {
	case model.FieldTypeHeader:
		return r.driver.Info(ctx, strings.ToUpper(field.Label))
	case model.FieldTypeSpacer:
		return r.driver.Info(ctx, "")
	case model.FieldTypeSeparator:
		return r.driver.Info(ctx, strings.Repeat("-", 40))
	case model.FieldTypeSchedule:
		return r.promptSchedule(ctx, s, field)
	case model.FieldTypeSelect, model.FieldTypeServiceSelection,
		model.FieldTypePractitionerSelection, model.FieldTypeDoctorSelection:
		return r.promptSelect(ctx, s, field)
	case model.FieldTypeCheckbox:
		return r.promptCheckbox(ctx, s, field)
	case model.FieldTypeTextarea:
		current, _ := s.Value(field.ID)
		out, err := r.driver.TextArea(ctx, TextAreaConfig{Message: message(field), Default: asString(current), Help: field.Help})
		if err != nil {
			return err
		}
		return s.SetValue(field.ID, out)
	}

	current, _ := s.Value(field.ID)
	cfg := InputConfig{Message: message(field), Default: asString(current), Help: field.Help}
	switch {
	case field.EffectiveRole() == model.RolePassword:
		cfg.Default = ""
		out, err := r.driver.Password(ctx, cfg)
		if err != nil {
			return err
		}
		return s.SetValue(field.ID, out)
	case field.Type == model.FieldTypeNumber:
		cfg.Validator = optional(func(v string) error {
			_, err := strconv.ParseFloat(v, 64)
			return err
		})
		out, err := r.driver.Input(ctx, cfg)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return s.SetValue(field.ID, nil)
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
		if err != nil {
			return fmt.Errorf("console: %s: %w", field.ID, err)
		}
		return s.SetValue(field.ID, n)
	case field.Type == model.FieldTypeDate:
		cfg.Help = strings.TrimSpace(cfg.Help + " (YYYY-MM-DD)")
		cfg.Validator = optional(func(v string) error {
			_, err := time.Parse(schedule.DateLayout, v)
			return err
		})
	}

	out, err := r.driver.Input(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.SetValue(field.ID, strings.TrimSpace(out)); err != nil {
		return err
	}
	if field.EffectiveRole() == model.RoleEmail && s.Blur(ctx, field.ID) {
		r.logger.Debug("account lookup applied", zap.String("field", field.ID))
	}
	return nil
}

func (r *Runner) promptSelect(ctx context.Context, s *runtime.Session, field model.FormField) error {
	options := s.Options(field.ID)
	if len(options) == 0 {
		return r.driver.Info(ctx, message(field)+": none configured")
	}
	labels := make([]string, len(options))
	current, _ := s.Value(field.ID)
	def := -1
	for i, opt := range options {
		labels[i] = optionLabel(opt)
		if opt.Value == asString(current) {
			def = i
		}
	}
	idx, err := r.driver.Select(ctx, SelectConfig{Message: message(field), Options: labels, DefaultIndex: def, Help: field.Help})
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(options) {
		return nil
	}
	if err := s.SetValue(field.ID, options[idx].Value); err != nil {
		return err
	}
	if field.Type.IsPractitionerBound() && field.Type != model.FieldTypeSchedule && s.RefreshServices(ctx) {
		r.logger.Debug("services narrowed to practitioner", zap.String("field", field.ID))
	}
	return nil
}

func (r *Runner) promptCheckbox(ctx context.Context, s *runtime.Session, field model.FormField) error {
	current, _ := s.Value(field.ID)
	if len(field.Options) == 0 {
		on, _ := current.(bool)
		out, err := r.driver.Confirm(ctx, ConfirmConfig{Message: message(field), Default: on, Help: field.Help})
		if err != nil {
			return err
		}
		return s.SetValue(field.ID, out)
	}

	labels := make([]string, len(field.Options))
	selected := map[string]bool{}
	for _, v := range asStrings(current) {
		selected[v] = true
	}
	var defaults []int
	for i, opt := range field.Options {
		labels[i] = opt.Label
		if selected[opt.Value] {
			defaults = append(defaults, i)
		}
	}
	picked, err := r.driver.MultiSelect(ctx, SelectConfig{Message: message(field), Options: labels, Defaults: defaults, Help: field.Help})
	if err != nil {
		return err
	}
	values := make([]string, 0, len(picked))
	for _, idx := range picked {
		if idx >= 0 && idx < len(field.Options) {
			values = append(values, field.Options[idx].Value)
		}
	}
	return s.SetValue(field.ID, values)
}

// promptSchedule asks for a date until one offers available slots, or the
// user leaves the date blank, then commits the chosen slot.
func (r *Runner) promptSchedule(ctx context.Context, s *runtime.Session, field model.FormField) error {
	engine, ok := s.Schedule(field.ID)
	if !ok {
		return r.driver.Info(ctx, message(field)+": no schedule available")
	}

	if specialties := engine.Specialties(); len(specialties) > 1 && len(engine.SelectorIDs()) == 0 {
		current, _ := s.Values().Schedule(field.ID)
		def := -1
		if at := positions(specialties, []string{current.Specialty}); len(at) > 0 {
			def = at[0]
		}
		idx, err := r.driver.Select(ctx, SelectConfig{Message: "Specialty", Options: specialties, DefaultIndex: def})
		if err != nil {
			return err
		}
		if idx >= 0 && specialties[idx] != current.Specialty {
			next := model.ScheduleValue{Specialty: specialties[idx]}
			if matching := engine.PractitionersFor(next.Specialty); len(matching) > 0 {
				next.Practitioner = matching[0].ID
			}
			if err := s.SetValue(field.ID, next); err != nil {
				return err
			}
		}
	}

	for {
		date, err := r.driver.Input(ctx, InputConfig{
			Message:   message(field) + " date",
			Default:   engine.Date(),
			Help:      "YYYY-MM-DD, blank to skip",
			Validator: optional(func(v string) error { _, err := time.Parse(schedule.DateLayout, v); return err }),
		})
		if err != nil {
			return err
		}
		date = strings.TrimSpace(date)
		if date == "" {
			return nil
		}
		if err := engine.SetDate(date); err != nil {
			return err
		}
		if err := s.RefreshSchedule(ctx, field.ID); err != nil {
			return err
		}

		slots := available(engine.Slots())
		if len(slots) == 0 {
			if alt, ok := engine.Alternative(); ok {
				try, err := r.driver.Confirm(ctx, ConfirmConfig{Message: fmt.Sprintf("No slots that day. Try %s instead?", alt), Default: true})
				if err != nil {
					return err
				}
				if try && engine.AcceptAlternative(ctx, s.Values()) {
					slots = available(engine.Slots())
				}
			}
		}
		if len(slots) == 0 {
			if err := r.driver.Info(ctx, "No available slots on "+date); err != nil {
				return err
			}
			continue
		}

		labels := make([]string, len(slots))
		for i, slot := range slots {
			labels[i] = slotLabel(slot)
		}
		idx, err := r.driver.Select(ctx, SelectConfig{Message: "Time", Options: labels})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(slots) {
			continue
		}
		return s.ChooseSlot(field.ID, slots[idx].Time)
	}
}

func available(slots []schedule.SlotView) []schedule.SlotView {
	out := make([]schedule.SlotView, 0, len(slots))
	for _, slot := range slots {
		if slot.Available {
			out = append(out, slot)
		}
	}
	return out
}

func slotLabel(slot schedule.SlotView) string {
	label := slot.Display
	if slot.OffsetLabel != "" {
		label += " " + slot.OffsetLabel
	}
	if slot.Type != "" {
		label += " (" + string(slot.Type) + ")"
	}
	return label
}

func optionLabel(opt model.Option) string {
	switch {
	case opt.Specialty != "":
		return fmt.Sprintf("%s (%s)", opt.Label, opt.Specialty)
	case opt.Duration > 0:
		return fmt.Sprintf("%s (%d min)", opt.Label, opt.Duration)
	}
	return opt.Label
}

func message(field model.FormField) string {
	label := field.Label
	if label == "" {
		label = field.ID
	}
	if field.Required {
		label += " *"
	}
	return label
}

func optional(check func(string) error) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return check(strings.TrimSpace(v))
	}
}

func asString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

func asStrings(v any) []string {
	switch typed := v.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
