// Package summary renders the human-readable recap of a submitted form, used
// for forms that include their answers in the confirmation email.
package summary

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	gotemplate "github.com/goliatone/go-template"

	"github.com/goliatone/go-clinicform/pkg/model"
)

//go:embed templates/*.tpl
var defaultTemplates embed.FS

const defaultTemplate = "summary.tpl"

// Line is one answered field.
type Line struct {
	FieldID string `json:"fieldId"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}

// Lines lists the answered data fields of form in order. Layout fields,
// password fields and empty values are left out. Option values are replaced
// by their labels.
func Lines(form model.FormModel, values model.FormValues) []Line {
	var out []Line
	for _, field := range form.Fields() {
		if field.IsLayout() || field.EffectiveRole() == model.RolePassword {
			continue
		}
		raw, ok := values[field.ID]
		if !ok || model.IsEmpty(raw) {
			continue
		}
		text := display(field, values, raw)
		if text == "" {
			continue
		}
		label := field.Label
		if label == "" {
			label = field.ID
		}
		out = append(out, Line{FieldID: field.ID, Label: label, Value: text})
	}
	return out
}

func display(field model.FormField, values model.FormValues, raw any) string {
	switch field.Type {
	case model.FieldTypeSchedule:
		sv, ok := values.Schedule(field.ID)
		if !ok || !sv.Complete() {
			return ""
		}
		text := sv.Date + " " + sv.Time + " with " + optionLabel(field, sv.Practitioner)
		if sv.Specialty != "" {
			text += " (" + sv.Specialty + ")"
		}
		return text
	case model.FieldTypeCheckbox:
		switch typed := raw.(type) {
		case bool:
			if typed {
				return "Yes"
			}
			return "No"
		case []string:
			return joinLabels(field, typed)
		case []any:
			items := make([]string, 0, len(typed))
			for _, item := range typed {
				items = append(items, fmt.Sprint(item))
			}
			return joinLabels(field, items)
		}
	case model.FieldTypeSelect, model.FieldTypeServiceSelection, model.FieldTypeDoctorSelection, model.FieldTypePractitionerSelection:
		return optionLabel(field, fmt.Sprint(raw))
	}
	switch typed := raw.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

func optionLabel(field model.FormField, value string) string {
	for _, opt := range field.Options {
		if opt.Value == value && opt.Label != "" {
			return opt.Label
		}
	}
	return value
}

func joinLabels(field model.FormField, values []string) string {
	labels := make([]string, 0, len(values))
	for _, v := range values {
		labels = append(labels, optionLabel(field, v))
	}
	return strings.Join(labels, ", ")
}

// Option configures a Renderer.
type Option func(*config)

type config struct {
	dir      string
	files    fs.FS
	name     string
	globals  map[string]any
	location *time.Location
}

// WithTemplateDir loads templates from a directory on disk.
func WithTemplateDir(dir string) Option {
	return func(c *config) { c.dir = dir }
}

// WithTemplateFS loads templates from fsys instead of the built-in set.
func WithTemplateFS(fsys fs.FS) Option {
	return func(c *config) { c.files = fsys }
}

// WithTemplateName selects the template file to render.
func WithTemplateName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithGlobals exposes extra values (clinic name, support phone) to templates.
func WithGlobals(globals map[string]any) Option {
	return func(c *config) { c.globals = globals }
}

// WithLocation sets the zone submission timestamps are printed in.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		if loc != nil {
			c.location = loc
		}
	}
}

// templateEngine is the part of the go-template engine the renderer needs.
type templateEngine interface {
	RenderTemplate(name string, data any, out ...io.Writer) (string, error)
}

// Renderer executes the summary template.
type Renderer struct {
	engine   templateEngine
	name     string
	location *time.Location
}

// NewRenderer configures a go-template engine over the selected template
// source and checks that the summary template exists.
func NewRenderer(opts ...Option) (*Renderer, error) {
	cfg := &config{name: defaultTemplate, location: time.UTC}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	engineOpts := []gotemplate.Option{gotemplate.WithExtension(filepath.Ext(cfg.name))}
	switch {
	case cfg.dir != "":
		if _, err := os.Stat(filepath.Join(cfg.dir, cfg.name)); err != nil {
			return nil, fmt.Errorf("summary: load template %q: %w", cfg.name, err)
		}
		engineOpts = append(engineOpts, gotemplate.WithBaseDir(cfg.dir))
	case cfg.files != nil:
		if _, err := fs.Stat(cfg.files, cfg.name); err != nil {
			return nil, fmt.Errorf("summary: load template %q: %w", cfg.name, err)
		}
		engineOpts = append(engineOpts, gotemplate.WithFS(cfg.files))
	default:
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			return nil, fmt.Errorf("summary: default templates: %w", err)
		}
		engineOpts = append(engineOpts, gotemplate.WithFS(sub))
	}
	if len(cfg.globals) > 0 {
		engineOpts = append(engineOpts, gotemplate.WithGlobalData(cfg.globals))
	}

	registerFilters()
	engine, err := gotemplate.NewRenderer(engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("summary: template engine: %w", err)
	}
	return &Renderer{engine: engine, name: cfg.name, location: cfg.location}, nil
}

// Render produces the summary text. A zero submittedAt omits the timestamp.
func (r *Renderer) Render(form model.FormModel, values model.FormValues, submittedAt time.Time) (string, error) {
	if r == nil || r.engine == nil {
		return "", errors.New("summary: renderer is nil")
	}
	lines := Lines(form, values)
	rows := make([]any, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, map[string]any{"id": line.FieldID, "label": line.Label, "value": line.Value})
	}
	data := map[string]any{
		"title":  form.Title,
		"lines":  rows,
		"fields": fieldIndex(lines),
	}
	if !submittedAt.IsZero() {
		data["submitted_at"] = submittedAt.In(r.location).Format("2006-01-02 15:04 MST")
	}
	out, err := r.engine.RenderTemplate(r.name, data)
	if err != nil {
		return "", fmt.Errorf("summary: execute: %w", err)
	}
	return out, nil
}

// registerFilters adds the filters summary templates rely on to the shared
// pongo2 registry the engine renders with.
func registerFilters() {
	if !pongo2.FilterExists("trim") {
		_ = pongo2.RegisterFilter("trim", filterTrim)
	}
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsValue(strings.TrimSpace(in.String())), nil
}

func fieldIndex(lines []Line) map[string]any {
	out := make(map[string]any, len(lines))
	for _, line := range lines {
		out[line.FieldID] = line.Value
	}
	return out
}
