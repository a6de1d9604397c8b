// Package hydrate fills the options of entity-bound fields from live
// practitioner and service records.
//
// An entity-bound field with an empty options list means "use every live
// record". Apply materialises that list once; a non-empty list is the
// author's curation and is never replaced.
package hydrate

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
)

// Apply populates empty options of entity-bound fields in place and reports
// whether anything was written. Calling it again with the same inputs writes
// nothing.
func Apply(form *model.FormModel, practitioners []directory.Practitioner, services []directory.Service) bool {
	if form == nil {
		return false
	}
	changed := false
	for si := range form.Steps {
		fields := form.Steps[si].Fields
		for fi := range fields {
			field := &fields[fi]
			if !field.IsEntityBound() || len(field.Options) > 0 {
				continue
			}
			projected := Project(field.Type, practitioners, services)
			if len(projected) == 0 {
				continue
			}
			field.Options = projected
			changed = true
		}
	}
	return changed
}

// Project maps live records to the options of a field type. Non entity-bound
// types project to nil.
func Project(t model.FieldType, practitioners []directory.Practitioner, services []directory.Service) []model.Option {
	switch {
	case t == model.FieldTypeServiceSelection:
		return ServiceOptions(services)
	case t.IsPractitionerBound():
		return PractitionerOptions(practitioners)
	default:
		return nil
	}
}

// ServiceOptions projects services into options carrying duration and price.
func ServiceOptions(services []directory.Service) []model.Option {
	if len(services) == 0 {
		return nil
	}
	out := make([]model.Option, 0, len(services))
	for _, svc := range services {
		out = append(out, model.Option{
			Label:    labelOr(svc.Name, svc.ID),
			Value:    svc.ID,
			Duration: svc.Duration,
			Price:    svc.Price,
		})
	}
	return out
}

// PractitionerOptions projects practitioners into options carrying their
// specialties. Specialty holds the first one for single-valued consumers.
func PractitionerOptions(practitioners []directory.Practitioner) []model.Option {
	if len(practitioners) == 0 {
		return nil
	}
	out := make([]model.Option, 0, len(practitioners))
	for _, p := range practitioners {
		opt := model.Option{
			Label: labelOr(p.Name, p.ID),
			Value: p.ID,
		}
		if len(p.Specialties) > 0 {
			opt.Specialty = p.Specialties[0]
			opt.Specialties = append([]string(nil), p.Specialties...)
		}
		out = append(out, opt)
	}
	return out
}

// EffectiveOptions returns the options a field offers at runtime: its own
// list when curated, otherwise the projection of the live records.
func EffectiveOptions(field model.FormField, practitioners []directory.Practitioner, services []directory.Service) []model.Option {
	if len(field.Options) > 0 || !field.IsEntityBound() {
		return field.Options
	}
	return Project(field.Type, practitioners, services)
}

// NarrowServices keeps the service options whose value is among offered, in
// option order.
func NarrowServices(options []model.Option, offered []directory.Service) []model.Option {
	ids := make(map[string]struct{}, len(offered))
	for _, svc := range offered {
		ids[svc.ID] = struct{}{}
	}
	out := make([]model.Option, 0, len(options))
	for _, opt := range options {
		if _, ok := ids[opt.Value]; ok {
			out = append(out, opt)
		}
	}
	return out
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

// Result carries the outcome of Fetch. A failed side leaves its list empty
// and records the error; the other side is unaffected.
type Result struct {
	Practitioners    []directory.Practitioner
	Services         []directory.Service
	PractitionersErr error
	ServicesErr      error
}

// Failed reports whether either side failed.
func (r Result) Failed() bool {
	return r.PractitionersErr != nil || r.ServicesErr != nil
}

// Fetch loads practitioners and services concurrently. Failures never
// propagate: they are logged and reported on the Result so callers can show
// a "none configured" state. Nil sources are skipped.
func Fetch(ctx context.Context, practitioners directory.PractitionerSource, services directory.ServiceCatalog, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	var res Result
	var g errgroup.Group

	if practitioners != nil {
		g.Go(func() error {
			list, err := practitioners.Practitioners(ctx)
			if err != nil {
				logger.Warn("practitioner hydration failed", zap.Error(err))
				res.PractitionersErr = err
				return nil
			}
			res.Practitioners = list
			return nil
		})
	}
	if services != nil {
		g.Go(func() error {
			list, err := services.Services(ctx, "")
			if err != nil {
				logger.Warn("service hydration failed", zap.Error(err))
				res.ServicesErr = err
				return nil
			}
			res.Services = list
			return nil
		})
	}
	_ = g.Wait()
	return res
}
