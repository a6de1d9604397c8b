package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/internal/metrics"
	"github.com/goliatone/go-clinicform/internal/requesttoken"
	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
)

// ZonePreference selects the zone slot times are displayed in.
type ZonePreference string

const (
	ZonePractitioner ZonePreference = "practitioner"
	ZoneViewer       ZonePreference = "viewer"
)

var (
	// ErrNotScheduleField is returned by New when fieldID is not a schedule field.
	ErrNotScheduleField = errors.New("schedule: field is not a schedule field")
	// ErrSlotUnavailable is returned by Choose for a time not in the current list.
	ErrSlotUnavailable = errors.New("schedule: slot not available")
)

const slotsKey = "slots"

// Config wires an Engine to its collaborators. ViewerZone is the zone the
// person filling the form is in; it must be supplied by the caller. Neither
// zone ever defaults to the host's local zone.
type Config struct {
	Practitioners []directory.Practitioner
	Slots         directory.SlotSource
	ViewerZone    *time.Location
	// DefaultZone applies to practitioners without a configured zone.
	DefaultZone *time.Location
	Logger      *zap.Logger
	Metrics     *metrics.FormMetrics
}

// Resolution is the practitioner and specialty a schedule field is bound to.
type Resolution struct {
	Specialty    string
	Practitioner string
}

// SlotView is one slot prepared for display.
type SlotView struct {
	// Time is the practitioner-local wall clock written into the value.
	Time string
	// Display is the wall clock in the preferred zone.
	Display     string
	DisplayDate string
	DayOffset   int
	OffsetLabel string
	Type        directory.ConsultationType
	Available   bool
	Instant     time.Time
}

type fetched struct {
	practitioner string
	date         string
	zone         *time.Location
	slots        []directory.Slot
	instants     []time.Time
}

// Engine drives one schedule field.
type Engine struct {
	fieldID       string
	field         model.FormField
	selectorIDs   []string
	practitioners []directory.Practitioner
	source        directory.SlotSource
	viewerZone    *time.Location
	defaultZone   *time.Location
	logger        *zap.Logger
	metrics       *metrics.FormMetrics
	tokens        *requesttoken.Sequencer

	mu          sync.Mutex
	date        string
	consult     directory.ConsultationType
	pref        ZonePreference
	lastKey     string
	loading     bool
	result      *fetched
	alternative directory.ConsultationType
}

// New builds an Engine for the schedule field fieldID of form. Practitioner
// and doctor selection fields elsewhere in the form become external
// selectors whose value takes precedence over the field's own chooser.
func New(form model.FormModel, fieldID string, cfg Config) (*Engine, error) {
	field, ok := form.FieldByID(fieldID)
	if !ok || field.Type != model.FieldTypeSchedule {
		return nil, fmt.Errorf("%w: %q", ErrNotScheduleField, fieldID)
	}
	e := &Engine{
		fieldID:     fieldID,
		field:       field,
		source:      cfg.Slots,
		viewerZone:  cfg.ViewerZone,
		defaultZone: cfg.DefaultZone,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tokens:      requesttoken.New(),
		pref:        ZonePractitioner,
	}
	if e.defaultZone == nil {
		e.defaultZone = time.UTC
	}
	if e.viewerZone == nil {
		e.viewerZone = e.defaultZone
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("field", fieldID))

	for _, f := range form.Fields() {
		if f.ID == fieldID {
			continue
		}
		if f.Type == model.FieldTypeDoctorSelection || f.Type == model.FieldTypePractitionerSelection {
			e.selectorIDs = append(e.selectorIDs, f.ID)
		}
	}
	e.practitioners = restrict(cfg.Practitioners, field.Options)
	return e, nil
}

// restrict keeps the practitioners a curated option list names, in option
// order. An empty list keeps everyone.
func restrict(all []directory.Practitioner, options []model.Option) []directory.Practitioner {
	if len(options) == 0 {
		return append([]directory.Practitioner(nil), all...)
	}
	byID := make(map[string]directory.Practitioner, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}
	out := make([]directory.Practitioner, 0, len(options))
	for _, opt := range options {
		if p, ok := byID[opt.Value]; ok {
			out = append(out, p)
			continue
		}
		specialties := opt.Specialties
		if len(specialties) == 0 && opt.Specialty != "" {
			specialties = []string{opt.Specialty}
		}
		out = append(out, directory.Practitioner{ID: opt.Value, Name: opt.Label, Specialties: specialties})
	}
	return out
}

// FieldID returns the schedule field this engine drives.
func (e *Engine) FieldID() string { return e.fieldID }

// SelectorIDs returns the ids of fields whose value picks the practitioner.
func (e *Engine) SelectorIDs() []string {
	return append([]string(nil), e.selectorIDs...)
}

// ViewerZone returns the configured viewer zone.
func (e *Engine) ViewerZone() *time.Location { return e.viewerZone }

// Specialties returns every specialty across practitioners, sorted and
// deduplicated.
func (e *Engine) Specialties() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range e.practitioners {
		for _, s := range p.Specialties {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// PractitionersFor lists practitioners offering specialty. An empty
// specialty lists everyone.
func (e *Engine) PractitionersFor(specialty string) []directory.Practitioner {
	if specialty == "" {
		return append([]directory.Practitioner(nil), e.practitioners...)
	}
	var out []directory.Practitioner
	for _, p := range e.practitioners {
		if hasSpecialty(p, specialty) {
			out = append(out, p)
		}
	}
	return out
}

func hasSpecialty(p directory.Practitioner, specialty string) bool {
	for _, s := range p.Specialties {
		if strings.EqualFold(strings.TrimSpace(s), specialty) {
			return true
		}
	}
	return false
}

// Resolve determines the active specialty and practitioner. The
// practitioner is an external selector's value, else the field's own
// sub-value, else the first practitioner offering the specialty, else the
// first practitioner overall. The specialty is the field's own sub-value or
// the first specialty alphabetically; once the practitioner is known it must
// be one that practitioner offers, otherwise their first specialty
// alphabetically replaces it.
func (e *Engine) Resolve(values model.FormValues) Resolution {
	sub, _ := values.Schedule(e.fieldID)

	res := Resolution{Specialty: sub.Specialty}
	for _, id := range e.selectorIDs {
		if v := strings.TrimSpace(values.String(id)); v != "" {
			res.Practitioner = v
			break
		}
	}
	if res.Practitioner == "" {
		res.Practitioner = sub.Practitioner
	}
	if res.Practitioner != "" {
		if p, ok := e.Practitioner(res.Practitioner); ok && !hasSpecialty(p, res.Specialty) {
			if offered := sortedSpecialties(p); len(offered) > 0 {
				res.Specialty = offered[0]
			}
		}
	}

	if res.Specialty == "" {
		if all := e.Specialties(); len(all) > 0 {
			res.Specialty = all[0]
		}
	}
	if res.Practitioner != "" {
		return res
	}
	if matching := e.PractitionersFor(res.Specialty); len(matching) > 0 {
		res.Practitioner = matching[0].ID
		return res
	}
	if len(e.practitioners) > 0 {
		res.Practitioner = e.practitioners[0].ID
	}
	return res
}

func sortedSpecialties(p directory.Practitioner) []string {
	out := make([]string, 0, len(p.Specialties))
	for _, s := range p.Specialties {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Practitioner looks up a practitioner by id.
func (e *Engine) Practitioner(id string) (directory.Practitioner, bool) {
	for _, p := range e.practitioners {
		if p.ID == id {
			return p, true
		}
	}
	return directory.Practitioner{}, false
}

// PractitionerZone is the zone slot times for id are expressed in.
func (e *Engine) PractitionerZone(id string) *time.Location {
	p, _ := e.Practitioner(id)
	return LoadZone(p.TimeZone, e.defaultZone)
}

// SetDate selects the calendar date to query, in DateLayout.
func (e *Engine) SetDate(date string) error {
	if date != "" {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return fmt.Errorf("%w %q", ErrInvalidDate, date)
		}
	}
	e.mu.Lock()
	e.date = date
	e.mu.Unlock()
	return nil
}

// Date returns the selected date.
func (e *Engine) Date() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.date
}

// SetConsultationType filters availability.
func (e *Engine) SetConsultationType(t directory.ConsultationType) {
	e.mu.Lock()
	e.consult = t
	e.mu.Unlock()
}

// ConsultationType returns the active filter.
func (e *Engine) ConsultationType() directory.ConsultationType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consult
}

// SetZonePreference toggles between practitioner and viewer display.
func (e *Engine) SetZonePreference(p ZonePreference) {
	if p != ZoneViewer {
		p = ZonePractitioner
	}
	e.mu.Lock()
	e.pref = p
	e.mu.Unlock()
}

// ZonePreference returns the display preference.
func (e *Engine) ZonePreference() ZonePreference {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pref
}

// Refresh queries availability when the (date, practitioner, zone
// preference, consultation type) tuple differs from the last request. A
// response is applied only if no newer request was issued meanwhile.
// Failures leave an empty list and are not retried.
func (e *Engine) Refresh(ctx context.Context, values model.FormValues) {
	e.refresh(ctx, values, false)
}

// Reload queries availability even when the tuple is unchanged.
func (e *Engine) Reload(ctx context.Context, values model.FormValues) {
	e.refresh(ctx, values, true)
}

func (e *Engine) refresh(ctx context.Context, values model.FormValues, force bool) {
	res := e.Resolve(values)

	e.mu.Lock()
	date, consult, pref := e.date, e.consult, e.pref
	if res.Practitioner == "" || date == "" || e.source == nil {
		e.tokens.Invalidate(slotsKey)
		e.lastKey = ""
		e.loading = false
		e.result = nil
		e.alternative = directory.ConsultationAny
		e.mu.Unlock()
		return
	}
	key := strings.Join([]string{res.Practitioner, date, string(pref), string(consult)}, "|")
	if key == e.lastKey && !force {
		e.mu.Unlock()
		return
	}
	tok := e.tokens.Issue(slotsKey)
	e.lastKey = key
	e.loading = true
	e.mu.Unlock()

	zone := e.PractitionerZone(res.Practitioner)
	query := directory.SlotQuery{
		PractitionerID:   res.Practitioner,
		Date:             date,
		ConsultationType: consult,
		TimeZone:         zone.String(),
	}

	start := time.Now()
	result, err := e.source.AvailableSlots(ctx, query)
	elapsed := time.Since(start)

	e.mu.Lock()
	defer e.mu.Unlock()
	current := e.tokens.Commit(slotsKey, tok, func() {
		e.loading = false
		e.alternative = directory.ConsultationAny
		if err != nil {
			e.metrics.ObserveSlotFetch("error", elapsed)
			e.logger.Warn("slot retrieval failed", zap.String("practitioner", res.Practitioner), zap.String("date", date), zap.Error(err))
			e.result = &fetched{practitioner: res.Practitioner, date: date, zone: zone}
			return
		}
		e.metrics.ObserveSlotFetch("ok", elapsed)

		ingested := &fetched{practitioner: res.Practitioner, date: date, zone: zone}
		for _, slot := range result.Slots {
			instant, err := SlotInstant(date, slot.Time, zone)
			if err != nil {
				e.metrics.ObserveOmittedSlot()
				e.logger.Warn("omitting slot", zap.String("time", slot.Time), zap.String("zone", zone.String()), zap.Error(err))
				continue
			}
			ingested.slots = append(ingested.slots, slot)
			ingested.instants = append(ingested.instants, instant)
		}
		e.result = ingested
		if len(ingested.slots) == 0 && consult != directory.ConsultationAny {
			e.alternative = consult.Complement()
		}
	})
	if !current {
		e.metrics.ObserveStale(slotsKey)
		e.logger.Debug("dropping superseded slot response", zap.String("key", key))
	}
}

// Loading reports whether the newest slot request is still outstanding.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Slots returns the current slot list formatted for the display preference.
// While a request is outstanding the list is empty.
func (e *Engine) Slots() []SlotView {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loading || e.result == nil {
		return nil
	}
	display := e.result.zone
	if e.pref == ZoneViewer {
		display = e.viewerZone
	}
	out := make([]SlotView, 0, len(e.result.slots))
	for i, slot := range e.result.slots {
		instant := e.result.instants[i]
		date, clock := ConvertInstant(instant, display)
		offset := DayOffset(instant, e.result.zone, display)
		out = append(out, SlotView{
			Time:        slot.Time,
			Display:     clock,
			DisplayDate: date,
			DayOffset:   offset,
			OffsetLabel: OffsetLabel(offset),
			Type:        slot.Type,
			Available:   slot.Available,
			Instant:     instant,
		})
	}
	return out
}

// Alternative returns the complementary consultation type to offer when the
// last query for a specific type came back empty.
func (e *Engine) Alternative() (directory.ConsultationType, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alternative, e.alternative != directory.ConsultationAny
}

// AcceptAlternative switches to the offered consultation type and queries
// again. It reports false when no alternative was on offer.
func (e *Engine) AcceptAlternative(ctx context.Context, values model.FormValues) bool {
	alt, ok := e.Alternative()
	if !ok {
		return false
	}
	e.SetConsultationType(alt)
	e.Refresh(ctx, values)
	return true
}

// Choose validates that clock is a currently offered, available slot and
// returns the value to commit: the resolved practitioner and specialty plus
// the practitioner-local date and time.
func (e *Engine) Choose(values model.FormValues, clock string) (model.ScheduleValue, error) {
	res := e.Resolve(values)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil || e.loading || e.result.practitioner != res.Practitioner || e.result.date != e.date {
		return model.ScheduleValue{}, fmt.Errorf("%w: %s", ErrSlotUnavailable, clock)
	}
	for _, slot := range e.result.slots {
		if slot.Time == clock && slot.Available {
			return model.ScheduleValue{
				Specialty:    res.Specialty,
				Practitioner: res.Practitioner,
				Date:         e.result.date,
				Time:         slot.Time,
			}, nil
		}
	}
	return model.ScheduleValue{}, fmt.Errorf("%w: %s", ErrSlotUnavailable, clock)
}

// Reset forgets the date and any fetched slots. Outstanding responses become
// stale.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens.Invalidate(slotsKey)
	e.date = ""
	e.lastKey = ""
	e.loading = false
	e.result = nil
	e.alternative = directory.ConsultationAny
}
