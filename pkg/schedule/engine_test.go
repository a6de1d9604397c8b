package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
)

type fakeSlots struct {
	mu      sync.Mutex
	calls   []directory.SlotQuery
	byDate  map[string]map[directory.ConsultationType][]directory.Slot
	err     error
	gates   map[string]chan struct{}
	started chan string
}

func (f *fakeSlots) AvailableSlots(ctx context.Context, q directory.SlotQuery) (directory.SlotResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	gate := f.gates[q.Date]
	slots := f.byDate[q.Date][q.ConsultationType]
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		if f.started != nil {
			f.started <- q.Date
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return directory.SlotResult{}, ctx.Err()
		}
	}
	if err != nil {
		return directory.SlotResult{}, err
	}
	return directory.SlotResult{Slots: slots}, nil
}

func (f *fakeSlots) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func available(times ...string) []directory.Slot {
	out := make([]directory.Slot, 0, len(times))
	for _, tm := range times {
		out = append(out, directory.Slot{Time: tm, Available: true})
	}
	return out
}

var staff = []directory.Practitioner{
	{ID: "p-ruiz", Name: "Dr. Ruiz", Specialties: []string{"laser", "dermatology"}, TimeZone: "America/Los_Angeles"},
	{ID: "p-chen", Name: "Dr. Chen", Specialties: []string{"aesthetics"}, TimeZone: "America/New_York"},
	{ID: "p-okafor", Name: "Dr. Okafor", Specialties: []string{"dermatology"}},
}

func scheduleForm(withDoctor bool) model.FormModel {
	fields := []model.FormField{{ID: "when", Type: model.FieldTypeSchedule, Required: true}}
	if withDoctor {
		fields = append([]model.FormField{{ID: "doctor", Type: model.FieldTypeDoctorSelection}}, fields...)
	}
	return model.FormModel{Title: "Book", Steps: []model.FormStep{{ID: "s", Fields: fields}}}
}

func newEngine(t *testing.T, form model.FormModel, source directory.SlotSource, viewer string) *Engine {
	t.Helper()
	e, err := New(form, "when", Config{
		Practitioners: staff,
		Slots:         source,
		ViewerZone:    mustZone(t, viewer),
		DefaultZone:   mustZone(t, "America/New_York"),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestNew_RequiresScheduleField(t *testing.T) {
	form := scheduleForm(true)
	if _, err := New(form, "doctor", Config{}); !errors.Is(err, ErrNotScheduleField) {
		t.Fatalf("expected ErrNotScheduleField, got %v", err)
	}
	if _, err := New(form, "missing", Config{}); !errors.Is(err, ErrNotScheduleField) {
		t.Fatalf("expected ErrNotScheduleField for unknown id, got %v", err)
	}
}

func TestSpecialtiesSortedUnique(t *testing.T) {
	e := newEngine(t, scheduleForm(false), nil, "UTC")
	if diff := cmp.Diff([]string{"aesthetics", "dermatology", "laser"}, e.Specialties()); diff != "" {
		t.Fatalf("specialties mismatch (-want +got):\n%s", diff)
	}
	var ids []string
	for _, p := range e.PractitionersFor("dermatology") {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"p-ruiz", "p-okafor"}, ids); diff != "" {
		t.Fatalf("practitioners for dermatology (-want +got):\n%s", diff)
	}
}

func TestResolve_Order(t *testing.T) {
	e := newEngine(t, scheduleForm(true), nil, "UTC")

	cases := []struct {
		name   string
		values model.FormValues
		want   Resolution
	}{
		{
			name:   "defaults to first specialty and its first practitioner",
			values: model.FormValues{},
			want:   Resolution{Specialty: "aesthetics", Practitioner: "p-chen"},
		},
		{
			name:   "own specialty narrows practitioners",
			values: model.FormValues{"when": model.ScheduleValue{Specialty: "dermatology"}},
			want:   Resolution{Specialty: "dermatology", Practitioner: "p-ruiz"},
		},
		{
			name:   "own practitioner sub-value",
			values: model.FormValues{"when": model.ScheduleValue{Specialty: "dermatology", Practitioner: "p-okafor"}},
			want:   Resolution{Specialty: "dermatology", Practitioner: "p-okafor"},
		},
		{
			name: "external doctor field wins",
			values: model.FormValues{
				"doctor": "p-ruiz",
				"when":   model.ScheduleValue{Practitioner: "p-okafor"},
			},
			want: Resolution{Specialty: "dermatology", Practitioner: "p-ruiz"},
		},
		{
			name:   "specialty narrowed to what the practitioner offers",
			values: model.FormValues{"when": model.ScheduleValue{Specialty: "dermatology", Practitioner: "p-chen"}},
			want:   Resolution{Specialty: "aesthetics", Practitioner: "p-chen"},
		},
		{
			name: "selected doctor replaces a stale specialty",
			values: model.FormValues{
				"doctor": "p-ruiz",
				"when":   model.ScheduleValue{Specialty: "aesthetics", Practitioner: "p-chen"},
			},
			want: Resolution{Specialty: "dermatology", Practitioner: "p-ruiz"},
		},
		{
			name:   "unknown specialty falls back to first practitioner",
			values: model.FormValues{"when": model.ScheduleValue{Specialty: "podiatry"}},
			want:   Resolution{Specialty: "podiatry", Practitioner: "p-ruiz"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, e.Resolve(tc.values)); diff != "" {
				t.Fatalf("resolution mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_CuratedOptionsRestrictPractitioners(t *testing.T) {
	form := scheduleForm(false)
	form.Steps[0].Fields[0].Options = []model.Option{{Label: "Dr. Okafor", Value: "p-okafor"}}
	e := newEngine(t, form, nil, "UTC")

	if diff := cmp.Diff([]string{"dermatology"}, e.Specialties()); diff != "" {
		t.Fatalf("specialties mismatch (-want +got):\n%s", diff)
	}
	if got := e.Resolve(nil).Practitioner; got != "p-okafor" {
		t.Fatalf("practitioner %q, want p-okafor", got)
	}
}

func TestRefresh_ViewerZoneDayOffset(t *testing.T) {
	source := &fakeSlots{byDate: map[string]map[directory.ConsultationType][]directory.Slot{
		"2025-01-15": {directory.ConsultationAny: available("09:00", "23:30")},
	}}
	e := newEngine(t, scheduleForm(false), source, "America/New_York")
	values := model.FormValues{"when": model.ScheduleValue{Practitioner: "p-ruiz"}}

	if err := e.SetDate("2025-01-15"); err != nil {
		t.Fatalf("set date: %v", err)
	}
	e.Refresh(context.Background(), values)
	if got := source.calls[0].TimeZone; got != "America/Los_Angeles" {
		t.Fatalf("query zone %q, want practitioner zone", got)
	}

	practitionerView := e.Slots()
	if len(practitionerView) != 2 || practitionerView[1].Display != "23:30" || practitionerView[1].OffsetLabel != "" {
		t.Fatalf("practitioner view mismatch: %#v", practitionerView)
	}

	e.SetZonePreference(ZoneViewer)
	e.Refresh(context.Background(), values)
	viewer := e.Slots()
	if len(viewer) != 2 {
		t.Fatalf("expected 2 slots, got %#v", viewer)
	}
	late := viewer[1]
	if late.Time != "23:30" || late.Display != "02:30" || late.DisplayDate != "2025-01-16" || late.DayOffset != 1 || late.OffsetLabel != "+1" {
		t.Fatalf("late slot mismatch: %#v", late)
	}
	if viewer[0].Display != "12:00" || viewer[0].OffsetLabel != "" {
		t.Fatalf("morning slot mismatch: %#v", viewer[0])
	}
}

func TestRefresh_OmitsNonexistentDSTSlot(t *testing.T) {
	source := &fakeSlots{byDate: map[string]map[directory.ConsultationType][]directory.Slot{
		"2025-03-09": {directory.ConsultationAny: available("01:30", "02:30", "03:30")},
	}}
	e := newEngine(t, scheduleForm(false), source, "UTC")
	values := model.FormValues{"when": model.ScheduleValue{Practitioner: "p-chen"}}

	_ = e.SetDate("2025-03-09")
	e.Refresh(context.Background(), values)

	var times []string
	for _, s := range e.Slots() {
		times = append(times, s.Time+"="+s.Instant.UTC().Format("15:04"))
	}
	if diff := cmp.Diff([]string{"01:30=06:30", "03:30=07:30"}, times); diff != "" {
		t.Fatalf("slots mismatch (-want +got):\n%s", diff)
	}
	if _, err := e.Choose(values, "02:30"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("nonexistent slot should not be choosable, got %v", err)
	}
}

func TestRefresh_OneRequestPerKey(t *testing.T) {
	source := &fakeSlots{byDate: map[string]map[directory.ConsultationType][]directory.Slot{
		"2025-05-01": {directory.ConsultationAny: available("10:00")},
	}}
	e := newEngine(t, scheduleForm(false), source, "UTC")
	values := model.FormValues{}
	_ = e.SetDate("2025-05-01")

	e.Refresh(context.Background(), values)
	e.Refresh(context.Background(), values)
	if got := source.callCount(); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}

	e.SetConsultationType(directory.ConsultationOnline)
	e.Refresh(context.Background(), values)
	if got := source.callCount(); got != 2 {
		t.Fatalf("consultation type change should query again, got %d", got)
	}

	e.Reload(context.Background(), values)
	if got := source.callCount(); got != 3 {
		t.Fatalf("reload should query again, got %d", got)
	}
}

func TestRefresh_FailureYieldsEmptyList(t *testing.T) {
	source := &fakeSlots{err: errors.New("gateway timeout")}
	e := newEngine(t, scheduleForm(false), source, "UTC")
	_ = e.SetDate("2025-05-01")
	e.SetConsultationType(directory.ConsultationOnline)

	e.Refresh(context.Background(), model.FormValues{})
	if e.Loading() {
		t.Fatalf("still loading after failure")
	}
	if got := e.Slots(); len(got) != 0 {
		t.Fatalf("expected empty slots, got %#v", got)
	}
	if _, ok := e.Alternative(); ok {
		t.Fatalf("failure must not offer an alternative")
	}

	e.Refresh(context.Background(), model.FormValues{})
	if got := source.callCount(); got != 1 {
		t.Fatalf("failure must not be retried automatically, got %d calls", got)
	}
}

func TestRefresh_OfferAlternativeConsultationType(t *testing.T) {
	source := &fakeSlots{byDate: map[string]map[directory.ConsultationType][]directory.Slot{
		"2025-05-01": {
			directory.ConsultationOnline:   nil,
			directory.ConsultationInPerson: available("09:00", "09:30", "10:00"),
		},
	}}
	e := newEngine(t, scheduleForm(false), source, "UTC")
	values := model.FormValues{"when": model.ScheduleValue{Practitioner: "p-chen"}}
	_ = e.SetDate("2025-05-01")
	e.SetConsultationType(directory.ConsultationOnline)

	e.Refresh(context.Background(), values)
	if len(e.Slots()) != 0 {
		t.Fatalf("expected no online slots")
	}
	alt, ok := e.Alternative()
	if !ok || alt != directory.ConsultationInPerson {
		t.Fatalf("expected in-person alternative, got %q %v", alt, ok)
	}

	if !e.AcceptAlternative(context.Background(), values) {
		t.Fatalf("accept alternative refused")
	}
	if e.ConsultationType() != directory.ConsultationInPerson {
		t.Fatalf("consultation type not switched")
	}
	if got := len(e.Slots()); got != 3 {
		t.Fatalf("expected 3 in-person slots, got %d", got)
	}
	if _, ok := e.Alternative(); ok {
		t.Fatalf("alternative should clear once slots exist")
	}

	chosen, err := e.Choose(values, "09:30")
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	want := model.ScheduleValue{Specialty: "aesthetics", Practitioner: "p-chen", Date: "2025-05-01", Time: "09:30"}
	if diff := cmp.Diff(want, chosen); diff != "" {
		t.Fatalf("chosen value mismatch (-want +got):\n%s", diff)
	}
}

func TestRefresh_StaleResponseDropped(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSlots{
		byDate: map[string]map[directory.ConsultationType][]directory.Slot{
			"2025-06-01": {directory.ConsultationAny: available("08:00")},
			"2025-06-02": {directory.ConsultationAny: available("15:00", "16:00")},
		},
		gates:   map[string]chan struct{}{"2025-06-01": gate},
		started: make(chan string, 1),
	}
	e := newEngine(t, scheduleForm(false), source, "UTC")
	values := model.FormValues{}

	_ = e.SetDate("2025-06-01")
	done := make(chan struct{})
	go func() {
		e.Refresh(context.Background(), values)
		close(done)
	}()
	<-source.started
	if !e.Loading() {
		t.Fatalf("expected loading while first request is pending")
	}

	_ = e.SetDate("2025-06-02")
	e.Refresh(context.Background(), values)

	close(gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("first refresh did not return")
	}

	var times []string
	for _, s := range e.Slots() {
		times = append(times, s.Time)
	}
	if diff := cmp.Diff([]string{"15:00", "16:00"}, times); diff != "" {
		t.Fatalf("stale response overwrote newer slots (-want +got):\n%s", diff)
	}
	if e.Loading() {
		t.Fatalf("loading flag left set")
	}
}

func TestRefresh_ClearsWithoutDate(t *testing.T) {
	source := &fakeSlots{byDate: map[string]map[directory.ConsultationType][]directory.Slot{
		"2025-05-01": {directory.ConsultationAny: available("10:00")},
	}}
	e := newEngine(t, scheduleForm(false), source, "UTC")
	_ = e.SetDate("2025-05-01")
	e.Refresh(context.Background(), nil)
	if len(e.Slots()) != 1 {
		t.Fatalf("expected a slot")
	}

	e.Reset()
	e.Refresh(context.Background(), nil)
	if len(e.Slots()) != 0 || e.Date() != "" {
		t.Fatalf("reset did not clear state")
	}
	if err := e.SetDate("05/01/2025"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
