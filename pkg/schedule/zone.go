package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// DateLayout is the calendar date format used on the wire.
	DateLayout = "2006-01-02"
	// ClockLayout is the wall-clock format of slot times.
	ClockLayout = "15:04"
)

var (
	// ErrNonexistentTime marks a wall-clock time skipped by a DST transition.
	ErrNonexistentTime = errors.New("schedule: wall-clock time does not exist in zone")
	// ErrInvalidDate is returned for dates not in DateLayout.
	ErrInvalidDate = errors.New("schedule: invalid date")
	// ErrInvalidClock is returned for times not in ClockLayout.
	ErrInvalidClock = errors.New("schedule: invalid time")
)

// LoadZone resolves an IANA zone name. Empty or unknown names yield fallback,
// or UTC when fallback is nil.
func LoadZone(name string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

// SlotInstant combines a calendar date and a wall-clock time in loc into an
// absolute instant. Times inside a spring-forward gap return
// ErrNonexistentTime; times repeated by a fall-back transition resolve to the
// earlier instant.
func SlotInstant(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidDate, date)
	}
	hour, minute, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	// The wall clock read as if it were UTC. Every candidate instant is this
	// value shifted by one of the offsets the zone uses around that day.
	wall := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)

	var best time.Time
	found := false
	for _, offset := range offsetsAround(wall, loc) {
		candidate := wall.Add(-time.Duration(offset) * time.Second)
		local := candidate.In(loc)
		if local.Year() != wall.Year() || local.Month() != wall.Month() || local.Day() != wall.Day() ||
			local.Hour() != hour || local.Minute() != minute {
			continue
		}
		if !found || candidate.Before(best) {
			best = candidate
			found = true
		}
	}
	if !found {
		return time.Time{}, fmt.Errorf("%w: %s %s in %s", ErrNonexistentTime, date, clock, loc)
	}
	return best.In(loc), nil
}

func offsetsAround(wall time.Time, loc *time.Location) []int {
	seen := make(map[int]struct{}, 3)
	var out []int
	for _, shift := range []time.Duration{-36 * time.Hour, 0, 36 * time.Hour} {
		_, offset := wall.Add(shift).In(loc).Zone()
		if _, ok := seen[offset]; ok {
			continue
		}
		seen[offset] = struct{}{}
		out = append(out, offset)
	}
	return out
}

func parseClock(clock string) (int, int, error) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidClock, clock)
	}
	hour, errH := strconv.Atoi(clock[:2])
	minute, errM := strconv.Atoi(clock[3:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidClock, clock)
	}
	return hour, minute, nil
}

// Convert re-expresses a wall-clock date and time from one zone in another.
// A wall clock repeated by a fall-back transition is read as its earlier
// instant, so converting back from the later one is lossy: 06:30 UTC on
// 2025-11-02 is 01:30 in New York, which converts back to 05:30 UTC. Keep
// the instant and use ConvertInstant when the round trip must be exact.
func Convert(date, clock string, from, to *time.Location) (string, string, error) {
	instant, err := SlotInstant(date, clock, from)
	if err != nil {
		return "", "", err
	}
	d, c := ConvertInstant(instant, to)
	return d, c, nil
}

// ConvertInstant formats an instant as a date and wall clock in to.
func ConvertInstant(instant time.Time, to *time.Location) (string, string) {
	if to == nil {
		to = time.UTC
	}
	local := instant.In(to)
	return local.Format(DateLayout), local.Format(ClockLayout)
}

// DayOffset is the number of calendar days between the instant's date in
// from and its date in to.
func DayOffset(instant time.Time, from, to *time.Location) int {
	if from == nil {
		from = time.UTC
	}
	if to == nil {
		to = time.UTC
	}
	return civilDay(instant.In(to)) - civilDay(instant.In(from))
}

func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// OffsetLabel renders a day offset as "+1", "-1" or "" for the same day.
func OffsetLabel(days int) string {
	switch {
	case days > 0:
		return "+" + strconv.Itoa(days)
	case days < 0:
		return strconv.Itoa(days)
	default:
		return ""
	}
}
