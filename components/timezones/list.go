package timezones

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

// ErrUnknownZone is returned by Lookup for names the tz database lacks.
var ErrUnknownZone = errors.New("timezones: unknown zone")

// clinicZones covers the regions the product ships to. Deployments needing
// others pass WithZones.
var clinicZones = []string{
	"UTC",
	"America/Anchorage", "America/Argentina/Buenos_Aires", "America/Bogota",
	"America/Caracas", "America/Chicago", "America/Denver", "America/Edmonton",
	"America/Guatemala", "America/Halifax", "America/Havana", "America/La_Paz",
	"America/Lima", "America/Los_Angeles", "America/Mexico_City", "America/Montevideo",
	"America/New_York", "America/Panama", "America/Phoenix", "America/Puerto_Rico",
	"America/Santiago", "America/Santo_Domingo", "America/Sao_Paulo", "America/St_Johns",
	"America/Toronto", "America/Vancouver", "America/Winnipeg",
	"Atlantic/Canary", "Atlantic/Reykjavik",
	"Europe/Amsterdam", "Europe/Athens", "Europe/Berlin", "Europe/Brussels",
	"Europe/Dublin", "Europe/Helsinki", "Europe/Istanbul", "Europe/Lisbon",
	"Europe/London", "Europe/Madrid", "Europe/Paris", "Europe/Rome",
	"Europe/Stockholm", "Europe/Warsaw", "Europe/Zurich",
	"Africa/Cairo", "Africa/Johannesburg", "Africa/Lagos", "Africa/Nairobi",
	"Asia/Dubai", "Asia/Hong_Kong", "Asia/Jakarta", "Asia/Kolkata",
	"Asia/Manila", "Asia/Seoul", "Asia/Shanghai", "Asia/Singapore",
	"Asia/Tokyo", "Australia/Adelaide", "Australia/Brisbane", "Australia/Perth",
	"Australia/Sydney", "Pacific/Auckland", "Pacific/Honolulu",
}

var (
	defaultOnce  sync.Once
	defaultZones []string
)

// DefaultZones returns the built-in zone list, sorted, keeping only names
// the embedded tz database can load.
func DefaultZones() []string {
	defaultOnce.Do(func() {
		zones := make([]string, 0, len(clinicZones))
		for _, name := range clinicZones {
			if _, err := time.LoadLocation(name); err == nil {
				zones = append(zones, name)
			}
		}
		sort.Strings(zones)
		defaultZones = zones
	})
	return append([]string{}, defaultZones...)
}

// LoadZones reads one zone per line, skipping blanks, comments and
// duplicates. Names the tz database rejects are reported together.
func LoadZones(r io.Reader) ([]string, error) {
	if r == nil {
		return nil, fmt.Errorf("timezones: missing reader")
	}

	scanner := bufio.NewScanner(r)
	zones := make([]string, 0, 64)
	seen := map[string]struct{}{}
	var unknown []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		if _, err := time.LoadLocation(line); err != nil {
			unknown = append(unknown, line)
			continue
		}
		zones = append(zones, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, strings.Join(unknown, ", "))
	}

	sort.Strings(zones)
	return zones, nil
}

// Lookup loads a zone by IANA name. The empty string and "Local" are
// rejected so configuration never depends on the host's zone.
func Lookup(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return loc, nil
}

// OffsetLabel formats the UTC offset of loc at instant, e.g. "UTC-05:00".
func OffsetLabel(loc *time.Location, at time.Time) string {
	_, secs := at.In(loc).Zone()
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, secs/3600, (secs%3600)/60)
}
