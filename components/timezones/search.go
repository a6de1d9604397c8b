package timezones

import (
	"sort"
	"strings"
	"time"
)

// Option is one zone choice.
type Option struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Offset string `json:"offset"`
}

// Search matches zones case-insensitively. Underscores in zone names match
// spaces in the query, so "new york" finds America/New_York. Prefix matches
// on either the full name or its city segment sort first.
func Search(zones []string, query string, limit int, opts Options) []string {
	limit = clampLimit(limit, opts)
	if limit == 0 {
		return nil
	}

	q := normalize(query)
	if q == "" {
		if opts.EmptySearchMode != EmptySearchTop {
			return nil
		}
		if len(zones) <= limit {
			return append([]string{}, zones...)
		}
		return append([]string{}, zones[:limit]...)
	}

	type match struct {
		name   string
		prefix bool
	}
	matches := make([]match, 0, 16)
	for _, zone := range zones {
		name := normalize(zone)
		if !strings.Contains(name, q) {
			continue
		}
		city := name
		if i := strings.LastIndex(name, "/"); i >= 0 {
			city = name[i+1:]
		}
		matches = append(matches, match{name: zone, prefix: strings.HasPrefix(name, q) || strings.HasPrefix(city, q)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].prefix != matches[j].prefix {
			return matches[i].prefix
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.name)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
}

// Annotate turns zone names into options labelled with their offset at at.
// Names that fail to load are skipped.
func Annotate(zones []string, at time.Time) []Option {
	out := make([]Option, 0, len(zones))
	for _, zone := range zones {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			continue
		}
		offset := OffsetLabel(loc, at)
		out = append(out, Option{Value: zone, Label: zone + " (" + offset + ")", Offset: offset})
	}
	return out
}

// SearchOptions runs Search and annotates the results.
func SearchOptions(zones []string, query string, limit int, opts Options) []Option {
	return Annotate(Search(zones, query, limit, opts), opts.Now())
}
