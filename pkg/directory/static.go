package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Static serves a fixed directory from memory. It backs offline runs of the
// console and tests that do not need an HTTP round trip.
type Static struct {
	PractitionerList []Practitioner      `json:"practitioners"`
	ServiceList      []Service           `json:"services"`
	ServicesByPract  map[string][]string `json:"servicesByPractitioner,omitempty"`
	SlotsByKey       map[string][]Slot   `json:"slots,omitempty"`
	Accounts         map[string]Account  `json:"accounts,omitempty"`
}

// LoadStatic decodes a fixture document. JSON is tried first, then YAML.
func LoadStatic(data []byte) (*Static, error) {
	var out Static
	if err := json.Unmarshal(data, &out); err == nil {
		return &out, nil
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("directory: decode fixtures: %w", err)
	}
	bridged, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("directory: bridge fixtures: %w", err)
	}
	if err := json.Unmarshal(bridged, &out); err != nil {
		return nil, fmt.Errorf("directory: decode fixtures: %w", err)
	}
	return &out, nil
}

// SlotKey builds the SlotsByKey index for a practitioner and date.
func SlotKey(practitionerID, date string) string {
	return practitionerID + "@" + date
}

// Practitioners returns the fixed list.
func (s *Static) Practitioners(ctx context.Context) ([]Practitioner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Practitioner(nil), s.PractitionerList...), nil
}

// Services returns services offered by practitionerID, or all of them.
func (s *Static) Services(ctx context.Context, practitionerID string) ([]Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	allowed, filtered := s.ServicesByPract[practitionerID]
	if practitionerID == "" || !filtered {
		return append([]Service(nil), s.ServiceList...), nil
	}
	var out []Service
	for _, svc := range s.ServiceList {
		for _, id := range allowed {
			if svc.ID == id {
				out = append(out, svc)
				break
			}
		}
	}
	return out, nil
}

// AvailableSlots filters the fixed slots by consultation type.
func (s *Static) AvailableSlots(ctx context.Context, q SlotQuery) (SlotResult, error) {
	if err := ctx.Err(); err != nil {
		return SlotResult{}, err
	}
	all := s.SlotsByKey[SlotKey(q.PractitionerID, q.Date)]
	var res SlotResult
	for _, slot := range all {
		if q.ConsultationType != ConsultationAny && slot.Type != "" && slot.Type != q.ConsultationType {
			continue
		}
		res.AllSlots = append(res.AllSlots, slot)
		if slot.Available {
			res.Slots = append(res.Slots, slot)
		}
	}
	return res, nil
}

// LookupEmail matches case-insensitively.
func (s *Static) LookupEmail(ctx context.Context, email, _ string) (LookupResult, error) {
	if err := ctx.Err(); err != nil {
		return LookupResult{}, err
	}
	for key, acct := range s.Accounts {
		if strings.EqualFold(key, strings.TrimSpace(email)) {
			user := acct
			return LookupResult{Exists: true, User: &user}, nil
		}
	}
	return LookupResult{}, nil
}
