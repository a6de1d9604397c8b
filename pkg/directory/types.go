package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Practitioner is a bookable clinician.
type Practitioner struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Specialties []string `json:"specialties,omitempty" validate:"dive,required"`
	// TimeZone is the IANA zone slot times are expressed in. Empty falls back
	// to the clinic zone.
	TimeZone string         `json:"timeZone,omitempty"`
	Schedule map[string]any `json:"schedule,omitempty"`
}

// Service is one bookable treatment.
type Service struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Duration int     `json:"duration" validate:"gte=0"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// ConsultationType filters slot availability.
type ConsultationType string

const (
	ConsultationAny      ConsultationType = ""
	ConsultationOnline   ConsultationType = "online"
	ConsultationInPerson ConsultationType = "in-person"
)

// Complement returns the opposite consultation type. Any has no complement.
func (c ConsultationType) Complement() ConsultationType {
	switch c {
	case ConsultationOnline:
		return ConsultationInPerson
	case ConsultationInPerson:
		return ConsultationOnline
	default:
		return ConsultationAny
	}
}

// ParseConsultationType accepts the wire spellings used by clinic backends.
func ParseConsultationType(raw string) (ConsultationType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ConsultationAny, nil
	case "online", "virtual", "video":
		return ConsultationOnline, nil
	case "in-person", "in_person", "inperson", "presencial":
		return ConsultationInPerson, nil
	default:
		return ConsultationAny, fmt.Errorf("directory: unknown consultation type %q", raw)
	}
}

// SlotQuery scopes an availability request to a practitioner and date. Date
// is "2006-01-02"; TimeZone is the zone returned times must be expressed in.
type SlotQuery struct {
	PractitionerID   string
	Date             string
	ConsultationType ConsultationType
	TimeZone         string
}

// Slot is a bookable time unit in practitioner-local wall-clock time.
type Slot struct {
	Time      string           `json:"time" validate:"required,datetime=15:04"`
	Type      ConsultationType `json:"type,omitempty"`
	Available bool             `json:"available"`
}

// SlotResult is the availability response. AllSlots includes unavailable
// entries when the backend reports them.
type SlotResult struct {
	Slots    []Slot `json:"slots" validate:"dive"`
	AllSlots []Slot `json:"allSlots,omitempty" validate:"dive"`
}

// Account is the prefill data attached to a positive email lookup.
type Account struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	DOB   string `json:"dob,omitempty"`
}

// LookupResult is the email existence response.
type LookupResult struct {
	Exists bool     `json:"exists"`
	User   *Account `json:"user,omitempty"`
}

// PractitionerSource lists practitioners.
type PractitionerSource interface {
	Practitioners(ctx context.Context) ([]Practitioner, error)
}

// ServiceCatalog lists services, optionally filtered by practitioner id.
type ServiceCatalog interface {
	Services(ctx context.Context, practitionerID string) ([]Service, error)
}

// SlotSource answers availability queries.
type SlotSource interface {
	AvailableSlots(ctx context.Context, q SlotQuery) (SlotResult, error)
}

// AccountLookup checks whether an email already belongs to a patient account.
type AccountLookup interface {
	LookupEmail(ctx context.Context, email, clinicID string) (LookupResult, error)
}

// RejectionKind classifies a remote refusal.
type RejectionKind string

const (
	RejectionValidation RejectionKind = "validation"
	RejectionConflict   RejectionKind = "conflict"
)

// RejectionError is returned by collaborators that refuse a request for a
// reason the user can correct. Fields maps field ids to messages when the
// remote side reported them.
type RejectionError struct {
	Kind    RejectionKind
	Message string
	Fields  map[string]string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("directory: %s rejection", e.Kind)
	}
	return fmt.Sprintf("directory: %s rejection: %s", e.Kind, e.Message)
}

// AsRejection unwraps a RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
