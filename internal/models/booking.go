package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Coordinates of a job site. Zero value is the default when the customer
// supplied only an address.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Location struct {
	Address     string      `json:"address" validate:"required"`
	Coordinates Coordinates `json:"coordinates"`
}

type TimeSlot struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// ProposedPrice is the artisan's cost breakdown. Total is pre-summed by the
// caller and sent as-is.
type ProposedPrice struct {
	Labor        float64 `json:"labor" validate:"gte=0"`
	Parts        float64 `json:"parts" validate:"gte=0"`
	Transport    float64 `json:"transport" validate:"gte=0"`
	EmergencyFee float64 `json:"emergencyFee" validate:"gte=0"`
	Total        float64 `json:"total" validate:"gt=0"`
	Currency     string  `json:"currency,omitempty"`
	Note         string  `json:"note,omitempty" validate:"required"`
}

// Sum returns labor + parts + transport + emergency fee.
func (p ProposedPrice) Sum() float64 {
	return p.Labor + p.Parts + p.Transport + p.EmergencyFee
}

// Ref points at a customer, artisan or service. The server sends either a
// bare id or a populated document; both decode into a Ref.
type Ref struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Name == "" {
		return json.Marshal(r.ID)
	}
	type plain Ref
	return json.Marshal(plain(r))
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ref{}
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref{ID: id}
		return nil
	}
	type plain Ref
	var doc plain
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.New("ref: expected id string or object")
	}
	*r = Ref(doc)
	return nil
}

type Booking struct {
	ID                 string         `json:"_id"`
	Customer           Ref            `json:"customer"`
	Artisan            Ref            `json:"artisan"`
	Service            Ref            `json:"service"`
	Status             Status         `json:"status"`
	ScheduledDate      string         `json:"scheduledDate"`
	TimeSlot           TimeSlot       `json:"timeSlot"`
	IsEmergency        bool           `json:"isEmergency"`
	ProblemDescription string         `json:"problemDescription,omitempty"`
	ProblemPhotos      []string       `json:"problemPhotos,omitempty"`
	Location           Location       `json:"location"`
	ProposedPrice      *ProposedPrice `json:"proposedPrice,omitempty"`
	CreatedAt          *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt          *time.Time     `json:"updatedAt,omitempty"`
}

// BookingPatch holds the fields present in a pushed booking document, keyed
// by their wire names. Absent keys mean "leave unchanged".
type BookingPatch map[string]json.RawMessage

// ParsePatch decodes a booking document into a patch.
func ParsePatch(data []byte) (BookingPatch, error) {
	var p BookingPatch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("booking patch: empty document")
	}
	return p, nil
}

// PatchFromBooking encodes a full document as a patch.
func PatchFromBooking(b Booking) (BookingPatch, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return ParsePatch(raw)
}

// ID returns the booking id carried by the patch, or "" when missing.
func (p BookingPatch) ID() string {
	raw, ok := p["_id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// UpdatedAt returns the server timestamp carried by the patch, if any.
func (p BookingPatch) UpdatedAt() *time.Time {
	raw, ok := p["updatedAt"]
	if !ok {
		return nil
	}
	var ts time.Time
	if err := json.Unmarshal(raw, &ts); err != nil {
		return nil
	}
	return &ts
}

// Merge overlays the patch onto base: keys present in the patch replace the
// corresponding top-level fields, everything else is kept.
func (p BookingPatch) Merge(base Booking) (Booking, error) {
	current, err := PatchFromBooking(base)
	if err != nil {
		return Booking{}, err
	}
	for k, v := range p {
		current[k] = v
	}
	return current.Booking()
}

// Booking decodes the patch as a full document.
func (p BookingPatch) Booking() (Booking, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Booking{}, err
	}
	var b Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return Booking{}, err
	}
	return b, nil
}

// Clone returns a deep copy so store readers never alias stored slices.
func (b Booking) Clone() Booking {
	out := b
	if b.ProblemPhotos != nil {
		out.ProblemPhotos = append([]string(nil), b.ProblemPhotos...)
	}
	if b.ProposedPrice != nil {
		pp := *b.ProposedPrice
		out.ProposedPrice = &pp
	}
	if b.CreatedAt != nil {
		t := *b.CreatedAt
		out.CreatedAt = &t
	}
	if b.UpdatedAt != nil {
		t := *b.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}
