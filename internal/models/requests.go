package models

// CreateBookingRequest is the body of POST /booking/create.
type CreateBookingRequest struct {
	Customer           string   `json:"customer" validate:"required"`
	Artisan            string   `json:"artisan" validate:"required"`
	Service            string   `json:"service" validate:"required"`
	ProblemDescription string   `json:"problemDescription,omitempty"`
	ProblemPhotos      []string `json:"problemPhotos,omitempty" validate:"omitempty,dive,url"`
	ScheduledDate      string   `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	TimeSlot           TimeSlot `json:"timeSlot"`
	Location           Location `json:"location"`
	IsEmergency        bool     `json:"isEmergency"`
}

// ProposePriceRequest is the body of PUT /booking/{id}/propose/{artisanId}.
type ProposePriceRequest struct {
	ProposedPrice ProposedPrice `json:"proposedPrice"`
}

// ApprovePriceRequest is the body of POST /booking/{id}/approve/{customerId}.
type ApprovePriceRequest struct {
	Approved bool `json:"approved"`
}
