package models

// Envelope is the response wrapper used by every endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// BookingUpdatedPayload is the body of a booking_updated push.
type BookingUpdatedPayload struct {
	Booking BookingPatch `json:"booking"`
}
