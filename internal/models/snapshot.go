package models

import "time"

// Snapshot is the persisted form of the booking store for one signed-in
// owner, used to show last-known data before the first fetch completes.
type Snapshot struct {
	OwnerID         string    `json:"owner_id"`
	Role            Role      `json:"role"`
	Bookings        []Booking `json:"bookings"`
	ArtisanBookings []Booking `json:"artisan_bookings"`
	SavedAt         time.Time `json:"saved_at"`
}

// Key identifies a snapshot in a repository.
func (s Snapshot) Key() string {
	return SnapshotKey(s.Role, s.OwnerID)
}

func SnapshotKey(role Role, ownerID string) string {
	return string(role) + ":" + ownerID
}
