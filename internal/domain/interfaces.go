package domain

import (
	"context"

	"artisanlink/internal/events"
	"artisanlink/internal/models"
)

// BookingAPI is the REST contract of the booking backend.
type BookingAPI interface {
	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (models.Booking, error)
	ProposePrice(ctx context.Context, bookingID, artisanID string, price models.ProposedPrice) (models.Booking, error)
	ApprovePrice(ctx context.Context, bookingID, customerID string, approved bool) (models.Booking, error)
	GetUserBookings(ctx context.Context, userID string) ([]models.Booking, error)
	GetArtisanBookings(ctx context.Context, artisanID string) ([]models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (models.Booking, error)
}

// Realtime is the process-wide push channel. JoinRoom and LeaveRoom are
// reference counted and idempotent. A JoinRoom that returns an error holds
// no reference.
type Realtime interface {
	Connect(ctx context.Context) error
	Close() error
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	On(event string, handler events.EventHandler) events.Subscription
	Off(sub events.Subscription) bool
}

// SnapshotRepository persists store snapshots between runs. Load returns
// nil, nil when nothing is stored under key.
type SnapshotRepository interface {
	Load(ctx context.Context, key string) (*models.Snapshot, error)
	Save(ctx context.Context, snapshot *models.Snapshot) error
	Delete(ctx context.Context, key string) error
}
