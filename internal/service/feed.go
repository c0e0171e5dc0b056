package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"artisanlink/internal/domain"
	"artisanlink/internal/events"
	"artisanlink/internal/models"
	"artisanlink/internal/store"

	"github.com/rs/zerolog"
)

var ErrEmptyPush = errors.New("booking_updated without booking")

// Feed binds a live view to the realtime channel: while open it keeps the
// viewer's room joined and reconciles pushed bookings into the store.
type Feed struct {
	rt       domain.Realtime
	store    *store.Store
	role     models.Role
	viewerID string
	logger   *zerolog.Logger

	mu     sync.Mutex
	sub    events.Subscription
	closed bool
}

// OpenFeed joins the viewer's room and starts applying booking_updated
// pushes to the role's collection.
func OpenFeed(rt domain.Realtime, st *store.Store, role models.Role, viewerID string, logger *zerolog.Logger) (*Feed, error) {
	if !role.Valid() {
		return nil, store.ErrUnknownRole
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	f := &Feed{
		rt:       rt,
		store:    st,
		role:     role,
		viewerID: viewerID,
		logger:   logger,
	}
	if err := rt.JoinRoom(viewerID); err != nil {
		return nil, fmt.Errorf("join room %s: %w", viewerID, err)
	}
	f.sub = rt.On(models.EventBookingUpdated, f.handle)
	return f, nil
}

func (f *Feed) handle(event *events.Event) error {
	var payload models.BookingUpdatedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		f.logger.Warn().Err(err).Msg("undecodable booking_updated payload")
		return err
	}
	if len(payload.Booking) == 0 {
		return ErrEmptyPush
	}

	res, err := f.store.ApplyPatch(f.role, payload.Booking)
	if err != nil {
		f.logger.Warn().Err(err).Msg("booking push rejected")
		return err
	}
	f.logger.Debug().
		Str("booking_id", payload.Booking.ID()).
		Str("result", res.String()).
		Msg("booking push applied")
	return nil
}

// Close leaves the room and removes the handler. Repeated calls are no-ops.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.rt.Off(f.sub)
	if err := f.rt.LeaveRoom(f.viewerID); err != nil {
		return fmt.Errorf("leave room %s: %w", f.viewerID, err)
	}
	return nil
}
