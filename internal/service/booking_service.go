package service

import (
	"context"
	"strings"

	"artisanlink/internal/apperror"
	"artisanlink/internal/domain"
	"artisanlink/internal/models"
	"artisanlink/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BookingService is the negotiation action set. Every operation validates
// locally first, tracks its own pending/error flag in the store and writes
// the server's answer into the store.
type BookingService struct {
	api      domain.BookingAPI
	store    *store.Store
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewBookingService(api domain.BookingAPI, st *store.Store, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		api:      api,
		store:    st,
		validate: NewValidator(),
		logger:   logger,
	}
}

func (s *BookingService) Store() *store.Store {
	return s.store
}

// CreateBooking submits a new request and appends the created booking to
// the customer collection.
func (s *BookingService) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (models.Booking, error) {
	req.Location.Address = strings.TrimSpace(req.Location.Address)
	if err := checkStruct(s.validate, store.OpCreate, req); err != nil {
		return models.Booking{}, err
	}

	s.store.BeginOp(store.OpCreate)
	created, err := s.api.CreateBooking(ctx, req)
	if err = s.settle(ctx, store.OpCreate, err); err != nil {
		return models.Booking{}, err
	}

	if err := s.store.Append(models.RoleCustomer, created); err != nil {
		return models.Booking{}, s.fail(store.OpCreate, apperror.Decode(store.OpCreate, err))
	}
	s.store.EndOp(store.OpCreate, nil)
	s.logger.Info().Str("booking_id", created.ID).Str("artisan", req.Artisan).Msg("booking created")
	return created, nil
}

// ProposePrice sends the artisan's quote. Only the detail slot is updated;
// the list catches up through realtime pushes or the next fetch.
func (s *BookingService) ProposePrice(ctx context.Context, bookingID, artisanID string, price models.ProposedPrice) (models.Booking, error) {
	price.Note = strings.TrimSpace(price.Note)
	if err := requireIDs(store.OpPropose, map[string]string{"bookingId": bookingID, "artisanId": artisanID}); err != nil {
		return models.Booking{}, err
	}
	if err := checkStruct(s.validate, store.OpPropose, price); err != nil {
		return models.Booking{}, err
	}

	op := store.ProposeOp(bookingID)
	s.store.BeginOp(op)
	updated, err := s.api.ProposePrice(ctx, bookingID, artisanID, price)
	if err = s.settle(ctx, op, err); err != nil {
		return models.Booking{}, err
	}
	if err := s.store.SetCurrent(updated); err != nil {
		return models.Booking{}, s.fail(op, apperror.Decode(store.OpPropose, err))
	}
	s.store.EndOp(op, nil)
	s.logger.Info().Str("booking_id", bookingID).Float64("total", price.Total).Msg("price proposed")
	return updated, nil
}

// RespondToPrice approves or rejects the proposed price.
func (s *BookingService) RespondToPrice(ctx context.Context, bookingID, customerID string, approved bool) (models.Booking, error) {
	if err := requireIDs(store.OpRespond, map[string]string{"bookingId": bookingID, "customerId": customerID}); err != nil {
		return models.Booking{}, err
	}

	op := store.RespondOp(bookingID)
	s.store.BeginOp(op)
	updated, err := s.api.ApprovePrice(ctx, bookingID, customerID, approved)
	if err = s.settle(ctx, op, err); err != nil {
		return models.Booking{}, err
	}
	if err := s.store.SetCurrent(updated); err != nil {
		return models.Booking{}, s.fail(op, apperror.Decode(store.OpRespond, err))
	}
	s.store.EndOp(op, nil)
	s.logger.Info().Str("booking_id", bookingID).Bool("approved", approved).Msg("price response sent")
	return updated, nil
}

// FetchBookings replaces the role's collection with the owner's bookings.
// On failure the store's fetch error policy decides whether the previous
// list survives.
func (s *BookingService) FetchBookings(ctx context.Context, role models.Role, ownerID string) ([]models.Booking, error) {
	if !role.Valid() {
		return nil, store.ErrUnknownRole
	}
	op := store.FetchOp(role)
	if err := requireIDs(op, map[string]string{"ownerId": ownerID}); err != nil {
		return nil, err
	}

	s.store.BeginOp(op)
	var (
		list []models.Booking
		err  error
	)
	if role == models.RoleArtisan {
		list, err = s.api.GetArtisanBookings(ctx, ownerID)
	} else {
		list, err = s.api.GetUserBookings(ctx, ownerID)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, s.drop(op, ctxErr)
	}
	if err != nil {
		if cleared, ferr := s.store.FetchFailed(role); ferr == nil && cleared {
			s.logger.Debug().Str("role", string(role)).Msg("collection cleared after failed fetch")
		}
		return nil, s.fail(op, err)
	}

	if err := s.store.ReplaceAll(role, list); err != nil {
		return nil, s.fail(op, err)
	}
	s.store.EndOp(op, nil)
	return list, nil
}

// LoadBooking refreshes the detail slot from the server.
func (s *BookingService) LoadBooking(ctx context.Context, bookingID string) (models.Booking, error) {
	if err := requireIDs(store.OpDetail, map[string]string{"bookingId": bookingID}); err != nil {
		return models.Booking{}, err
	}

	s.store.BeginOp(store.OpDetail)
	b, err := s.api.GetBooking(ctx, bookingID)
	if err = s.settle(ctx, store.OpDetail, err); err != nil {
		return models.Booking{}, err
	}
	if err := s.store.SetCurrent(b); err != nil {
		return models.Booking{}, s.fail(store.OpDetail, apperror.Decode(store.OpDetail, err))
	}
	s.store.EndOp(store.OpDetail, nil)
	return b, nil
}

// settle handles the common outcomes of a request: a cancelled caller
// drops the result, a failed request records its error.
func (s *BookingService) settle(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return s.drop(op, ctxErr)
	}
	if err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *BookingService) fail(op string, err error) error {
	s.store.EndOp(op, err)
	s.logger.Error().Err(err).Str("op", op).Msg("booking operation failed")
	return err
}

// drop clears the pending flag without recording an error; nobody is left
// to show it.
func (s *BookingService) drop(op string, cause error) error {
	s.store.EndOp(op, nil)
	s.logger.Debug().Str("op", op).Msg("result dropped after cancellation")
	return apperror.Canceled(op, cause)
}
