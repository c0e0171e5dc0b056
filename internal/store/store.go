package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"artisanlink/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrMissingID   = errors.New("store: booking has no id")
	ErrUnknownRole = errors.New("store: unknown role")
)

// FetchErrorPolicy decides what a failed fetch does to the collection.
type FetchErrorPolicy string

const (
	// PolicyClear empties the collection so the view shows its empty state.
	PolicyClear FetchErrorPolicy = "clear"
	// PolicyPreserve keeps the last successful result on screen.
	PolicyPreserve FetchErrorPolicy = "preserve"
)

func ParseFetchErrorPolicy(s string) (FetchErrorPolicy, error) {
	switch FetchErrorPolicy(s) {
	case PolicyClear, PolicyPreserve:
		return FetchErrorPolicy(s), nil
	case "":
		return PolicyClear, nil
	default:
		return "", fmt.Errorf("unknown fetch error policy %q", s)
	}
}

// Operation keys for pending/error tracking.
const (
	OpCreate  = "create"
	OpPropose = "propose"
	OpRespond = "respond"
	OpDetail  = "detail"
)

// FetchOp returns the operation key of a fetch for the given role.
func FetchOp(role models.Role) string {
	return "fetch:" + string(role)
}

// ProposeOp returns the operation key of a price proposal on one booking.
func ProposeOp(bookingID string) string {
	return OpPropose + ":" + bookingID
}

// RespondOp returns the operation key of a price response on one booking.
func RespondOp(bookingID string) string {
	return OpRespond + ":" + bookingID
}

// OpState is the pending/error pair of one logical operation.
type OpState struct {
	Pending   bool
	Err       error
	UpdatedAt time.Time
}

// ApplyResult reports what a push did to a collection.
type ApplyResult int

const (
	ResultUnchanged ApplyResult = iota
	ResultInserted
	ResultMerged
	ResultStale
)

func (r ApplyResult) String() string {
	switch r {
	case ResultInserted:
		return "inserted"
	case ResultMerged:
		return "merged"
	case ResultStale:
		return "stale"
	default:
		return "unchanged"
	}
}

type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeCleared  ChangeKind = "cleared"
	ChangeUpserted ChangeKind = "upserted"
	ChangeCurrent  ChangeKind = "current"
	ChangeOp       ChangeKind = "operation"
	ChangeRestored ChangeKind = "restored"
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind      ChangeKind
	Role      models.Role
	BookingID string
	Op        string
}

// Listener receives change notifications. It must not block.
type Listener func(Change)

// Store is the client-side booking cache. All mutation goes through its
// methods; readers get copies.
type Store struct {
	mu        sync.RWMutex
	customer  *collection
	artisan   *collection
	current   *models.Booking
	ops       map[string]OpState
	policy    FetchErrorPolicy
	listeners map[int]Listener
	nextID    int
	logger    *zerolog.Logger
	now       func() time.Time
}

func New(policy FetchErrorPolicy, logger *zerolog.Logger) *Store {
	if policy == "" {
		policy = PolicyClear
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{
		customer:  newCollection(),
		artisan:   newCollection(),
		ops:       make(map[string]OpState),
		policy:    policy,
		listeners: make(map[int]Listener),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Store) Policy() FetchErrorPolicy {
	return s.policy
}

func (s *Store) collectionFor(role models.Role) (*collection, error) {
	switch role {
	case models.RoleCustomer:
		return s.customer, nil
	case models.RoleArtisan:
		return s.artisan, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

// Subscribe registers a listener and returns its cancel func.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(changes ...Change) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// Bookings returns the collection for role in display order.
func (s *Store) Bookings(role models.Role) []models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collectionFor(role)
	if err != nil {
		return nil
	}
	return c.list()
}

func (s *Store) Len(role models.Role) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collectionFor(role)
	if err != nil {
		return 0
	}
	return c.len()
}

func (s *Store) Get(role models.Role, id string) (models.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.collectionFor(role)
	if err != nil {
		return models.Booking{}, false
	}
	return c.get(id)
}

// ReplaceAll swaps the role's collection for the fetched list.
func (s *Store) ReplaceAll(role models.Role, list []models.Booking) error {
	s.mu.Lock()
	c, err := s.collectionFor(role)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	kept := c.replace(list)
	size := c.len()
	s.mu.Unlock()

	if len(kept) > 0 {
		s.logger.Debug().Strs("booking_ids", kept).Msg("fetched entries older than stored ones ignored")
	}
	s.logger.Debug().Str("role", string(role)).Int("count", size).Msg("collection replaced")
	s.notify(Change{Kind: ChangeReplaced, Role: role})
	return nil
}

// FetchFailed applies the fetch error policy and reports whether the
// collection was cleared.
func (s *Store) FetchFailed(role models.Role) (bool, error) {
	if s.policy == PolicyPreserve {
		return false, nil
	}

	s.mu.Lock()
	c, err := s.collectionFor(role)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	c.clear()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCleared, Role: role})
	return true, nil
}

// Append adds a server-confirmed booking at the end of the collection. An
// entry with the same id is merged instead of duplicated.
func (s *Store) Append(role models.Role, b models.Booking) error {
	if b.ID == "" {
		return ErrMissingID
	}
	patch, err := models.PatchFromBooking(b)
	if err != nil {
		return err
	}
	_, err = s.apply(role, patch, false)
	return err
}

// ApplyPatch reconciles a pushed booking document: an existing entry is
// shallow-merged, an unknown id is inserted at the front. A patch whose
// updatedAt is older than the stored one is dropped. The detail slot is
// merged too when it holds the same booking.
func (s *Store) ApplyPatch(role models.Role, patch models.BookingPatch) (ApplyResult, error) {
	return s.apply(role, patch, true)
}

func (s *Store) apply(role models.Role, patch models.BookingPatch, front bool) (ApplyResult, error) {
	id := patch.ID()
	if id == "" {
		return ResultUnchanged, ErrMissingID
	}

	s.mu.Lock()
	c, err := s.collectionFor(role)
	if err != nil {
		s.mu.Unlock()
		return ResultUnchanged, err
	}

	var changes []Change
	result := ResultUnchanged

	existing, found := c.items[id]
	switch {
	case found && isStale(existing, patch):
		result = ResultStale
	case found:
		merged, err := patch.Merge(existing)
		if err != nil {
			s.mu.Unlock()
			return ResultUnchanged, fmt.Errorf("merge booking %s: %w", id, err)
		}
		if c.put(merged, front) {
			result = ResultMerged
			changes = append(changes, Change{Kind: ChangeUpserted, Role: role, BookingID: id})
		}
	default:
		doc, err := patch.Booking()
		if err != nil {
			s.mu.Unlock()
			return ResultUnchanged, fmt.Errorf("decode booking %s: %w", id, err)
		}
		c.put(doc, front)
		result = ResultInserted
		changes = append(changes, Change{Kind: ChangeUpserted, Role: role, BookingID: id})
	}

	if result != ResultStale && s.current != nil && s.current.ID == id && !isStale(*s.current, patch) {
		merged, err := patch.Merge(*s.current)
		if err == nil && !equalBooking(*s.current, merged) {
			s.current = &merged
			changes = append(changes, Change{Kind: ChangeCurrent, BookingID: id})
		}
	}
	s.mu.Unlock()

	if result == ResultStale {
		s.logger.Debug().Str("booking_id", id).Msg("stale booking update dropped")
	}
	s.notify(changes...)
	return result, nil
}

func isStale(existing models.Booking, patch models.BookingPatch) bool {
	incoming := patch.UpdatedAt()
	if existing.UpdatedAt == nil || incoming == nil {
		return false
	}
	return incoming.Before(*existing.UpdatedAt)
}

// Current returns the booking shown in the detail view.
func (s *Store) Current() (models.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Booking{}, false
	}
	return s.current.Clone(), true
}

// SetCurrent replaces the detail slot with a server document.
func (s *Store) SetCurrent(b models.Booking) error {
	if b.ID == "" {
		return ErrMissingID
	}
	c := b.Clone()

	s.mu.Lock()
	s.current = &c
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCurrent, BookingID: b.ID})
	return nil
}

func (s *Store) ClearCurrent() {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if had {
		s.notify(Change{Kind: ChangeCurrent})
	}
}

// BeginOp marks an operation pending and clears its previous error.
func (s *Store) BeginOp(op string) {
	s.mu.Lock()
	s.ops[op] = OpState{Pending: true, UpdatedAt: s.now()}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeOp, Op: op})
}

// EndOp marks an operation finished with an optional error.
func (s *Store) EndOp(op string, err error) {
	s.mu.Lock()
	s.ops[op] = OpState{Pending: false, Err: err, UpdatedAt: s.now()}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeOp, Op: op})
}

// Op returns the pending/error state of one operation.
func (s *Store) Op(op string) OpState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops[op]
}

// ClearOpError resets a stored error after the view surfaced it.
func (s *Store) ClearOpError(op string) {
	s.mu.Lock()
	st := s.ops[op]
	st.Err = nil
	s.ops[op] = st
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeOp, Op: op})
}

// Snapshot captures both collections for persistence.
func (s *Store) Snapshot(role models.Role, ownerID string) models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Snapshot{
		OwnerID:         ownerID,
		Role:            role,
		Bookings:        s.customer.list(),
		ArtisanBookings: s.artisan.list(),
		SavedAt:         s.now(),
	}
}

// Restore seeds both collections from a persisted snapshot.
func (s *Store) Restore(snap models.Snapshot) {
	s.mu.Lock()
	s.customer.replace(snap.Bookings)
	s.artisan.replace(snap.ArtisanBookings)
	s.mu.Unlock()

	s.notify(
		Change{Kind: ChangeRestored, Role: models.RoleCustomer},
		Change{Kind: ChangeRestored, Role: models.RoleArtisan},
	)
}
