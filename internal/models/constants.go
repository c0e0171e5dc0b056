package models

// Status is the server-owned booking lifecycle state. The client treats it as
// opaque: it renders and branches on it but never computes transitions.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPriceProposed Status = "price_proposed"
	StatusAccepted      Status = "accepted"
	StatusPriceRejected Status = "price_rejected"
	StatusEnRoute       Status = "en_route"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusDisputed      Status = "disputed"
)

// UnknownStatusLabel is shown for statuses this client does not recognise.
const UnknownStatusLabel = "Unknown"

var statusLabels = map[Status]string{
	StatusPending:       "Pending",
	StatusPriceProposed: "Price proposed",
	StatusAccepted:      "Accepted",
	StatusPriceRejected: "Price rejected",
	StatusEnRoute:       "En route",
	StatusInProgress:    "In progress",
	StatusCompleted:     "Completed",
	StatusCancelled:     "Cancelled",
	StatusDisputed:      "Disputed",
}

// Label never fails: unknown values map to UnknownStatusLabel.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return UnknownStatusLabel
}

func (s Status) IsKnown() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AwaitingCustomerDecision reports whether the customer may approve or reject
// a price. Only price_proposed qualifies.
func (s Status) AwaitingCustomerDecision() bool {
	return s == StatusPriceProposed
}

// Role selects which collection a viewer owns.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleArtisan  Role = "artisan"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleArtisan
}

// Realtime event names.
const (
	EventJoinRoom        = "join_user_room"
	EventLeaveRoom       = "leave_user_room"
	EventBookingUpdated  = "booking_updated"
	EventConnectionState = "connection_state"
)
