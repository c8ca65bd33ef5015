package status

import "errors"

var (
	// Terminal business failures. The reconciler must never retry these.
	ErrTicketNotFound = errors.New("checkin: ticket not found")
	ErrTicketInvalid  = errors.New("checkin: ticket revoked or refunded")
	ErrEventClosed    = errors.New("checkin: event is not open for check-in")

	// Transient infrastructure failure. Safe to retry with backoff.
	ErrUnavailable = errors.New("checkin: processor unavailable")

	// ErrConflict is returned by a check-in store when the unique index on
	// (event_id, ticket_id) rejects an insert. The processor resolves it by
	// re-reading the winning record; it never reaches callers.
	ErrConflict = errors.New("checkin: record already exists for ticket")
)

// Wire error codes carried in the check-in response body.
const (
	CodeTicketNotFound = "ticket_not_found"
	CodeTicketInvalid  = "ticket_invalid"
	CodeEventClosed    = "event_closed"
	CodeUnavailable    = "unavailable"
)

// IsTerminal reports whether err is a business failure that no amount of
// retrying can fix.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrTicketInvalid) ||
		errors.Is(err, ErrEventClosed)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// FromCode maps a wire error code back to its sentinel error.
func FromCode(code string) error {
	switch code {
	case CodeTicketNotFound:
		return ErrTicketNotFound
	case CodeTicketInvalid:
		return ErrTicketInvalid
	case CodeEventClosed:
		return ErrEventClosed
	default:
		return ErrUnavailable
	}
}

// ToCode maps a processor error to its wire code. Unknown errors are reported
// as unavailable so clients treat them as retryable.
func ToCode(err error) string {
	switch {
	case errors.Is(err, ErrTicketNotFound):
		return CodeTicketNotFound
	case errors.Is(err, ErrTicketInvalid):
		return CodeTicketInvalid
	case errors.Is(err, ErrEventClosed):
		return CodeEventClosed
	default:
		return CodeUnavailable
	}
}
