package domain

import "fmt"

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingCheckedIn  BookingStatus = "checked_in"
	BookingCheckedOut BookingStatus = "checked_out"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Event drives the booking lifecycle. Only Transition may derive new
// status values from one; no other code writes the two status fields.
type Event string

const (
	EventPaymentSucceeded Event = "payment_succeeded"
	EventPaymentFailed    Event = "payment_failed"
	EventCancel           Event = "cancel"
	EventCheckIn          Event = "check_in"
	EventCheckOut         Event = "check_out"
)

// BlockingStatuses are the booking states that reserve a room's dates.
// Pending bookings deliberately do not block other searchers; their
// slot is only defended by the write-time re-check and reclaimed by
// the expiry sweep.
var BlockingStatuses = []BookingStatus{BookingConfirmed, BookingCheckedIn}

// validEvents lists which events each booking status accepts.
var validEvents = map[BookingStatus][]Event{
	BookingPending:    {EventPaymentSucceeded, EventPaymentFailed, EventCancel},
	BookingConfirmed:  {EventCancel, EventCheckIn},
	BookingCheckedIn:  {EventCheckOut},
	BookingCancelled:  {},
	BookingCheckedOut: {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := validEvents[s]
	return ok
}

// IsTerminal reports whether no further events apply.
func (s BookingStatus) IsTerminal() bool {
	evs, ok := validEvents[s]
	return !ok || len(evs) == 0
}

func (s BookingStatus) accepts(ev Event) bool {
	for _, e := range validEvents[s] {
		if e == ev {
			return true
		}
	}
	return false
}

// Transition applies ev to the coupled (booking, payment) pair and
// returns the resulting pair. Illegal events return ErrInvalidTransition
// and the input pair untouched.
func Transition(bs BookingStatus, ps PaymentStatus, ev Event) (BookingStatus, PaymentStatus, error) {
	if !bs.accepts(ev) {
		return bs, ps, fmt.Errorf("%w: %s on %s booking", ErrInvalidTransition, ev, bs)
	}
	switch ev {
	case EventPaymentSucceeded:
		return BookingConfirmed, PaymentPaid, nil
	case EventPaymentFailed:
		return BookingCancelled, PaymentFailed, nil
	case EventCancel:
		if ps == PaymentPaid {
			return BookingCancelled, PaymentRefunded, nil
		}
		return BookingCancelled, ps, nil
	case EventCheckIn:
		return BookingCheckedIn, ps, nil
	case EventCheckOut:
		return BookingCheckedOut, ps, nil
	}
	return bs, ps, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
}
