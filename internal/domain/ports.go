package domain

import (
	"context"
	"time"
)

type BookingRepository interface {
	// Write paths. CreateBooking re-validates availability inside the
	// same transaction that inserts the row; this is the authoritative
	// double-booking guard (the availability service's read is advisory).
	CreateBooking(ctx context.Context, in CreateBookingInput) (Booking, error)
	UpdateStatus(ctx context.Context, bookingID string, ev Event) (Booking, error)
	SetPaymentSession(ctx context.Context, bookingID, sessionID string) error
	SetPaymentIntent(ctx context.Context, bookingID, paymentIntentID string) error

	// Read paths
	GetBooking(ctx context.Context, bookingID string) (Booking, error)
	GetBookingBySession(ctx context.Context, sessionID string) (Booking, error)
	ListBlocking(ctx context.Context, roomID string, from time.Time) ([]Booking, error)
	ListByRoom(ctx context.Context, roomID string, since time.Time) ([]Booking, error)
	ListByUser(ctx context.Context, userID string) ([]Booking, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]Booking, error)
}

type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (Room, error)
	ListActiveRooms(ctx context.Context, q RoomsQuery) ([]Room, error)
}

// PaymentProvider abstracts the hosted checkout service. The core only
// derives amounts; the provider owns the actual charge.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (CheckoutSession, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Notifier is fire-and-forget; failures never roll back booking state.
type Notifier interface {
	BookingSettled(ctx context.Context, b Booking) error
}

type RoomsQuery struct {
	Guests   int
	MinPrice *float64
	MaxPrice *float64
	Amenity  *string
}

type CheckoutRequest struct {
	AmountCents   int64
	Currency      string
	CustomerEmail string
	ProductName   string
	Description   string
	SuccessURL    string
	CancelURL     string
	BookingID     string
}

// SessionPaymentStatus is the provider's terminal view of a session.
type SessionPaymentStatus string

const (
	SessionPaid    SessionPaymentStatus = "paid"
	SessionUnpaid  SessionPaymentStatus = "unpaid"
	SessionExpired SessionPaymentStatus = "expired"
)

type CheckoutSession struct {
	ID            string
	URL           string
	PaymentStatus SessionPaymentStatus
	PaymentIntent string
}
