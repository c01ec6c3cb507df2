package domain

import "time"

type Booking struct {
	ID              string
	RoomID          string
	UserID          *string // nil for guest checkout
	Stay            Stay
	NumGuests       int
	GuestName       string
	GuestEmail      string
	GuestPhone      *string
	SpecialRequests *string
	TotalAmount     float64
	BookingStatus   BookingStatus
	PaymentStatus   PaymentStatus
	SessionID       *string // external checkout session reference
	PaymentIntentID *string
	CreatedAt       time.Time
}

// CreateBookingInput is everything a guest supplies; price, statuses
// and ids are assigned by the repository at commit time.
type CreateBookingInput struct {
	RoomID          string
	UserID          *string
	Stay            Stay
	NumGuests       int
	GuestName       string
	GuestEmail      string
	GuestPhone      *string
	SpecialRequests *string
}
