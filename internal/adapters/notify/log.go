// Package notify delivers guest-facing booking notifications. The log
// notifier is the default sink; a mail or webhook sender satisfies the
// same port when one is configured.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"lahari_hotel/internal/domain"
)

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) BookingSettled(_ context.Context, b domain.Booking) error {
	log.Info().
		Str("booking_id", b.ID).
		Str("room_id", b.RoomID).
		Str("guest_email", b.GuestEmail).
		Str("booking_status", string(b.BookingStatus)).
		Str("payment_status", string(b.PaymentStatus)).
		Str("stay", b.Stay.String()).
		Msg("booking settled")
	return nil
}
