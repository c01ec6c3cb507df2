package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"lahari_hotel/internal/adapters/observability"
	"lahari_hotel/internal/domain"
)

// CheckoutConfig carries the payment-session parameters of the deployment.
type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// BookingService orchestrates the booking flow: validate, advisory
// availability read, transactional create, checkout session. All status
// mutation goes through the repository's UpdateStatus, never ad hoc
// field writes.
type BookingService struct {
	repo     domain.BookingRepository
	rooms    domain.RoomStore
	payments domain.PaymentProvider
	notifier domain.Notifier
	avail    *AvailabilityService
	checkout CheckoutConfig
}

func NewBookingService(repo domain.BookingRepository, rooms domain.RoomStore, payments domain.PaymentProvider, notifier domain.Notifier, avail *AvailabilityService, checkout CheckoutConfig) *BookingService {
	if checkout.Currency == "" {
		checkout.Currency = "usd"
	}
	return &BookingService{
		repo:     repo,
		rooms:    rooms,
		payments: payments,
		notifier: notifier,
		avail:    avail,
		checkout: checkout,
	}
}

// CreateBooking returns the pending booking and the hosted checkout URL
// the guest must be redirected to.
func (s *BookingService) CreateBooking(ctx context.Context, in domain.CreateBookingInput) (domain.Booking, string, error) {
	if in.GuestName == "" || in.GuestEmail == "" {
		return domain.Booking{}, "", fmt.Errorf("%w: guest name and email are required", domain.ErrInvalidRange)
	}
	if in.NumGuests < 1 {
		return domain.Booking{}, "", fmt.Errorf("%w: at least one guest", domain.ErrCapacityExceeded)
	}
	if err := s.avail.ValidateStay(in.Stay); err != nil {
		return domain.Booking{}, "", err
	}

	rm, err := s.rooms.GetRoom(ctx, in.RoomID)
	if err != nil {
		return domain.Booking{}, "", err
	}
	if !rm.IsActive {
		return domain.Booking{}, "", domain.ErrRoomInactive
	}
	if in.NumGuests > rm.MaxGuests {
		return domain.Booking{}, "", fmt.Errorf("%w: %d guests, room sleeps %d",
			domain.ErrCapacityExceeded, in.NumGuests, rm.MaxGuests)
	}

	// Optimistic read; the repository repeats this predicate inside the
	// inserting transaction, which is what actually prevents the race.
	free, err := s.avail.IsAvailable(ctx, in.RoomID, in.Stay)
	if err != nil {
		return domain.Booking{}, "", err
	}
	if !free {
		observability.ObserveBooking("create", "conflict")
		return domain.Booking{}, "", domain.ErrRoomUnavailable
	}

	b, err := s.repo.CreateBooking(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrRoomUnavailable) {
			observability.ObserveBooking("create", "conflict")
		} else {
			observability.ObserveBooking("create", "error")
		}
		return domain.Booking{}, "", err
	}
	observability.ObserveBooking("create", "ok")

	nights, _ := b.Stay.Nights()
	sess, err := s.payments.CreateCheckoutSession(ctx, domain.CheckoutRequest{
		AmountCents:   int64(math.Round(b.TotalAmount * 100)),
		Currency:      s.checkout.Currency,
		CustomerEmail: b.GuestEmail,
		ProductName:   fmt.Sprintf("%s - %d night%s", rm.Name, nights, plural(nights)),
		Description:   fmt.Sprintf("%s for %d guest%s", b.Stay, b.NumGuests, plural(b.NumGuests)),
		SuccessURL:    s.checkout.SuccessURL,
		CancelURL:     s.checkout.CancelURL,
		BookingID:     b.ID,
	})
	if err != nil {
		// Release the slot instead of leaving a dangling pending row
		// the sweep would have to clean up later.
		if _, uerr := s.repo.UpdateStatus(ctx, b.ID, domain.EventPaymentFailed); uerr != nil {
			log.Error().Err(uerr).Str("booking_id", b.ID).Msg("release after checkout failure")
		}
		return domain.Booking{}, "", fmt.Errorf("create checkout session: %w", err)
	}
	if err := s.repo.SetPaymentSession(ctx, b.ID, sess.ID); err != nil {
		return domain.Booking{}, "", err
	}
	sid := sess.ID
	b.SessionID = &sid

	log.Info().
		Str("booking_id", b.ID).
		Str("room_id", b.RoomID).
		Str("stay", b.Stay.String()).
		Float64("total", b.TotalAmount).
		Msg("booking created")
	return b, sess.URL, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	return s.repo.GetBooking(ctx, bookingID)
}

func (s *BookingService) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *BookingService) ListByRoom(ctx context.Context, roomID string, since time.Time) ([]domain.Booking, error) {
	return s.repo.ListByRoom(ctx, roomID, since)
}

// Cancel handles both guest self-service and operator cancellation. A
// paid booking comes out refunded, per the transition table.
func (s *BookingService) Cancel(ctx context.Context, bookingID string) (domain.Booking, error) {
	b, err := s.applyEvent(ctx, bookingID, domain.EventCancel)
	if err != nil {
		return b, err
	}
	s.notifySettled(ctx, b)
	return b, nil
}

func (s *BookingService) CheckIn(ctx context.Context, bookingID string) (domain.Booking, error) {
	return s.applyEvent(ctx, bookingID, domain.EventCheckIn)
}

func (s *BookingService) CheckOut(ctx context.Context, bookingID string) (domain.Booking, error) {
	return s.applyEvent(ctx, bookingID, domain.EventCheckOut)
}

func (s *BookingService) applyEvent(ctx context.Context, bookingID string, ev domain.Event) (domain.Booking, error) {
	b, err := s.repo.UpdateStatus(ctx, bookingID, ev)
	switch {
	case err == nil:
		observability.ObserveBooking(string(ev), "ok")
	case errors.Is(err, domain.ErrInvalidTransition):
		observability.ObserveBooking(string(ev), "invalid")
	default:
		observability.ObserveBooking(string(ev), "error")
	}
	return b, err
}

// notifySettled is fire-and-forget: delivery problems are logged and
// never influence booking state.
func (s *BookingService) notifySettled(ctx context.Context, b domain.Booking) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.BookingSettled(ctx, b); err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Msg("settle notification failed")
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
