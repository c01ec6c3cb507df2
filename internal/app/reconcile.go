package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"lahari_hotel/internal/adapters/observability"
	"lahari_hotel/internal/domain"
)

// ReconcileService maps the payment provider's terminal session state
// onto booking lifecycle events. Providers redeliver callbacks, so the
// whole operation is idempotent: reconciling a booking that already
// reflects the session's outcome is a no-op returning current state.
type ReconcileService struct {
	repo     domain.BookingRepository
	payments domain.PaymentProvider
	notifier domain.Notifier
}

func NewReconcileService(repo domain.BookingRepository, payments domain.PaymentProvider, notifier domain.Notifier) *ReconcileService {
	return &ReconcileService{repo: repo, payments: payments, notifier: notifier}
}

func (s *ReconcileService) Reconcile(ctx context.Context, sessionID string) (domain.Booking, error) {
	if sessionID == "" {
		return domain.Booking{}, fmt.Errorf("%w: empty session id", domain.ErrNotFound)
	}

	sess, err := s.payments.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("look up session %s: %w", sessionID, err)
	}
	b, err := s.repo.GetBookingBySession(ctx, sessionID)
	if err != nil {
		return domain.Booking{}, err
	}

	ev := domain.EventPaymentFailed
	if sess.PaymentStatus == domain.SessionPaid {
		ev = domain.EventPaymentSucceeded
	}

	if done, ok := alreadyApplied(b, ev); ok {
		log.Debug().Str("booking_id", b.ID).Str("event", string(ev)).Msg("reconcile duplicate, no-op")
		return done, nil
	}

	updated, err := s.repo.UpdateStatus(ctx, b.ID, ev)
	if errors.Is(err, domain.ErrRoomUnavailable) {
		// The payment landed after the pending window closed and the
		// slot went to someone else. Cancel the booking; the charge has
		// to be refunded out of band.
		return s.cancelReclaimed(ctx, b, sess)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			observability.ObserveBooking(string(ev), "invalid")
		}
		return updated, err
	}
	observability.ObserveBooking(string(ev), "ok")

	if ev == domain.EventPaymentSucceeded && sess.PaymentIntent != "" {
		if err := s.repo.SetPaymentIntent(ctx, updated.ID, sess.PaymentIntent); err != nil {
			log.Warn().Err(err).Str("booking_id", updated.ID).Msg("store payment intent")
		} else {
			pi := sess.PaymentIntent
			updated.PaymentIntentID = &pi
		}
	}

	s.notifySettled(ctx, updated)
	log.Info().
		Str("booking_id", updated.ID).
		Str("session_id", sessionID).
		Str("booking_status", string(updated.BookingStatus)).
		Str("payment_status", string(updated.PaymentStatus)).
		Msg("payment reconciled")
	return updated, nil
}

// cancelReclaimed settles a paid booking whose room was rebooked while
// the payment was in flight. The booking is cancelled and the paid
// session is flagged for a refund.
func (s *ReconcileService) cancelReclaimed(ctx context.Context, b domain.Booking, sess domain.CheckoutSession) (domain.Booking, error) {
	cancelled, err := s.repo.UpdateStatus(ctx, b.ID, domain.EventCancel)
	if err != nil {
		return cancelled, fmt.Errorf("cancel reclaimed booking %s: %w", b.ID, err)
	}
	observability.ObserveBooking(string(domain.EventCancel), "reclaimed")
	log.Warn().
		Str("booking_id", b.ID).
		Str("room_id", b.RoomID).
		Str("session_id", sess.ID).
		Str("payment_intent", sess.PaymentIntent).
		Msg("paid booking lost its slot, cancelled; refund required")
	s.notifySettled(ctx, cancelled)
	return cancelled, fmt.Errorf("booking %s: %w", b.ID, domain.ErrRoomUnavailable)
}

// alreadyApplied reports whether the booking is already in the state
// the event would produce.
func alreadyApplied(b domain.Booking, ev domain.Event) (domain.Booking, bool) {
	switch ev {
	case domain.EventPaymentSucceeded:
		if b.BookingStatus != domain.BookingPending && b.PaymentStatus == domain.PaymentPaid {
			return b, true
		}
	case domain.EventPaymentFailed:
		if b.BookingStatus == domain.BookingCancelled &&
			(b.PaymentStatus == domain.PaymentFailed || b.PaymentStatus == domain.PaymentRefunded) {
			return b, true
		}
	}
	return b, false
}

func (s *ReconcileService) notifySettled(ctx context.Context, b domain.Booking) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.BookingSettled(ctx, b); err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Msg("settle notification failed")
	}
}
