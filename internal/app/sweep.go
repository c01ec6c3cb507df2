package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lahari_hotel/internal/adapters/observability"
	"lahari_hotel/internal/domain"
)

// ExpiryService reclaims slots held by abandoned checkouts. A pending
// booking older than pendingTTL is resolved: if its session turns out
// paid after all, it is confirmed; otherwise it is expired through the
// same payment-failed transition an explicit failure would use. The
// sweep is best-effort and safe to run from several workers at once:
// UpdateStatus linearizes, so a booking expires exactly once and the
// losing sweeper's attempt surfaces as an ignorable invalid transition.
type ExpiryService struct {
	repo       domain.BookingRepository
	payments   domain.PaymentProvider
	notifier   domain.Notifier
	pendingTTL time.Duration
	workers    int64
	batchSize  int

	now func() time.Time
}

func NewExpiryService(repo domain.BookingRepository, payments domain.PaymentProvider, notifier domain.Notifier, pendingTTL time.Duration, workers int) *ExpiryService {
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Minute
	}
	if workers <= 0 {
		workers = 4
	}
	return &ExpiryService{
		repo:       repo,
		payments:   payments,
		notifier:   notifier,
		pendingTTL: pendingTTL,
		workers:    int64(workers),
		batchSize:  100,
		now:        time.Now,
	}
}

// Sweep processes one batch of stale pending bookings and returns how
// many were settled (confirmed or expired).
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.pendingTTL)
	stale, err := s.repo.ListStalePending(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	sem := semaphore.NewWeighted(s.workers)
	var wg sync.WaitGroup
	var settled int64

	for _, b := range stale {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(b domain.Booking) {
			defer wg.Done()
			defer sem.Release(1)
			if s.settle(ctx, b) {
				atomic.AddInt64(&settled, 1)
			}
		}(b)
	}
	wg.Wait()
	return int(atomic.LoadInt64(&settled)), ctx.Err()
}

func (s *ExpiryService) settle(ctx context.Context, b domain.Booking) bool {
	ev := domain.EventPaymentFailed

	// A guest may have paid right before abandonment was assumed; ask
	// the provider before dropping the booking.
	if b.SessionID != nil {
		sess, err := s.payments.GetSession(ctx, *b.SessionID)
		switch {
		case err == nil && sess.PaymentStatus == domain.SessionPaid:
			ev = domain.EventPaymentSucceeded
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			// transient provider problem, try again next sweep
			log.Warn().Err(err).Str("booking_id", b.ID).Msg("sweep: session lookup failed")
			return false
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, b.ID, ev)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// another sweeper or a late callback got here first
			log.Debug().Str("booking_id", b.ID).Msg("sweep: already settled")
			return false
		}
		if errors.Is(err, domain.ErrRoomUnavailable) {
			// the slot was rebooked while this booking sat stale; the
			// late payment cannot confirm it anymore
			return s.cancelReclaimed(ctx, b)
		}
		log.Error().Err(err).Str("booking_id", b.ID).Msg("sweep: update failed")
		return false
	}
	if ev == domain.EventPaymentFailed {
		observability.SweepExpired.Inc()
	}
	log.Info().
		Str("booking_id", updated.ID).
		Str("booking_status", string(updated.BookingStatus)).
		Msg("sweep: stale pending booking settled")

	if s.notifier != nil {
		if err := s.notifier.BookingSettled(ctx, updated); err != nil {
			log.Warn().Err(err).Str("booking_id", updated.ID).Msg("settle notification failed")
		}
	}
	return true
}

// cancelReclaimed handles the race where a stale pending booking was
// paid late but its room already went to someone else. Cancelling is
// the only consistent outcome; the charge needs a manual refund.
func (s *ExpiryService) cancelReclaimed(ctx context.Context, b domain.Booking) bool {
	cancelled, err := s.repo.UpdateStatus(ctx, b.ID, domain.EventCancel)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Debug().Str("booking_id", b.ID).Msg("sweep: already settled")
			return false
		}
		log.Error().Err(err).Str("booking_id", b.ID).Msg("sweep: cancel reclaimed failed")
		return false
	}
	observability.ObserveBooking(string(domain.EventCancel), "reclaimed")
	log.Warn().
		Str("booking_id", b.ID).
		Str("room_id", b.RoomID).
		Str("session_id", valOr(b.SessionID)).
		Msg("sweep: paid booking lost its slot, cancelled; refund required")
	if s.notifier != nil {
		if err := s.notifier.BookingSettled(ctx, cancelled); err != nil {
			log.Warn().Err(err).Str("booking_id", b.ID).Msg("settle notification failed")
		}
	}
	return true
}

func valOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
