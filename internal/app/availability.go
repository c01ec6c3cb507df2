package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lahari_hotel/internal/domain"
)

// AvailabilityService answers "is this room free for these dates".
// Its answers are advisory: the repository re-runs the same predicate
// inside the creating transaction, which is the authoritative guard.
type AvailabilityService struct {
	bookings  domain.BookingRepository
	rooms     domain.RoomStore
	cache     domain.Cache
	cacheTTL  time.Duration
	loc       *time.Location
	allowPast bool

	now func() time.Time
}

func NewAvailabilityService(b domain.BookingRepository, r domain.RoomStore, c domain.Cache, ttl time.Duration, loc *time.Location, allowPast bool) *AvailabilityService {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{
		bookings:  b,
		rooms:     r,
		cache:     c,
		cacheTTL:  ttl,
		loc:       loc,
		allowPast: allowPast,
		now:       time.Now,
	}
}

func (s *AvailabilityService) today() time.Time {
	t := s.now().In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// ValidateStay rejects malformed ranges before any I/O happens.
func (s *AvailabilityService) ValidateStay(stay domain.Stay) error {
	if _, err := stay.Nights(); err != nil {
		return err
	}
	if !s.allowPast && stay.CheckIn.Before(s.today()) {
		return fmt.Errorf("%w: check-in %s is in the past",
			domain.ErrInvalidRange, stay.CheckIn.Format("2006-01-02"))
	}
	return nil
}

// IsAvailable scans confirmed and checked-in bookings for the room and
// applies the half-open overlap test. Pending bookings are deliberately
// excluded so an abandoned checkout never locks other searchers out.
func (s *AvailabilityService) IsAvailable(ctx context.Context, roomID string, stay domain.Stay) (bool, error) {
	if err := s.ValidateStay(stay); err != nil {
		return false, err
	}
	rm, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !rm.IsActive {
		return false, nil
	}
	blocking, err := s.bookings.ListBlocking(ctx, roomID, s.today())
	if err != nil {
		return false, err
	}
	for _, b := range blocking {
		if stay.Overlaps(b.Stay) {
			return false, nil
		}
	}
	return true, nil
}

// ListAvailableRooms applies attribute filters to active rooms, then
// the availability predicate when a stay is given. Results are cached
// per stay+filters with a short TTL; stale entries are harmless because
// the repository re-checks at write time.
func (s *AvailabilityService) ListAvailableRooms(ctx context.Context, stay *domain.Stay, q domain.RoomsQuery) ([]domain.Room, error) {
	if stay != nil {
		if err := s.ValidateStay(*stay); err != nil {
			return nil, err
		}
	}

	key := roomsCacheKey(stay, q)
	var cached []domain.Room
	if ok, _ := s.cache.Get(ctx, key, &cached); ok {
		return cached, nil
	}

	rooms, err := s.rooms.ListActiveRooms(ctx, q)
	if err != nil {
		return nil, err
	}
	if stay == nil {
		_ = s.cache.Set(ctx, key, rooms, int(s.cacheTTL.Seconds()))
		return rooms, nil
	}

	out := make([]domain.Room, 0, len(rooms))
	for _, rm := range rooms {
		free, err := s.IsAvailable(ctx, rm.ID, *stay)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if free {
			out = append(out, rm)
		}
	}
	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

func roomsCacheKey(stay *domain.Stay, q domain.RoomsQuery) string {
	span := "any"
	if stay != nil {
		span = stay.String()
	}
	min, max, amen := float64(0), float64(0), ""
	if q.MinPrice != nil {
		min = *q.MinPrice
	}
	if q.MaxPrice != nil {
		max = *q.MaxPrice
	}
	if q.Amenity != nil {
		amen = *q.Amenity
	}
	return fmt.Sprintf("rooms:%s:%d:%g:%g:%s", span, q.Guests, min, max, amen)
}
