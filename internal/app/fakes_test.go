package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lahari_hotel/internal/domain"
)

// ---- in-memory repo + room store ----

type fakeStore struct {
	mu         sync.Mutex
	rooms      map[string]domain.Room
	bookings   map[string]domain.Booking
	seq        int
	pendingTTL time.Duration

	updateCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:      map[string]domain.Room{},
		bookings:   map[string]domain.Booking{},
		pendingTTL: 30 * time.Minute,
	}
}

func (f *fakeStore) addRoom(r domain.Room) { f.rooms[r.ID] = r }

func (f *fakeStore) addBooking(b domain.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[b.ID] = b
}

func (f *fakeStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListActiveRooms(ctx context.Context, q domain.RoomsQuery) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Room
	for _, r := range f.rooms {
		if !r.IsActive {
			continue
		}
		if q.Guests > 0 && r.MaxGuests < q.Guests {
			continue
		}
		if q.MinPrice != nil && r.BasePrice < *q.MinPrice {
			continue
		}
		if q.MaxPrice != nil && r.BasePrice > *q.MaxPrice {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) CreateBooking(ctx context.Context, in domain.CreateBookingInput) (domain.Booking, error) {
	nights, err := in.Stay.Nights()
	if err != nil {
		return domain.Booking{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rm, ok := f.rooms[in.RoomID]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	if !rm.IsActive {
		return domain.Booking{}, domain.ErrRoomInactive
	}
	now := time.Now().UTC()
	for _, b := range f.bookings {
		if b.RoomID != in.RoomID || !in.Stay.Overlaps(b.Stay) {
			continue
		}
		blocking := b.BookingStatus == domain.BookingConfirmed || b.BookingStatus == domain.BookingCheckedIn ||
			(b.BookingStatus == domain.BookingPending && b.CreatedAt.After(now.Add(-f.pendingTTL)))
		if blocking {
			return domain.Booking{}, domain.ErrRoomUnavailable
		}
	}

	f.seq++
	b := domain.Booking{
		ID:            fmt.Sprintf("bk-%d", f.seq),
		RoomID:        in.RoomID,
		UserID:        in.UserID,
		Stay:          in.Stay,
		NumGuests:     in.NumGuests,
		GuestName:     in.GuestName,
		GuestEmail:    in.GuestEmail,
		TotalAmount:   float64(nights) * rm.BasePrice,
		BookingStatus: domain.BookingPending,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
	}
	f.bookings[b.ID] = b
	return b, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, bookingID string, ev domain.Event) (domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	bs, ps, err := domain.Transition(b.BookingStatus, b.PaymentStatus, ev)
	if err != nil {
		return b, err
	}
	if ev == domain.EventPaymentSucceeded && b.BookingStatus == domain.BookingPending {
		now := time.Now().UTC()
		for _, other := range f.bookings {
			if other.ID == b.ID || other.RoomID != b.RoomID || !b.Stay.Overlaps(other.Stay) {
				continue
			}
			blocking := other.BookingStatus == domain.BookingConfirmed || other.BookingStatus == domain.BookingCheckedIn ||
				(other.BookingStatus == domain.BookingPending && other.CreatedAt.After(now.Add(-f.pendingTTL)))
			if blocking {
				return b, domain.ErrRoomUnavailable
			}
		}
	}
	b.BookingStatus = bs
	b.PaymentStatus = ps
	f.bookings[bookingID] = b
	return b, nil
}

func (f *fakeStore) SetPaymentSession(ctx context.Context, bookingID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.ErrNotFound
	}
	b.SessionID = &sessionID
	f.bookings[bookingID] = b
	return nil
}

func (f *fakeStore) SetPaymentIntent(ctx context.Context, bookingID, paymentIntentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.ErrNotFound
	}
	b.PaymentIntentID = &paymentIntentID
	f.bookings[bookingID] = b
	return nil
}

func (f *fakeStore) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) GetBookingBySession(ctx context.Context, sessionID string) (domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.SessionID != nil && *b.SessionID == sessionID {
			return b, nil
		}
	}
	return domain.Booking{}, domain.ErrNotFound
}

func (f *fakeStore) ListBlocking(ctx context.Context, roomID string, from time.Time) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.RoomID != roomID {
			continue
		}
		if b.BookingStatus != domain.BookingConfirmed && b.BookingStatus != domain.BookingCheckedIn {
			continue
		}
		if b.Stay.CheckOut.Before(from) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) ListByRoom(ctx context.Context, roomID string, since time.Time) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.RoomID == roomID && !b.Stay.CheckOut.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.UserID != nil && *b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.BookingStatus == domain.BookingPending && b.PaymentStatus == domain.PaymentPending &&
			!b.CreatedAt.After(olderThan) {
			out = append(out, b)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) status(t interface{ Fatalf(string, ...any) }, id string) (domain.BookingStatus, domain.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		t.Fatalf("booking %s not in store", id)
	}
	return b.BookingStatus, b.PaymentStatus
}

// ---- cache ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]domain.Room
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok := dst.(*[]domain.Room); ok {
		*d = v
		return true, nil
	}
	return false, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]domain.Room{}
	}
	if rooms, ok := v.([]domain.Room); ok {
		c.store[key] = rooms
	}
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error { return nil }

// ---- payments ----

type fakePayments struct {
	mu       sync.Mutex
	sessions map[string]domain.CheckoutSession
	seq      int
	failNext error
}

func newFakePayments() *fakePayments {
	return &fakePayments{sessions: map[string]domain.CheckoutSession{}}
}

func (p *fakePayments) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return domain.CheckoutSession{}, err
	}
	p.seq++
	s := domain.CheckoutSession{
		ID:            fmt.Sprintf("cs_%d", p.seq),
		URL:           fmt.Sprintf("https://checkout.example/cs_%d", p.seq),
		PaymentStatus: domain.SessionUnpaid,
	}
	p.sessions[s.ID] = s
	return s, nil
}

func (p *fakePayments) GetSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return domain.CheckoutSession{}, fmt.Errorf("fake stripe: %w", domain.ErrNotFound)
	}
	return s, nil
}

func (p *fakePayments) markPaid(sessionID, intent string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sessions[sessionID]
	s.ID = sessionID
	s.PaymentStatus = domain.SessionPaid
	s.PaymentIntent = intent
	p.sessions[sessionID] = s
}

func (p *fakePayments) markExpired(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sessions[sessionID]
	s.ID = sessionID
	s.PaymentStatus = domain.SessionExpired
	p.sessions[sessionID] = s
}

// ---- notifier ----

type fakeNotifier struct {
	mu    sync.Mutex
	calls []domain.Booking
	err   error
}

func (n *fakeNotifier) BookingSettled(ctx context.Context, b domain.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, b)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}
