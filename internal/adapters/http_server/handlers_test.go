package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	server "lahari_hotel/internal/adapters/http_server"
	"lahari_hotel/internal/app"
	"lahari_hotel/internal/domain"
)

// memStore is a minimal in-memory BookingRepository + RoomStore for
// handler tests; repository semantics live in internal/app's fakes and
// the mysql integration tests, this one only has to be coherent.
type memStore struct {
	mu       sync.Mutex
	rooms    map[string]domain.Room
	bookings map[string]domain.Booking
	seq      int
}

func newMemStore() *memStore {
	return &memStore{rooms: map[string]domain.Room{}, bookings: map[string]domain.Booking{}}
}

func (m *memStore) GetRoom(_ context.Context, id string) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListActiveRooms(_ context.Context, q domain.RoomsQuery) ([]domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Room
	for _, r := range m.rooms {
		if r.IsActive && (q.Guests == 0 || r.MaxGuests >= q.Guests) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreateBooking(_ context.Context, in domain.CreateBookingInput) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rm, ok := m.rooms[in.RoomID]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	for _, b := range m.bookings {
		if b.RoomID == in.RoomID && in.Stay.Overlaps(b.Stay) &&
			(b.BookingStatus == domain.BookingConfirmed || b.BookingStatus == domain.BookingCheckedIn) {
			return domain.Booking{}, domain.ErrRoomUnavailable
		}
	}
	nights, err := in.Stay.Nights()
	if err != nil {
		return domain.Booking{}, err
	}
	m.seq++
	b := domain.Booking{
		ID: fmt.Sprintf("bk-%d", m.seq), RoomID: in.RoomID, Stay: in.Stay,
		NumGuests: in.NumGuests, GuestName: in.GuestName, GuestEmail: in.GuestEmail,
		TotalAmount:   float64(nights) * rm.BasePrice,
		BookingStatus: domain.BookingPending, PaymentStatus: domain.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}
	m.bookings[b.ID] = b
	return b, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, ev domain.Event) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	bs, ps, err := domain.Transition(b.BookingStatus, b.PaymentStatus, ev)
	if err != nil {
		return b, err
	}
	b.BookingStatus, b.PaymentStatus = bs, ps
	m.bookings[id] = b
	return b, nil
}

func (m *memStore) SetPaymentSession(_ context.Context, id, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.SessionID = &sessionID
	m.bookings[id] = b
	return nil
}

func (m *memStore) SetPaymentIntent(_ context.Context, id, pi string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.PaymentIntentID = &pi
	m.bookings[id] = b
	return nil
}

func (m *memStore) GetBooking(_ context.Context, id string) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (m *memStore) GetBookingBySession(_ context.Context, sessionID string) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.SessionID != nil && *b.SessionID == sessionID {
			return b, nil
		}
	}
	return domain.Booking{}, domain.ErrNotFound
}

func (m *memStore) ListBlocking(_ context.Context, roomID string, from time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.RoomID == roomID && !b.Stay.CheckOut.Before(from) &&
			(b.BookingStatus == domain.BookingConfirmed || b.BookingStatus == domain.BookingCheckedIn) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) ListByRoom(_ context.Context, roomID string, since time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.RoomID == roomID && !b.Stay.CheckOut.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.UserID != nil && *b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]domain.Booking, error) {
	return nil, nil
}

type memCache struct{}

func (memCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (memCache) Set(context.Context, string, any, int) error    { return nil }
func (memCache) Del(context.Context, string) error              { return nil }

type memPayments struct {
	mu   sync.Mutex
	seq  int
	paid map[string]bool
}

func (p *memPayments) CreateCheckoutSession(_ context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("cs_%d", p.seq)
	return domain.CheckoutSession{ID: id, URL: "https://pay.example/" + id, PaymentStatus: domain.SessionUnpaid}, nil
}

func (p *memPayments) GetSession(_ context.Context, id string) (domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := domain.CheckoutSession{ID: id, PaymentStatus: domain.SessionUnpaid}
	if p.paid[id] {
		s.PaymentStatus = domain.SessionPaid
		s.PaymentIntent = "pi_" + id
	}
	return s, nil
}

func newTestServer(t *testing.T, store *memStore) *httptest.Server {
	t.Helper()
	pay := &memPayments{paid: map[string]bool{}}
	avail := app.NewAvailabilityService(store, store, memCache{}, time.Minute, time.UTC, false)
	bookings := app.NewBookingService(store, store, pay, nil, avail, app.CheckoutConfig{
		Currency: "usd", SuccessURL: "https://h.example/ok", CancelURL: "https://h.example/no",
	})
	reconcile := app.NewReconcileService(store, pay, nil)

	srv := server.New()
	srv.MountHandlers(&server.Handlers{Avail: avail, Bookings: bookings, Reconcile: reconcile, Loc: time.UTC})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func seededStore() *memStore {
	store := newMemStore()
	store.rooms["r1"] = domain.Room{ID: "r1", Name: "Deluxe", BasePrice: 100, MaxGuests: 2, IsActive: true}
	return store
}

func day(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format("2006-01-02")
}

func TestCreateBookingEndpoint(t *testing.T) {
	ts := newTestServer(t, seededStore())

	body, _ := json.Marshal(map[string]any{
		"room_id": "r1", "check_in_date": day(7), "check_out_date": day(9),
		"num_guests": 2, "guest_name": "Ana", "guest_email": "ana@example.com",
	})
	res, err := http.Post(ts.URL+"/v1/bookings", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", res.StatusCode)
	}
	var out struct {
		BookingID string `json:"booking_id"`
		URL       string `json:"url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.BookingID == "" || out.URL == "" {
		t.Fatalf("incomplete response: %+v", out)
	}
}

func TestCreateBookingEndpoint_BadDates(t *testing.T) {
	ts := newTestServer(t, seededStore())

	body, _ := json.Marshal(map[string]any{
		"room_id": "r1", "check_in_date": day(9), "check_out_date": day(7),
		"num_guests": 1, "guest_name": "Ana", "guest_email": "ana@example.com",
	})
	res, err := http.Post(ts.URL+"/v1/bookings", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type %q", ct)
	}
}

func TestAvailabilityEndpoint_ConflictStatuses(t *testing.T) {
	store := seededStore()
	ts := newTestServer(t, store)

	// unknown room is a 404
	res, err := http.Get(fmt.Sprintf("%s/v1/rooms/ghost/availability?check_in=%s&check_out=%s", ts.URL, day(7), day(9)))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown room status %d, want 404", res.StatusCode)
	}

	// confirmed booking turns the window false
	in, _ := time.Parse("2006-01-02", day(7))
	stay, _ := domain.NewStay(in, in.AddDate(0, 0, 2), time.UTC)
	store.bookings["bk-c"] = domain.Booking{
		ID: "bk-c", RoomID: "r1", Stay: stay,
		BookingStatus: domain.BookingConfirmed, PaymentStatus: domain.PaymentPaid,
	}
	res, err = http.Get(fmt.Sprintf("%s/v1/rooms/r1/availability?check_in=%s&check_out=%s", ts.URL, day(7), day(9)))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var avail map[string]bool
	_ = json.NewDecoder(res.Body).Decode(&avail)
	res.Body.Close()
	if avail["available"] {
		t.Fatal("confirmed booking must block")
	}

	// overlapping create now conflicts with 409
	body, _ := json.Marshal(map[string]any{
		"room_id": "r1", "check_in_date": day(7), "check_out_date": day(9),
		"num_guests": 1, "guest_name": "Bob", "guest_email": "bob@example.com",
	})
	res, err = http.Post(ts.URL+"/v1/bookings", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("overlap status %d, want 409", res.StatusCode)
	}
}

func TestListRoomBookingsEndpoint_SinceFilter(t *testing.T) {
	store := seededStore()
	ts := newTestServer(t, store)

	past, _ := time.Parse("2006-01-02", day(-30))
	old, _ := domain.NewStay(past, past.AddDate(0, 0, 2), time.UTC)
	store.bookings["bk-old"] = domain.Booking{
		ID: "bk-old", RoomID: "r1", Stay: old,
		BookingStatus: domain.BookingCheckedOut, PaymentStatus: domain.PaymentPaid,
	}
	in, _ := time.Parse("2006-01-02", day(7))
	cur, _ := domain.NewStay(in, in.AddDate(0, 0, 2), time.UTC)
	store.bookings["bk-cur"] = domain.Booking{
		ID: "bk-cur", RoomID: "r1", Stay: cur,
		BookingStatus: domain.BookingConfirmed, PaymentStatus: domain.PaymentPaid,
	}

	res, err := http.Get(fmt.Sprintf("%s/v1/rooms/r1/bookings?since=%s", ts.URL, day(0)))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", res.StatusCode)
	}
	var out []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "bk-cur" {
		t.Fatalf("listing = %+v, want only bk-cur", out)
	}
}

func TestTransitionEndpoints_InvalidIs409(t *testing.T) {
	store := seededStore()
	ts := newTestServer(t, store)

	in, _ := time.Parse("2006-01-02", day(7))
	stay, _ := domain.NewStay(in, in.AddDate(0, 0, 1), time.UTC)
	store.bookings["bk-done"] = domain.Booking{
		ID: "bk-done", RoomID: "r1", Stay: stay,
		BookingStatus: domain.BookingCheckedOut, PaymentStatus: domain.PaymentPaid,
	}

	res, err := http.Post(ts.URL+"/v1/bookings/bk-done/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("cancel checked_out status %d, want 409", res.StatusCode)
	}

	res, err = http.Post(ts.URL+"/v1/bookings/missing/check-in", "application/json", nil)
	if err != nil {
		t.Fatalf("POST check-in: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing booking status %d, want 404", res.StatusCode)
	}
}

func TestVerifyEndpoint_PaidConfirms(t *testing.T) {
	store := seededStore()
	pay := &memPayments{paid: map[string]bool{"cs_paid": true}}
	avail := app.NewAvailabilityService(store, store, memCache{}, time.Minute, time.UTC, false)
	bookings := app.NewBookingService(store, store, pay, nil, avail, app.CheckoutConfig{Currency: "usd"})
	reconcile := app.NewReconcileService(store, pay, nil)

	srv := server.New()
	srv.MountHandlers(&server.Handlers{Avail: avail, Bookings: bookings, Reconcile: reconcile, Loc: time.UTC})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	in, _ := time.Parse("2006-01-02", day(7))
	stay, _ := domain.NewStay(in, in.AddDate(0, 0, 1), time.UTC)
	sid := "cs_paid"
	store.bookings["bk-1"] = domain.Booking{
		ID: "bk-1", RoomID: "r1", Stay: stay, SessionID: &sid,
		BookingStatus: domain.BookingPending, PaymentStatus: domain.PaymentPending,
	}

	body, _ := json.Marshal(map[string]string{"session_id": sid})
	res, err := http.Post(ts.URL+"/v1/payments/verify", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST verify: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d", res.StatusCode)
	}
	var out struct {
		PaymentStatus string `json:"payment_status"`
		Booking       struct {
			BookingStatus string `json:"booking_status"`
		} `json:"booking"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Booking.BookingStatus != "confirmed" || out.PaymentStatus != "paid" {
		t.Fatalf("verify result: %+v", out)
	}
}
