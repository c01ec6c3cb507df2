package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lahari_hotel/internal/domain"
)

const dayFormat = "2006-01-02"

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Repo implements domain.BookingRepository and domain.RoomStore on
// MySQL. pendingTTL bounds how long an unpaid pending booking keeps
// blocking the write-time conflict check. loc is the canonical booking
// time zone: DATE columns scan as midnight in the driver's zone, so
// every stay read back is rebuilt at midnight in loc before any
// overlap comparison touches it.
type Repo struct {
	db         *sql.DB
	pendingTTL time.Duration
	loc        *time.Location
}

func New(db *sql.DB, pendingTTL time.Duration, loc *time.Location) *Repo {
	if pendingTTL <= 0 {
		pendingTTL = 30 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Repo{db: db, pendingTTL: pendingTTL, loc: loc}
}

// dateIn rebuilds a scanned DATE value at midnight in loc, keeping the
// calendar day the driver parsed and dropping its zone.
func dateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ---- rooms ----

func (r *Repo) UpsertRoom(ctx context.Context, rm domain.Room) error {
	amen, _ := json.Marshal(rm.Amenities)
	_, err := r.db.ExecContext(ctx, upsertRoomSQL,
		rm.ID,
		rm.Name,
		valStr(rm.Description),
		rm.BasePrice,
		rm.MaxGuests,
		string(amen),
		valStr(rm.ImageURL),
		rm.IsActive,
	)
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRoom(row rowScanner) (domain.Room, error) {
	var rm domain.Room
	var desc, imageURL sql.NullString
	var amenitiesJSON []byte
	if err := row.Scan(
		&rm.ID,
		&rm.Name,
		&desc,
		&rm.BasePrice,
		&rm.MaxGuests,
		&amenitiesJSON,
		&imageURL,
		&rm.IsActive,
	); err != nil {
		return domain.Room{}, err
	}
	rm.Description = nullToPtr(desc)
	rm.ImageURL = nullToPtr(imageURL)
	_ = json.Unmarshal(amenitiesJSON, &rm.Amenities)
	return rm, nil
}

func (r *Repo) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx, getRoomSQL, roomID))
	if err == sql.ErrNoRows {
		return domain.Room{}, domain.ErrNotFound
	}
	return rm, err
}

func (r *Repo) ListActiveRooms(ctx context.Context, q domain.RoomsQuery) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, listActiveRoomsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		if matchesQuery(rm, q) {
			out = append(out, rm)
		}
	}
	return out, rows.Err()
}

// Attribute filters applied in-process: the rooms table is tiny and the
// amenity match is substring-based, same as the original search.
func matchesQuery(rm domain.Room, q domain.RoomsQuery) bool {
	if q.Guests > 0 && rm.MaxGuests < q.Guests {
		return false
	}
	if q.MinPrice != nil && rm.BasePrice < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && rm.BasePrice > *q.MaxPrice {
		return false
	}
	if q.Amenity != nil && *q.Amenity != "" {
		found := false
		for _, a := range rm.Amenities {
			if containsFold(a, *q.Amenity) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ---- bookings ----

// CreateBooking is the authoritative availability guard. It locks the
// room row, re-runs the conflict predicate inside the same transaction
// and only then inserts, so of two racing requests exactly one commits;
// the other gets ErrRoomUnavailable.
func (r *Repo) CreateBooking(ctx context.Context, in domain.CreateBookingInput) (domain.Booking, error) {
	nights, err := in.Stay.Nights()
	if err != nil {
		return domain.Booking{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rm, err := scanRoom(tx.QueryRowContext(ctx, getRoomForUpdateSQL, in.RoomID))
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	if !rm.IsActive {
		return domain.Booking{}, domain.ErrRoomInactive
	}

	now := time.Now().UTC()
	var conflicts int
	if err := tx.QueryRowContext(ctx, countConflictsSQL,
		in.RoomID,
		in.Stay.CheckOut.Format(dayFormat),
		in.Stay.CheckIn.Format(dayFormat),
		now.Add(-r.pendingTTL),
	).Scan(&conflicts); err != nil {
		return domain.Booking{}, fmt.Errorf("conflict check: %w", err)
	}
	if conflicts > 0 {
		return domain.Booking{}, domain.ErrRoomUnavailable
	}

	b := domain.Booking{
		ID:              uuid.NewString(),
		RoomID:          in.RoomID,
		UserID:          in.UserID,
		Stay:            in.Stay,
		NumGuests:       in.NumGuests,
		GuestName:       in.GuestName,
		GuestEmail:      in.GuestEmail,
		GuestPhone:      in.GuestPhone,
		SpecialRequests: in.SpecialRequests,
		TotalAmount:     float64(nights) * rm.BasePrice,
		BookingStatus:   domain.BookingPending,
		PaymentStatus:   domain.PaymentPending,
		CreatedAt:       now,
	}
	if _, err := tx.ExecContext(ctx, insertBookingSQL,
		b.ID,
		b.RoomID,
		valStr(b.UserID),
		b.Stay.CheckIn.Format(dayFormat),
		b.Stay.CheckOut.Format(dayFormat),
		b.NumGuests,
		b.GuestName,
		b.GuestEmail,
		valStr(b.GuestPhone),
		valStr(b.SpecialRequests),
		b.TotalAmount,
		string(b.BookingStatus),
		string(b.PaymentStatus),
		b.CreatedAt,
	); err != nil {
		return domain.Booking{}, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Booking{}, fmt.Errorf("commit booking: %w", err)
	}
	return b, nil
}

// UpdateStatus reads the booking under lock, applies the state machine
// and persists the result, so concurrent callers for the same booking
// linearize: the loser sees the winner's state and either no-ops at the
// service layer or fails ErrInvalidTransition here.
func (r *Repo) UpdateStatus(ctx context.Context, bookingID string, ev domain.Event) (domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b, err := r.scanBooking(tx.QueryRowContext(ctx, getBookingForUpdateSQL, bookingID))
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}

	bs, ps, err := domain.Transition(b.BookingStatus, b.PaymentStatus, ev)
	if err != nil {
		return b, err
	}

	// A pending booking past the pending window stopped blocking other
	// creates, so a late payment may no longer have the slot. Lock the
	// room like CreateBooking does and re-run the conflict predicate
	// before letting the payment confirm it.
	if ev == domain.EventPaymentSucceeded && b.BookingStatus == domain.BookingPending {
		if _, err := scanRoom(tx.QueryRowContext(ctx, getRoomForUpdateSQL, b.RoomID)); err != nil {
			return domain.Booking{}, fmt.Errorf("lock room: %w", err)
		}
		var conflicts int
		if err := tx.QueryRowContext(ctx, countConflictsExclSQL,
			b.RoomID,
			b.Stay.CheckOut.Format(dayFormat),
			b.Stay.CheckIn.Format(dayFormat),
			time.Now().UTC().Add(-r.pendingTTL),
			b.ID,
		).Scan(&conflicts); err != nil {
			return domain.Booking{}, fmt.Errorf("conflict recheck: %w", err)
		}
		if conflicts > 0 {
			return b, domain.ErrRoomUnavailable
		}
	}

	if _, err := tx.ExecContext(ctx, updateStatusSQL, string(bs), string(ps), bookingID); err != nil {
		return domain.Booking{}, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Booking{}, fmt.Errorf("commit status: %w", err)
	}
	b.BookingStatus = bs
	b.PaymentStatus = ps
	return b, nil
}

func (r *Repo) SetPaymentSession(ctx context.Context, bookingID, sessionID string) error {
	res, err := r.db.ExecContext(ctx, setSessionSQL, sessionID, bookingID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Repo) SetPaymentIntent(ctx context.Context, bookingID, paymentIntentID string) error {
	res, err := r.db.ExecContext(ctx, setPaymentIntentSQL, paymentIntentID, bookingID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) scanBooking(row rowScanner) (domain.Booking, error) {
	var b domain.Booking
	var userID, guestPhone, special, sessionID, intentID sql.NullString
	var bs, ps string
	if err := row.Scan(
		&b.ID,
		&b.RoomID,
		&userID,
		&b.Stay.CheckIn,
		&b.Stay.CheckOut,
		&b.NumGuests,
		&b.GuestName,
		&b.GuestEmail,
		&guestPhone,
		&special,
		&b.TotalAmount,
		&bs,
		&ps,
		&sessionID,
		&intentID,
		&b.CreatedAt,
	); err != nil {
		return domain.Booking{}, err
	}
	b.Stay.CheckIn = dateIn(b.Stay.CheckIn, r.loc)
	b.Stay.CheckOut = dateIn(b.Stay.CheckOut, r.loc)
	b.UserID = nullToPtr(userID)
	b.GuestPhone = nullToPtr(guestPhone)
	b.SpecialRequests = nullToPtr(special)
	b.SessionID = nullToPtr(sessionID)
	b.PaymentIntentID = nullToPtr(intentID)
	b.BookingStatus = domain.BookingStatus(bs)
	b.PaymentStatus = domain.PaymentStatus(ps)
	return b, nil
}

func (r *Repo) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	b, err := r.scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, bookingID))
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) GetBookingBySession(ctx context.Context, sessionID string) (domain.Booking, error) {
	b, err := r.scanBooking(r.db.QueryRowContext(ctx, getBookingBySessionSQL, sessionID))
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) ListBlocking(ctx context.Context, roomID string, from time.Time) ([]domain.Booking, error) {
	return r.queryBookings(ctx, listBlockingSQL, roomID, from.Format(dayFormat))
}

func (r *Repo) ListByRoom(ctx context.Context, roomID string, since time.Time) ([]domain.Booking, error) {
	return r.queryBookings(ctx, listByRoomSQL, roomID, since.Format(dayFormat))
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	return r.queryBookings(ctx, listByUserSQL, userID)
}

func (r *Repo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryBookings(ctx, listStalePendingSQL, olderThan, limit)
}

func (r *Repo) queryBookings(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := r.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
