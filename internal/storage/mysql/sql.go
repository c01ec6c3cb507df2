package mysql

const upsertRoomSQL = `
INSERT INTO rooms
  (id, name, description, base_price, max_guests, amenities, image_url, is_active)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name        = VALUES(name),
  description = VALUES(description),
  base_price  = VALUES(base_price),
  max_guests  = VALUES(max_guests),
  amenities   = VALUES(amenities),
  image_url   = VALUES(image_url),
  is_active   = VALUES(is_active),
  updated_at  = CURRENT_TIMESTAMP
`

const roomColumns = `id, name, description, base_price, max_guests, amenities, image_url, is_active`

const getRoomSQL = `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`

// Locks the room row for the duration of the creating transaction so
// concurrent creates for the same room serialize.
const getRoomForUpdateSQL = getRoomSQL + ` FOR UPDATE`

const listActiveRoomsSQL = `
SELECT ` + roomColumns + `
FROM rooms
WHERE is_active = 1
ORDER BY base_price ASC, id ASC
`

// Write-time conflict predicate. Confirmed and checked-in bookings
// always block; a pending booking blocks only while its payment window
// is still open (stale ones are reclaimed by the sweep and must not
// soft-lock the room forever). Overlap is the half-open interval test:
// existing.check_in < candidate.check_out AND candidate.check_in < existing.check_out.
const countConflictsSQL = `
SELECT COUNT(*)
FROM bookings
WHERE room_id = ?
  AND check_in_date < ?
  AND check_out_date > ?
  AND (
        booking_status IN ('confirmed', 'checked_in')
     OR (booking_status = 'pending' AND created_at > ?)
  )
`

// Same predicate minus the booking being re-checked; used when a late
// payment tries to confirm a pending booking that already aged out of
// the conflict window.
const countConflictsExclSQL = countConflictsSQL + `  AND id <> ?
`

const bookingColumns = `
  id, room_id, user_id, check_in_date, check_out_date, num_guests,
  guest_name, guest_email, guest_phone, special_requests, total_amount,
  booking_status, payment_status, stripe_session_id,
  stripe_payment_intent_id, created_at`

const insertBookingSQL = `
INSERT INTO bookings
  (id, room_id, user_id, check_in_date, check_out_date, num_guests,
   guest_name, guest_email, guest_phone, special_requests, total_amount,
   booking_status, payment_status, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const getBookingSQL = `SELECT` + bookingColumns + ` FROM bookings WHERE id = ?`

const getBookingForUpdateSQL = getBookingSQL + ` FOR UPDATE`

const getBookingBySessionSQL = `SELECT` + bookingColumns + ` FROM bookings WHERE stripe_session_id = ?`

const setSessionSQL = `UPDATE bookings SET stripe_session_id = ? WHERE id = ?`

const setPaymentIntentSQL = `UPDATE bookings SET stripe_payment_intent_id = ? WHERE id = ?`

const updateStatusSQL = `UPDATE bookings SET booking_status = ?, payment_status = ? WHERE id = ?`

// Bookings that still reserve dates for availability purposes.
const listBlockingSQL = `SELECT` + bookingColumns + `
FROM bookings
WHERE room_id = ?
  AND booking_status IN ('confirmed', 'checked_in')
  AND check_out_date >= ?
ORDER BY check_in_date ASC`

const listByRoomSQL = `SELECT` + bookingColumns + `
FROM bookings
WHERE room_id = ? AND check_out_date >= ?
ORDER BY created_at DESC, id DESC`

const listByUserSQL = `SELECT` + bookingColumns + `
FROM bookings
WHERE user_id = ?
ORDER BY created_at DESC, id DESC`

const listStalePendingSQL = `SELECT` + bookingColumns + `
FROM bookings
WHERE booking_status = 'pending' AND payment_status = 'pending' AND created_at <= ?
ORDER BY created_at ASC
LIMIT ?`
