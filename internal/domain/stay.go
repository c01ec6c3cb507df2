package domain

import (
	"fmt"
	"math"
	"time"
)

const dayFormat = "2006-01-02"

// Stay is a half-open interval [CheckIn, CheckOut) at day granularity.
// Time-of-day is ignored: both ends are normalized to midnight in a
// single canonical location before any comparison.
type Stay struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewStay normalizes both dates to midnight in loc and validates that
// check-out is strictly after check-in.
func NewStay(checkIn, checkOut time.Time, loc *time.Location) (Stay, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := Stay{CheckIn: truncateDay(checkIn, loc), CheckOut: truncateDay(checkOut, loc)}
	if _, err := s.Nights(); err != nil {
		return Stay{}, err
	}
	return s, nil
}

func truncateDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Nights returns the whole-day difference between check-out and
// check-in, rounding fractional differences up. A result of zero or
// less is ErrInvalidRange.
func (s Stay) Nights() (int, error) {
	n := int(math.Ceil(s.CheckOut.Sub(s.CheckIn).Hours() / 24))
	if n <= 0 {
		return 0, fmt.Errorf("%w: check-out %s must be after check-in %s",
			ErrInvalidRange, s.CheckOut.Format(dayFormat), s.CheckIn.Format(dayFormat))
	}
	return n, nil
}

// Overlaps reports whether the two half-open intervals intersect.
// A check-out on the same day another stay checks in does not overlap,
// so back-to-back stays are allowed.
func (s Stay) Overlaps(o Stay) bool {
	return s.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(s.CheckOut)
}

func (s Stay) String() string {
	return s.CheckIn.Format(dayFormat) + "/" + s.CheckOut.Format(dayFormat)
}
