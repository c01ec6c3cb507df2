package domain

import "errors"

var (
	// ErrNotFound: booking or room id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange: check-out not after check-in, or check-in in the past.
	ErrInvalidRange = errors.New("invalid stay range")

	// ErrRoomUnavailable is raised only by the authoritative write-time
	// check in the repository; callers should re-search.
	ErrRoomUnavailable = errors.New("room unavailable for the selected dates")

	// ErrRoomInactive: the room exists but is deactivated.
	ErrRoomInactive = errors.New("room inactive")

	// ErrInvalidTransition: attempted status change not in the
	// transition table. State is left unchanged.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrCapacityExceeded: party size larger than the room allows.
	ErrCapacityExceeded = errors.New("guest count exceeds room capacity")
)
