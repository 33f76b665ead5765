package errors

import "errors"

var (
	ErrNotFound = errors.New("class not found")

	ErrInvalidID = errors.New("invalid class ID format")

	// ErrNoSeats is returned by the seat-consuming repository updates when
	// the conditional filter does not match: either the class is full or the
	// member is already enrolled. The engine re-reads the record under its
	// lock to tell the two apart.
	ErrNoSeats = errors.New("no seat available for conditional enrollment")

	ErrNotEnrolled = errors.New("member does not hold a seat in this class")

	ErrAlreadyQueued = errors.New("member already present in class lists")

	ErrWaitlistChanged = errors.New("waitlist head changed during promotion")
)
