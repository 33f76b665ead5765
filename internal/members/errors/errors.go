package errors

import "errors"

var (
	ErrNotFound           = errors.New("member not found")
	ErrInvalidID          = errors.New("invalid member ID format")
	ErrInsufficientCredit = errors.New("insufficient cancellation credits")
	ErrNotAssigned        = errors.New("member is not assigned to class")
)
