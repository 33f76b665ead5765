package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"

	// Reservation engine taxonomy. These map to caller-visible statuses at
	// the request boundary; none of them crash the process.
	CodeNotEligible      = "NOT_ELIGIBLE"
	CodeNoCredit         = "NO_CREDIT"
	CodeAlreadyEnrolled  = "ALREADY_ENROLLED"
	CodeAlreadyWaitlist  = "ALREADY_WAITLISTED"
	CodeNotEnrolled      = "NOT_ENROLLED"
	CodeAlreadyCheckedIn = "ALREADY_CHECKED_IN"
	CodeInvalidCode      = "INVALID_CODE"
	CodeNoSeatsLeft      = "NO_SEATS_LEFT"
	CodeInvalidState     = "INVALID_STATE"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func NotEligible(classType string) *AppError {
	return &AppError{
		Code:       CodeNotEligible,
		Message:    "Membership does not include this class type",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"class_type": classType},
	}
}

func NoCredit() *AppError {
	return &AppError{
		Code:       CodeNoCredit,
		Message:    "No booking credit available",
		HTTPStatus: http.StatusForbidden,
	}
}

func AlreadyEnrolled(classID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyEnrolled,
		Message:    "Member is already enrolled in this class",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"class_id": classID},
	}
}

func AlreadyWaitlisted(classID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyWaitlist,
		Message:    "Member is already on the waitlist for this class",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"class_id": classID},
	}
}

func NotEnrolled(classID string) *AppError {
	return &AppError{
		Code:       CodeNotEnrolled,
		Message:    "Member is not enrolled in this class",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"class_id": classID},
	}
}

func AlreadyCheckedIn(classID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyCheckedIn,
		Message:    "Member already checked in to this class",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"class_id": classID},
	}
}

func InvalidCode(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidCode,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NoSeatsLeft is an internal signal: the engine converts it into a waitlist
// enqueue on the enroll path, so it normally never reaches a caller.
func NoSeatsLeft(classID string) *AppError {
	return &AppError{
		Code:       CodeNoSeatsLeft,
		Message:    "Class has no seats available",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"class_id": classID},
	}
}

// InvalidState marks an invariant violation, e.g. a credit balance that
// would go negative. Should never occur when the engine is serialized.
func InvalidState(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}
