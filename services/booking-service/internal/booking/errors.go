package booking

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeSlotUnavailable    Code = "SLOT_UNAVAILABLE"
	CodeMaxBookingsReached Code = "MAX_BOOKINGS_REACHED"
	CodeBookingInPast      Code = "BOOKING_IN_PAST"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Store sentinels. Implementations wrap or return these directly.
var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot taken")
	ErrDuplicate = errors.New("duplicate")
)

// Error is a classified domain failure safe to show to callers.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps a code to its response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeBookingInPast:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSlotUnavailable, CodeMaxBookingsReached:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AsError classifies err; anything unclassified becomes INTERNAL_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// CodeOf returns the code of err, or "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}

func validationError(msg string, details map[string]any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func notFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

func internal(op string, err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: fmt.Errorf("%s: %w", op, err)}
}
