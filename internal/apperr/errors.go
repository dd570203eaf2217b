package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports bad or missing input. Nothing was written.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// ConflictError means one or more seats are already taken for the journey date.
type ConflictError struct {
	SeatNumbers []string
	Msg         string
	Err         error
}

func (e ConflictError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "seat already booked for this date"
	}
	if len(e.SeatNumbers) > 0 {
		return fmt.Sprintf("%s: %s", msg, strings.Join(e.SeatNumbers, ", "))
	}
	return msg
}

func (e ConflictError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

// AuthorizationError is returned when the acting user does not own the resource.
type AuthorizationError struct {
	Msg string
}

func (e AuthorizationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "not authorized"
}

// IllegalStateError is a rejected booking state transition.
type IllegalStateError struct {
	From string
	To   string
	Msg  string
}

func (e IllegalStateError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s (status %s)", e.Msg, e.From)
	}
	return fmt.Sprintf("cannot move booking from %s to %s", e.From, e.To)
}

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func Internal(msg string, err error) error {
	return InternalError{Msg: msg, Err: err}
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target AuthorizationError
	return errors.As(err, &target)
}

func IsIllegalState(err error) bool {
	var target IllegalStateError
	return errors.As(err, &target)
}

// HTTPStatus maps an error to a response status and a machine readable code.
// Anything outside the taxonomy is treated as internal.
func HTTPStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case IsConflict(err):
		return http.StatusConflict, "seat_conflict"
	case IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case IsAuthorization(err):
		return http.StatusForbidden, "forbidden"
	case IsIllegalState(err):
		return http.StatusConflict, "illegal_state"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// PublicMessage hides the details of internal failures from clients.
func PublicMessage(err error) string {
	status, _ := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
