package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/certifica/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrUnavailable = errors.New("service unavailable")
)

// Error carries the operation that failed, the kind used for status mapping
// and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind wraps err with an operation and a kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap wraps err with an operation; the status is derived from err itself.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// statusFor maps an error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrInvalidSubmission):
		return http.StatusUnprocessableEntity, "invalid_submission"
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, service.ErrTaxonomyUnavailable),
		errors.Is(err, service.ErrDashboardUnavailable),
		errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, service.ErrIncompleteSubmission):
		return http.StatusInternalServerError, "incomplete_submission"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
