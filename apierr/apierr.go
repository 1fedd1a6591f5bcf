package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"engagement-rewards/ledger"
	"engagement-rewards/store"
)

// Kind is the failure class surfaced to callers.
type Kind string

const (
	AuthFailure       Kind = "auth_failure"
	MalformedInput    Kind = "malformed_input"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	TransientUpstream Kind = "transient_upstream"
	PolicyRejection   Kind = "policy_rejection"
	Internal          Kind = "internal"
)

type Error struct {
	Kind    Kind
	Status  int
	Err     error
	Details any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the caller-facing text. Upstream and internal failures never echo
// the wrapped error, which may carry store responses; for upstream failures
// Details names the failing step instead.
func (e *Error) Message() string {
	switch e.Kind {
	case TransientUpstream:
		return "upstream service unavailable"
	case Internal:
		return "internal error"
	case Conflict:
		return "concurrent update, please retry"
	default:
		return e.Error()
	}
}

func New(kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

// Unauthorized is a missing identity.
func Unauthorized(msg string) *Error {
	return New(AuthFailure, http.StatusUnauthorized, errors.New(msg))
}

// Forbidden is a signature mismatch.
func Forbidden(msg string) *Error {
	return New(AuthFailure, http.StatusForbidden, errors.New(msg))
}

func BadRequest(err error) *Error {
	return New(MalformedInput, http.StatusBadRequest, err)
}

func Rejected(err error, details any) *Error {
	e := New(PolicyRejection, http.StatusBadRequest, err)
	e.Details = details
	return e
}

// From classifies any error from the engine or its collaborators.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var verr *ledger.ValidationError
	var rejected *store.RejectedError
	switch {
	case errors.As(err, &verr):
		return BadRequest(err)
	case errors.As(err, &rejected):
		return Rejected(err, rejected.UserErrors)
	case errors.Is(err, store.ErrNotFound):
		return New(NotFound, http.StatusNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return New(Conflict, http.StatusInternalServerError, err)
	case errors.Is(err, store.ErrTransientUpstream):
		e := New(TransientUpstream, http.StatusInternalServerError, err)
		var opErr *store.OpError
		if errors.As(err, &opErr) {
			e.Details = map[string]string{"operation": opErr.Op}
		}
		return e
	default:
		return New(Internal, http.StatusInternalServerError, err)
	}
}
