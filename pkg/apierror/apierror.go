// Package apierror converts error payloads returned by the platform services
// into Go errors.
//
// The auth, database and storage services all report failures as JSON bodies,
// but each service shapes that body slightly differently. Parse normalizes the
// known shapes into a single Error type so that callers only ever deal with
// one error surface.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

// Error is a failure reported by a platform service.
type Error struct {
	// Status is the HTTP status code of the response carrying the error.
	Status int
	// Code is the service-specific error code, e.g. a PostgREST code like "PGRST116".
	Code string
	// Message is the human readable description of the failure.
	Message string
	// Details and Hint carry additional context when the database service
	// provides them. They are empty for auth and storage errors.
	Details string
	Hint    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Is maps well-known HTTP statuses onto the package sentinels, so callers can
// write errors.Is(err, apierror.ErrNotFound) without inspecting status codes.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// body is the union of the error shapes the services return:
//
//	database: {"code": ..., "message": ..., "details": ..., "hint": ...}
//	auth:     {"error": ..., "error_description": ...} or {"msg": ...}
//	storage:  {"statusCode": ..., "error": ..., "message": ...}
type body struct {
	Code             string          `json:"code"`
	Message          string          `json:"message"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	Msg              string          `json:"msg"`
	ErrorField       json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Parse builds an Error from a non-2xx response body. The raw body is used as
// the message when it is not JSON or matches none of the known shapes.
func Parse(status int, raw []byte) *Error {
	e := &Error{Status: status, Message: http.StatusText(status)}

	var b body
	if err := json.Unmarshal(raw, &b); err != nil {
		if len(raw) > 0 {
			e.Message = string(raw)
		}
		return e
	}

	e.Code = b.Code
	e.Details = b.Details
	e.Hint = b.Hint

	switch {
	case b.Message != "":
		e.Message = b.Message
	case b.ErrorDescription != "":
		e.Message = b.ErrorDescription
	case b.Msg != "":
		e.Message = b.Msg
	case len(b.ErrorField) > 0:
		// The auth service uses "error" for a short error name; storage uses
		// it for the status text. Either way it is a quoted string.
		var s string
		if json.Unmarshal(b.ErrorField, &s) == nil && s != "" {
			e.Message = s
		}
	}

	return e
}
