package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/skarvik/accountd/pkg/api/store"
	"github.com/skarvik/accountd/pkg/session"
)

// errKind identifies a client-facing error. Each kind carries a fixed
// HTTP status; anything that is not a clientError is an internal fault
// and collapses to a generic 500 so storage and crypto details never
// reach the client.
type errKind string

const (
	errPathNotFound     errKind = "path_not_found"
	errNotFound         errKind = "not_found"
	errMethodNotAllowed errKind = "method_not_allowed"
	errBadRequest       errKind = "bad_request"
	errInvalidJSON      errKind = "invalid_json"
	errBadPassword      errKind = "bad_password"
	errUnauthorized     errKind = "unauthorized"
	errForbidden        errKind = "forbidden"
	errBadLogin         errKind = "bad_login"
	errAccountLocked    errKind = "account_locked"
	errUsernameTaken    errKind = "username_taken"
	errRateLimited      errKind = "rate_limited"
	errInternal         errKind = "internal_error"
)

var errKindStatus = map[errKind]int{
	errPathNotFound:     http.StatusNotFound,
	errNotFound:         http.StatusNotFound,
	errMethodNotAllowed: http.StatusMethodNotAllowed,
	errBadRequest:       http.StatusBadRequest,
	errInvalidJSON:      http.StatusBadRequest,
	errBadPassword:      http.StatusBadRequest,
	errUnauthorized:     http.StatusUnauthorized,
	errForbidden:        http.StatusForbidden,
	errBadLogin:         http.StatusUnauthorized,
	errAccountLocked:    http.StatusForbidden,
	errUsernameTaken:    http.StatusConflict,
	errRateLimited:      http.StatusTooManyRequests,
	errInternal:         http.StatusInternalServerError,
}

// clientError is an error safe to serialize for the client.
type clientError struct {
	kind    errKind
	message string
}

func (e *clientError) Error() string {
	if e.message == "" {
		return string(e.kind)
	}

	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// clientErr builds a clientError with an optional message.
func clientErr(kind errKind, format string, args ...any) *clientError {
	return &clientError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// errorBody is the serialized error payload.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps err to a client-facing payload. Sentinels from the
// session and store layers translate here so handlers can pass errors
// straight through.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var ce *clientError

	switch {
	case errors.As(err, &ce):
	case errors.Is(err, session.ErrBadLogin):
		ce = clientErr(errBadLogin, "invalid username or password")
	case errors.Is(err, session.ErrAccountLocked):
		ce = clientErr(errAccountLocked, "account is locked")
	case errors.Is(err, store.ErrUsernameTaken):
		ce = clientErr(errUsernameTaken, "username already exists")
	case errors.Is(err, store.ErrNotFound):
		ce = clientErr(errNotFound, "not found")
	default:
		// Internal fault: full detail stays in the log.
		s.log.WithError(err).Error("Internal error")
		writeJSON(w, http.StatusInternalServerError,
			errorBody{Error: string(errInternal)})

		return
	}

	writeJSON(w, errKindStatus[ce.kind],
		errorBody{Error: string(ce.kind), Message: ce.message})
}
