package rpcb

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a status-carrying failure. Methods raise it locally, the server
// renders it as a response status plus plain-text message, and the client
// decodes non-2xx responses back into it, so upstream code branches the
// same way whether a call failed locally or across the wire.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Errorf builds an Error with a formatted message.
func Errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the status code from an error, defaulting to 500 for
// anything that is not an *Error.
func StatusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}

// MessageOf extracts the user-facing message from an error. Unrecognized
// failures are stringified as-is; there is no confidential internal state
// to hide beyond admin tokens, which never appear in error text.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
