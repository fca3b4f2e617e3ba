package catalogue

import (
	"fmt"
	"net/http"
)

// InputError is a client input problem detected before any storage call.
// Status is the HTTP status reported to the client.
type InputError struct {
	Status  int
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func badRequest(format string, args ...any) *InputError {
	return &InputError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a song or its ratings being absent.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}
