package transport

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindRateLimited      Kind = "rate_limited"
	KindNetwork          Kind = "network_error"
	KindBlocked          Kind = "blocked"
	KindUnexpectedStatus Kind = "unexpected_status"
)

// Error is returned by Fetch once a request cannot produce a usable payload.
type Error struct {
	Kind     Kind
	Status   int // last HTTP status, 0 when no response was received
	Attempts int // requests issued
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("transport %s after %d attempts", e.Kind, e.Attempts)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries a transport error of the given kind.
func IsKind(err error, kind Kind) bool {
	var tErr *Error
	return errors.As(err, &tErr) && tErr.Kind == kind
}
