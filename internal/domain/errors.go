package domain

import (
	"context"
	"errors"
	"net"
)

var (
	// Configuration: backend URL/key missing, placeholder, or rejected.
	ErrNotConfigured = errors.New("remote backend not configured")
	ErrRejected      = errors.New("remote backend rejected credentials")

	// Connectivity: retried on the next cycle.
	ErrTimeout     = errors.New("remote call timed out")
	ErrUnreachable = errors.New("remote backend unreachable")
	ErrServer      = errors.New("remote backend error")

	// Data: never retried.
	ErrInvalidIdentifier = errors.New("invalid entity identifier")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrUnknownTable      = errors.New("unknown table")

	// Conflict: the backend refused the mutation itself.
	ErrConflict = errors.New("remote backend rejected mutation")
)

type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindConnectivity  ErrorKind = "connectivity"
	KindData          ErrorKind = "data"
	KindConflict      ErrorKind = "conflict"
	KindUnknown       ErrorKind = "unknown"
)

// KindOf places err in the error taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrRejected):
		return KindConfiguration
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrUnknownTable):
		return KindData
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUnreachable), errors.Is(err, ErrServer),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}
	return KindUnknown
}
