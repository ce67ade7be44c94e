package errors

import (
	"errors"
	"fmt"
)

// Taxonomy surfaced to clients.
var (
	ErrUnauthorized   = fmt.Errorf("unauthorized")
	ErrInvalidPayload = fmt.Errorf("invalid payload")
	ErrNotFound       = fmt.Errorf("not found")
	ErrInternal       = fmt.Errorf("internal error")
)

var (
	ErrInvalidCursor      = fmt.Errorf("%w: invalid cursor", ErrInvalidPayload)
	ErrInvalidPagination  = fmt.Errorf("%w: first/after cannot be combined with last/before", ErrInvalidPayload)
	ErrNegativePageSize   = fmt.Errorf("%w: page size must not be negative", ErrInvalidPayload)
	ErrEmptyContent       = fmt.Errorf("%w: message content is empty", ErrInvalidPayload)
	ErrContentTooLong     = fmt.Errorf("%w: message content is too long", ErrInvalidPayload)
	ErrEmptyQuery         = fmt.Errorf("%w: search query is empty", ErrInvalidPayload)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", ErrInvalidPayload)
	ErrSelfRoom           = fmt.Errorf("%w: cannot open a room with yourself", ErrInvalidPayload)
	ErrInvalidPassword    = fmt.Errorf("%w: password does not match the complexity rules", ErrInvalidPayload)
	ErrUserAlreadyExists  = fmt.Errorf("%w: username already taken", ErrInvalidPayload)
	ErrRoomNotFound       = fmt.Errorf("%w: room", ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrMissingToken       = fmt.Errorf("%w: authorization token is missing", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrNotParticipant     = fmt.Errorf("%w: not a participant of this room", ErrUnauthorized)
	ErrTokenGeneration    = fmt.Errorf("%w: token generation failed", ErrInternal)
)

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrBackpressure  = fmt.Errorf("subscriber buffer is full")
	ErrSessionClosed = fmt.Errorf("session closed")
)

// Is and As are re-exported so callers only import this package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

type Class string

const (
	ClassUnauthorized   Class = "UNAUTHORIZED"
	ClassInvalidPayload Class = "INVALID_PAYLOAD"
	ClassNotFound       Class = "NOT_FOUND"
	ClassInternal       Class = "INTERNAL"
)

// Kind classifies any error into the client taxonomy.
// Unknown errors are Internal.
func Kind(err error) Class {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	case errors.Is(err, ErrInvalidPayload):
		return ClassInvalidPayload
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	default:
		return ClassInternal
	}
}

// PublicMessage hides the details of internal failures.
func PublicMessage(err error) string {
	if Kind(err) == ClassInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}
