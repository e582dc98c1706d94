package services

import (
	"errors"
	"fmt"

	"github.com/saeid-a/ChatAppBack/internal/repository"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrEmptyBody         = errors.New("message body is empty")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
)

// storeFailure keeps the underlying cause for logs while making the error
// match ErrStoreUnavailable.
func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// storeLookup maps a repository read error, treating a missing record as
// notFound.
func storeLookup(op string, err error, notFound error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return storeFailure(op, err)
}

// ErrorCode is the stable code sent to clients for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrInvalidRecipient):
		return "INVALID_RECIPIENT"
	case errors.Is(err, ErrEmptyBody):
		return "EMPTY_BODY"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
