package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict: resource already exists")
	ErrInternal         = errors.New("internal server error")
	ErrSessionExpired   = errors.New("session expired or invalid")
	ErrBadRequest       = errors.New("bad request")

	// ErrUsernameTaken is the authoritative conflict signal for the
	// profiles.username unique constraint as well as the pre-check.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrAccountExists mirrors the provider's obfuscated duplicate-signup
	// signal (an identities list of length zero) for existing emails.
	ErrAccountExists = errors.New("an account with this email already exists")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
