package model

import "errors"

// Error taxonomy. Store and service layers return these sentinels so
// handlers can map them to HTTP statuses with errors.Is.
var (
	// ErrDuplicateEmail is returned when registration hits the unique
	// email constraint.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials covers both unknown email and bad password,
	// deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is returned for an unknown reset token.
	ErrInvalidToken = errors.New("invalid reset token")

	// ErrExpiredToken is returned for a known but expired reset token.
	ErrExpiredToken = errors.New("reset token expired")

	// ErrInvalidRole rejects roles outside {user, assistant}. Internal
	// callers only use the fixed role constants, so reaching this
	// indicates a programming error.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveUser is returned when a chat operation runs without an
	// authenticated user.
	ErrNoActiveUser = errors.New("no active user")
)
