package user

import "errors"

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized covers a missing or bad token and a failed login
	// alike, so callers cannot probe which emails exist.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredential rejects login input that could never match an
	// account, before any lookup is made.
	ErrInvalidCredential = errors.New("email or password is malformed")
)
