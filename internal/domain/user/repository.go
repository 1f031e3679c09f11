package user

import "context"

// Repository resolves accounts for login. Account management lives
// elsewhere; this service only reads.
type Repository interface {
	// GetByEmail matches the trimmed, lower-cased address and returns
	// ErrUserNotFound when no account has it.
	GetByEmail(ctx context.Context, email string) (*User, error)
}
