package resolver

import (
	"context"
	"errors"

	"backoffice/internal/auth"
)

var (
	// ErrNotLinked means the external login belongs to no back-office user
	// and auto-linking is disabled.
	ErrNotLinked = errors.New("external login is not linked to a user")
	// ErrAlreadyLinked means the external login belongs to another user.
	ErrAlreadyLinked = errors.New("external login is linked to another user")
)

// Resolver determines which back-office user an external login belongs to.
// It is the ONLY place where login-to-user mapping logic lives.
type Resolver interface {
	Resolve(
		ctx context.Context,
		info *auth.ExternalLoginInfo,
	) (userID string, err error)

	// Link attaches the login to an existing user.
	Link(
		ctx context.Context,
		userID string,
		info *auth.ExternalLoginInfo,
	) error
}
