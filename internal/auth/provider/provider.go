package provider

import (
	"context"

	"backoffice/internal/auth"
)

// OAuthProvider defines the contract every external login provider
// must implement. Implementations return identity facts only and
// must not perform user creation, linking, or session management.
type OAuthProvider interface {
	// Name returns the provider identifier used in routes (e.g. "google").
	Name() string

	// DisplayName is shown on the back-office login page.
	DisplayName() string

	// AuthCodeURL returns the authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) (string, error)

	// Authenticate exchanges the authorization code and returns the
	// provider's claims. No auth decisions are made here.
	Authenticate(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.AuthenticateResult, error)
}
