package auth

import "strings"

// AuthenticateResult is what a provider hands back after a successful
// callback: the external identity plus any properties the login flow
// carried through the round trip.
type AuthenticateResult struct {
	Identity   *ClaimsIdentity
	Properties map[string]string
}

// UserLoginInfo identifies a login at an external provider. The pair is
// unique per back-office user.
type UserLoginInfo struct {
	LoginProvider string // issuer of the name-identifier claim
	ProviderKey   string // provider-scoped subject
}

// ExternalLoginInfo is the normalized form of an external provider's
// callback result. It contains facts only, no decisions.
type ExternalLoginInfo struct {
	Login           UserLoginInfo
	DefaultUserName string
	Email           string
	// ExternalIdentity is the full claim set returned by the provider.
	ExternalIdentity *ClaimsIdentity
}

// ExternalLogin extracts login info from an authentication result.
// It returns nil when the result carries no name-identifier claim.
func ExternalLogin(result *AuthenticateResult) *ExternalLoginInfo {
	if result == nil || result.Identity == nil {
		return nil
	}

	id := result.Identity.FindFirst(ClaimNameIdentifier)
	if id == nil || id.Value == "" {
		return nil
	}

	issuer := id.Issuer
	if issuer == "" {
		issuer = result.Identity.AuthenticationType
	}

	return &ExternalLoginInfo{
		Login: UserLoginInfo{
			LoginProvider: issuer,
			ProviderKey:   id.Value,
		},
		DefaultUserName:  NormalizeUserName(result.Identity.Name()),
		Email:            result.Identity.FindFirstValue(ClaimEmail),
		ExternalIdentity: result.Identity,
	}
}

// ExternalLoginWithXSRF is ExternalLogin for flows started by a signed-in
// user: the result's xsrfKey property must equal expected.
func ExternalLoginWithXSRF(result *AuthenticateResult, xsrfKey, expected string) *ExternalLoginInfo {
	if result == nil || expected == "" {
		return nil
	}
	if v, ok := result.Properties[xsrfKey]; !ok || v != expected {
		return nil
	}
	return ExternalLogin(result)
}

// NormalizeUserName derives a user name from a display name by removing spaces.
func NormalizeUserName(name string) string {
	return strings.ReplaceAll(name, " ", "")
}
