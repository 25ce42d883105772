package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Well-known claim types, named after their OpenID Connect claim names.
const (
	ClaimNameIdentifier    = "sub"
	ClaimIssuer            = "iss"
	ClaimName              = "name"
	ClaimPreferredUsername = "preferred_username"
	ClaimEmail             = "email"
	ClaimEmailVerified     = "email_verified"
	ClaimPicture           = "picture"
)

// Claim is a single statement an identity provider makes about a subject.
type Claim struct {
	Type   string
	Value  string
	Issuer string
}

// ClaimsIdentity is the full claim set an external provider returned.
type ClaimsIdentity struct {
	// AuthenticationType names the provider that produced the identity.
	AuthenticationType string
	// NameClaimType selects the claim Name reads. Empty means ClaimName.
	NameClaimType string
	Claims        []Claim
}

// FindFirst returns the first claim of the given type, or nil.
func (c *ClaimsIdentity) FindFirst(claimType string) *Claim {
	if c == nil {
		return nil
	}
	for i := range c.Claims {
		if c.Claims[i].Type == claimType {
			return &c.Claims[i]
		}
	}
	return nil
}

// FindFirstValue returns the value of the first claim of the given type, or "".
func (c *ClaimsIdentity) FindFirstValue(claimType string) string {
	if cl := c.FindFirst(claimType); cl != nil {
		return cl.Value
	}
	return ""
}

// Name returns the display name claim.
func (c *ClaimsIdentity) Name() string {
	if c == nil {
		return ""
	}
	t := c.NameClaimType
	if t == "" {
		t = ClaimName
	}
	return c.FindFirstValue(t)
}

// String omits claim values so identities can be logged.
func (c *ClaimsIdentity) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("ClaimsIdentity{AuthenticationType:%q, Claims:%d}", c.AuthenticationType, len(c.Claims))
}

// IdentityFromClaims flattens a token claim map into a ClaimsIdentity.
// Claims are ordered by type. Every claim is issued by the "iss" claim, or by
// authType when the map carries no issuer.
func IdentityFromClaims(authType string, claims jwt.MapClaims) *ClaimsIdentity {
	issuer, _ := claims.GetIssuer()
	if issuer == "" {
		issuer = authType
	}

	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	id := &ClaimsIdentity{AuthenticationType: authType}
	for _, k := range keys {
		for _, v := range claimValues(claims[k]) {
			id.Claims = append(id.Claims, Claim{Type: k, Value: v, Issuer: issuer})
		}
	}

	switch {
	case id.FindFirstValue(ClaimName) != "":
		id.NameClaimType = ClaimName
	case id.FindFirstValue(ClaimPreferredUsername) != "":
		id.NameClaimType = ClaimPreferredUsername
	default:
		id.NameClaimType = ClaimName
	}
	return id
}

func claimValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case bool:
		return []string{strconv.FormatBool(t)}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(t)}
	case int64:
		return []string{strconv.FormatInt(t, 10)}
	case json.Number:
		return []string{t.String()}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, claimValues(e)...)
		}
		return out
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return []string{fmt.Sprint(t)}
		}
		return []string{string(b)}
	}
}
