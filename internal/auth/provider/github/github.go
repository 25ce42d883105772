// Package github implements GitHub external login on top of goth.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/markbates/goth"
	gothgithub "github.com/markbates/goth/providers/github"
	"go.uber.org/zap"

	"backoffice/internal/auth"
	"backoffice/internal/logger"
)

const providerName = "github"

// Config for the GitHub OAuth app. The URL fields are only set in tests
// or for GitHub Enterprise.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL    string
	TokenURL   string
	ProfileURL string
	EmailURL   string
}

// Provider returns identity facts only; no user/session decisions are made here.
type Provider struct {
	goth *gothgithub.Provider
	log  *zap.Logger
}

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("github oauth config missing required fields")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}

	var gp *gothgithub.Provider
	if cfg.TokenURL != "" {
		gp = gothgithub.NewCustomisedURL(
			cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL,
			cfg.AuthURL, cfg.TokenURL, cfg.ProfileURL, cfg.EmailURL,
			scopes...,
		)
	} else {
		gp = gothgithub.New(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL, scopes...)
	}

	return &Provider{
		goth: gp,
		log:  logger.Named("github"),
	}, nil
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) DisplayName() string {
	return "GitHub"
}

// AuthCodeURL builds the authorization URL. GitHub OAuth apps ignore the
// PKCE challenge, so it is forwarded as-is.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) (string, error) {
	sess, err := p.goth.BeginAuth(state)
	if err != nil {
		return "", fmt.Errorf("github begin auth failed: %w", err)
	}
	authURL, err := sess.GetAuthURL()
	if err != nil {
		return "", fmt.Errorf("github auth url failed: %w", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("github auth url invalid: %w", err)
	}
	q := u.Query()
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Authenticate exchanges the code and fetches the GitHub profile.
func (p *Provider) Authenticate(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.AuthenticateResult, error) {

	sess, err := p.goth.UnmarshalSession("{}")
	if err != nil {
		return nil, fmt.Errorf("github session init failed: %w", err)
	}

	params := url.Values{}
	params.Set("code", code)
	params.Set("code_verifier", codeVerifier)

	if _, err := sess.Authorize(p.goth, params); err != nil {
		return nil, fmt.Errorf("github token exchange failed: %w", err)
	}

	user, err := p.goth.FetchUser(sess)
	if err != nil {
		return nil, fmt.Errorf("github profile fetch failed: %w", err)
	}

	p.log.Debug("github user fetched",
		zap.Bool("subject_present", user.UserID != ""),
		zap.Bool("email_present", user.Email != ""),
	)

	return &auth.AuthenticateResult{
		Identity: auth.IdentityFromClaims(providerName, userClaims(user)),
	}, nil
}

// userClaims maps a goth user onto OIDC claim names. Raw profile fields are
// kept under their GitHub names unless they collide with a mapped claim.
func userClaims(u goth.User) jwt.MapClaims {
	claims := jwt.MapClaims{}
	for k, v := range u.RawData {
		claims[k] = v
	}

	set := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			claims[k] = v
		} else {
			delete(claims, k)
		}
	}

	claims[auth.ClaimIssuer] = providerName
	set(auth.ClaimNameIdentifier, u.UserID)
	set(auth.ClaimName, u.Name)
	set(auth.ClaimPreferredUsername, u.NickName)
	set(auth.ClaimEmail, u.Email)
	set(auth.ClaimPicture, u.AvatarURL)

	delete(claims, auth.ClaimEmailVerified)
	if primaryEmail(u) {
		claims[auth.ClaimEmailVerified] = true
	}
	return claims
}

// primaryEmail reports whether the email came from the emails endpoint,
// which goth only accepts for a primary, verified address. A public
// profile email carries no verification flag.
func primaryEmail(u goth.User) bool {
	if u.Email == "" {
		return false
	}
	public, _ := u.RawData["email"].(string)
	return strings.TrimSpace(public) == ""
}
