// Package oidc implements OpenID Connect external login (Google, Keycloak
// and any other discovery-capable issuer).
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"backoffice/internal/auth"
	"backoffice/internal/logger"
)

// Config describes one issuer.
type Config struct {
	Name         string
	DisplayName  string
	Issuer       string
	ClientID     string
	ClientSecret string // empty for public clients
	RedirectURL  string
	Scopes       []string
	// PublicAuthURL overrides the discovered authorization endpoint.
	PublicAuthURL string
}

// Provider implements OAuth + OIDC authentication against a single issuer.
// It returns identity facts only; no user/session decisions are made here.
type Provider struct {
	name        string
	displayName string
	oauthConfig *oauth2.Config
	verifier    *gooidc.IDTokenVerifier
	log         *zap.Logger
}

// New initializes the provider using discovery.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oidc provider %q: config missing required fields", cfg.Name)
	}

	oidcProvider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s oidc provider: %w", cfg.Name, err)
	}

	verifier := oidcProvider.Verifier(&gooidc.Config{
		ClientID: cfg.ClientID,
	})

	ep := oidcProvider.Endpoint()
	if cfg.PublicAuthURL != "" {
		ep.AuthURL = cfg.PublicAuthURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"profile", "email"}
	}
	if !contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = cfg.Name
	}

	return &Provider{
		name:        cfg.Name,
		displayName: displayName,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       scopes,
		},
		verifier: verifier,
		log:      logger.Named("oidc").With(logger.Provider(cfg.Name)),
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) DisplayName() string {
	return p.displayName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) (string, error) {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// Authenticate exchanges the code, verifies the id_token and returns its claims.
func (p *Provider) Authenticate(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.AuthenticateResult, error) {

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", p.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New(p.name + " did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s id_token verification failed: %w", p.name, err)
	}

	var claims jwt.MapClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s id_token claims parse failed: %w", p.name, err)
	}

	p.log.Debug("oidc verified",
		zap.String("issuer", idToken.Issuer),
		zap.Bool("subject_present", idToken.Subject != ""),
		zap.Strings("audience", idToken.Audience),
		zap.Int64("expiry_unix", idToken.Expiry.Unix()),
	)

	return &auth.AuthenticateResult{
		Identity: auth.IdentityFromClaims(p.name, claims),
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
