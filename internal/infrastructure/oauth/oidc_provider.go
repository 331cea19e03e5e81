package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrNoIDToken     = errors.New("no id_token in token response")
	ErrNonceMismatch = errors.New("id token nonce mismatch")
	ErrNoEmail       = errors.New("id token carries no verified email")
)

// Claims is the subset of the ID token the app reads.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

// Provider signs users in with an OpenID Connect issuer such as Google.
type Provider struct {
	name     string
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewProvider runs OIDC discovery against issuer.
func NewProvider(ctx context.Context, name, issuer, clientID, clientSecret, redirectURL string) (*Provider, error) {
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider %s: %w", name, err)
	}
	return &Provider{
		name: name,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     p.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: p.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (p *Provider) Name() string { return p.name }

// AuthCodeURL is where the browser is sent to sign in.
func (p *Provider) AuthCodeURL(state, nonce string) string {
	return p.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange trades the authorization code for tokens, verifies the ID token
// and its nonce, and returns the claims.
func (p *Provider) Exchange(ctx context.Context, code, nonce string) (*Claims, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, ErrNoIDToken
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("id token verification failed: %w", err)
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}
	if claims.Nonce != nonce {
		return nil, ErrNonceMismatch
	}
	if claims.Email == "" || (claims.EmailVerified != nil && !*claims.EmailVerified) {
		return nil, ErrNoEmail
	}
	return &claims, nil
}

// Email runs Exchange and returns only the verified email address.
func (p *Provider) Email(ctx context.Context, code, nonce string) (string, error) {
	c, err := p.Exchange(ctx, code, nonce)
	if err != nil {
		return "", err
	}
	return c.Email, nil
}
