// Package googleauth implements Google sign-in with the OAuth 2.0
// authorization-code flow.
//
// The Exchanger plugs into localauth.WithExchanger. After the code
// exchange the OpenID userinfo endpoint supplies the claims.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/fundsavy/fundsavy/pkg/auth"
)

// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint.
const DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// DefaultScopes request the identity claims used by fundsavy.
var DefaultScopes = []string{"openid", "email", "profile"}

// Config configures an Exchanger.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes default to DefaultScopes.
	Scopes []string

	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint

	// UserInfoURL defaults to DefaultUserInfoURL.
	UserInfoURL string

	// HTTPClient is used for the token exchange and userinfo calls.
	HTTPClient *http.Client
}

// Exchanger exchanges authorization codes for Google identity claims.
type Exchanger struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// New creates an Exchanger.
func New(cfg Config) (*Exchanger, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("googleauth: client ID and secret are required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("googleauth: redirect URL is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = endpoints.Google
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}

	return &Exchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		client:      cfg.HTTPClient,
	}, nil
}

// AuthCodeURL returns the consent page URL carrying state.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type userInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Exchange trades code for a token and fetches the user's claims.
func (e *Exchanger) Exchange(ctx context.Context, code string) (auth.Claims, error) {
	if e.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	}

	tok, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("googleauth: exchanging code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.userInfoURL, nil)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("googleauth: userinfo request: %w", err)
	}
	resp, err := e.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("googleauth: userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return auth.Claims{}, fmt.Errorf("googleauth: userinfo status %d: %s", resp.StatusCode, body)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.Claims{}, fmt.Errorf("googleauth: decoding userinfo: %w", err)
	}
	if info.Subject == "" {
		return auth.Claims{}, errors.New("googleauth: userinfo has no subject")
	}

	return auth.Claims{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
	}, nil
}
